package notify

import "sync"

// Recorder is a Notifier that remembers every message, for tests.
type Recorder struct {
	mu       sync.Mutex
	Messages []Message
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Notify(category Category, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Messages = append(r.Messages, Message{Category: category, Text: text})
}

// ByCategory returns the recorded texts for one category.
func (r *Recorder) ByCategory(category Category) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.Messages {
		if m.Category == category {
			out = append(out, m.Text)
		}
	}
	return out
}
