package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

// Category classifies a user-facing message.
type Category string

const (
	Info    Category = "info"
	Success Category = "success"
	Warning Category = "warning"
	Error   Category = "error"
)

// Message is one fire-and-forget notification.
type Message struct {
	Category Category  `json:"category"`
	Text     string    `json:"text"`
	At       time.Time `json:"at"`
}

// Notifier is the sink the core pushes status messages into. The core
// never depends on a return value; delivery is best effort.
type Notifier interface {
	Notify(category Category, text string)
}

// LogNotifier writes messages to the process log.
type LogNotifier struct{}

func (LogNotifier) Notify(category Category, text string) {
	log.Printf("[Notify] %s: %s", category, text)
}

// Publisher is the subset of the Kafka producer the reporter needs.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// KafkaNotifier publishes messages to the sync events topic so other
// processes (the notifier binary, dashboards) can react to them.
type KafkaNotifier struct {
	producer Publisher
	key      string
}

// NewKafkaNotifier keys messages by tenant so consumers can partition per
// business.
func NewKafkaNotifier(producer Publisher, businessID string) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, key: businessID}
}

func (n *KafkaNotifier) Notify(category Category, text string) {
	msg := Message{Category: category, Text: text, At: time.Now()}
	if err := n.producer.Publish(context.Background(), n.key, msg); err != nil {
		log.Printf("[Notify] publish failed: %v", err)
	}
}

// Multi fans one message out to several notifiers.
func Multi(notifiers ...Notifier) Notifier {
	return multiNotifier(notifiers)
}

type multiNotifier []Notifier

func (m multiNotifier) Notify(category Category, text string) {
	for _, n := range m {
		n.Notify(category, text)
	}
}

// DecodeMessage parses a Message from a Kafka record value.
func DecodeMessage(value []byte) (Message, error) {
	var msg Message
	err := json.Unmarshal(value, &msg)
	return msg, err
}
