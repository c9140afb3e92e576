package syncer

import (
	"context"
	"log"
	"sync"
	"time"
)

// DefaultCheckInterval is how often the periodic drain check runs. It
// backstops missed reconnect events and operations enqueued during a
// transition race.
const DefaultCheckInterval = 30 * time.Second

// Monitor is the single source of truth for connectivity. It only
// observes; transitions fan out to subscribers registered at wiring time.
type Monitor struct {
	mu     sync.RWMutex
	online bool
	subs   []func(online bool)
}

func NewMonitor(online bool) *Monitor {
	return &Monitor{online: online}
}

// Online reports the current connectivity state.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Subscribe registers a transition handler. Handlers run on the goroutine
// calling SetOnline, after the state has changed.
func (m *Monitor) Subscribe(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// SetOnline records a connectivity transition. Setting the current state
// again is a no-op.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]func(bool), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	if online {
		log.Printf("[Monitor] became online")
	} else {
		log.Printf("[Monitor] became offline")
	}
	for _, fn := range subs {
		fn(online)
	}
}

// RunPeriodic invokes check every interval while online, until ctx is
// done. The check itself decides whether a drain is warranted.
func (m *Monitor) RunPeriodic(ctx context.Context, interval time.Duration, check func(ctx context.Context)) {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.Online() {
				check(ctx)
			}
		}
	}
}
