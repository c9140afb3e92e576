package queue

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/example/pos-sync/internal/localstore"
	"github.com/example/pos-sync/internal/notify"
)

// Collection is the local collection queue entries persist in.
const Collection = localstore.CollectionPendingOps

var ErrOperationNotFound = fmt.Errorf("pending operation not found")

// Queue is the durable FIFO of not-yet-synced mutations, backed by the
// local durable store. Enqueue must work while offline; it is the
// offline path.
type Queue struct {
	store    localstore.Store
	notifier notify.Notifier
	offline  func() bool
}

// New builds a queue. offline reports whether the app is currently
// disconnected; it drives the "queued while offline" toast only and may
// be nil.
func New(store localstore.Store, notifier notify.Notifier, offline func() bool) *Queue {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Queue{store: store, notifier: notifier, offline: offline}
}

// Enqueue persists a new pending operation and returns its ID.
func (q *Queue) Enqueue(p Payload) (string, error) {
	raw, err := EncodePayload(p)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	op := Operation{
		ID:        uuid.New().String(),
		Type:      p.Kind(),
		Payload:   raw,
		CreatedAt: time.Now(),
		Status:    StatusPending,
	}
	if err := q.persist(op); err != nil {
		return "", err
	}

	if q.offline != nil && q.offline() {
		q.notifier.Notify(notify.Info,
			fmt.Sprintf("%s saved locally; it will sync when you are back online", op.Type.Describe()))
	}
	return op.ID, nil
}

// ListPending returns every pending or failed operation in creation
// order, oldest first. It does not mutate state.
func (q *Queue) ListPending() []Operation {
	var ops []Operation
	for _, rec := range q.store.List(Collection) {
		op, err := decodeRecord(rec)
		if err != nil {
			log.Printf("[Queue] skipping corrupt entry %s: %v", rec.ID, err)
			continue
		}
		if op.Status == StatusPending || op.Status == StatusFailed {
			ops = append(ops, op)
		}
	}
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].CreatedAt.Equal(ops[j].CreatedAt) {
			return ops[i].ID < ops[j].ID
		}
		return ops[i].CreatedAt.Before(ops[j].CreatedAt)
	})
	return ops
}

// Count reports the number of unresolved (pending or failed) operations.
func (q *Queue) Count() int {
	count := 0
	for _, rec := range q.store.List(Collection) {
		op, err := decodeRecord(rec)
		if err != nil {
			continue
		}
		if op.Status == StatusPending || op.Status == StatusFailed {
			count++
		}
	}
	return count
}

// Get returns one operation by ID.
func (q *Queue) Get(id string) (Operation, bool) {
	rec, ok := q.store.Get(Collection, id)
	if !ok {
		return Operation{}, false
	}
	op, err := decodeRecord(rec)
	if err != nil {
		return Operation{}, false
	}
	return op, true
}

// MarkSyncing flags an operation as picked up by a drain pass.
func (q *Queue) MarkSyncing(id string) error {
	return q.transition(id, func(op *Operation) {
		op.Status = StatusSyncing
	})
}

// MarkFailed returns an operation to the queue after a failed replay,
// bumping its retry counter. The entry is retained for the next pass.
func (q *Queue) MarkFailed(id string) error {
	return q.transition(id, func(op *Operation) {
		op.Status = StatusFailed
		op.RetryCount++
	})
}

// Remove drops an operation after confirmed successful replay. It is the
// only way an operation leaves the queue.
func (q *Queue) Remove(id string) {
	q.store.Delete(Collection, id)
}

// Clear drops every entry. Explicit data-reset flows only; never called
// by sync logic.
func (q *Queue) Clear() {
	q.store.Clear(Collection)
}

func (q *Queue) transition(id string, mutate func(*Operation)) error {
	rec, ok := q.store.Get(Collection, id)
	if !ok {
		return ErrOperationNotFound
	}
	op, err := decodeRecord(rec)
	if err != nil {
		return err
	}
	mutate(&op)
	return q.persist(op)
}

func (q *Queue) persist(op Operation) error {
	raw, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("marshal operation: %w", err)
	}
	q.store.Put(Collection, localstore.Record{
		ID:        op.ID,
		Data:      raw,
		Status:    string(op.Status),
		CreatedAt: op.CreatedAt,
	})
	return nil
}

func decodeRecord(rec localstore.Record) (Operation, error) {
	var op Operation
	if err := json.Unmarshal(rec.Data, &op); err != nil {
		return Operation{}, err
	}
	return op, nil
}
