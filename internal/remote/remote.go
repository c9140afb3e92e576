package remote

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrNotFound         = errors.New("document not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrTxConflict       = errors.New("transaction conflict")
)

// Predicate is an equality filter on a top-level document field.
type Predicate struct {
	Field string
	Value any
}

// Eq builds an equality predicate.
func Eq(field string, value any) Predicate {
	return Predicate{Field: field, Value: value}
}

// Store is the remote document store the sync engine replays against.
// All reads and writes of one business operation go through RunTransaction
// so that each queued operation applies as a single atomic unit.
type Store interface {
	Get(ctx context.Context, collection, id string) (json.RawMessage, error)
	Query(ctx context.Context, collection string, preds ...Predicate) ([]json.RawMessage, error)
	Set(ctx context.Context, collection, id string, doc any) error
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the view of the store inside RunTransaction. Writes are buffered
// and applied atomically when fn returns nil; any error discards them all.
type Tx interface {
	Get(collection, id string) (json.RawMessage, error)
	Query(collection string, preds ...Predicate) ([]json.RawMessage, error)
	Set(collection, id string, doc any) error
	Update(collection, id string, fields map[string]any) error
	Delete(collection, id string) error
}

// ChangeType classifies a change notification.
type ChangeType string

const (
	ChangePut    ChangeType = "put"
	ChangeDelete ChangeType = "delete"
)

// Change describes one committed document mutation.
type Change struct {
	Type       ChangeType
	Collection string
	ID         string
	Doc        json.RawMessage // nil for deletes
}

// Subscriber is implemented by stores that support change notifications.
// Subscribe returns an unsubscribe handle; callers own the subscription
// lifetime and must release it on teardown.
type Subscriber interface {
	Subscribe(collection string, pred Predicate, fn func(Change)) (unsubscribe func())
}
