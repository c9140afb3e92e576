package localstore

import (
	"encoding/json"
	"time"
)

// Collection names persisted by the local cache.
const (
	CollectionProducts   = "products"
	CollectionPendingOps = "pending_operations"
	CollectionUsers      = "users"
	CollectionBranches   = "branches"
	CollectionBusinesses = "businesses"
)

// Secondary index names supported by QueryByIndex.
const (
	IndexStatus   = "status"
	IndexBranch   = "branch_id"
	IndexBusiness = "business_id"
)

// Record is one cached entity. The indexed columns are denormalized out
// of Data at Put time so lookups never parse the JSON body.
type Record struct {
	ID         string          `json:"id"`
	Data       json.RawMessage `json:"data"`
	Status     string          `json:"status,omitempty"`
	BranchID   string          `json:"branch_id,omitempty"`
	BusinessID string          `json:"business_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Store is the durable local cache serving reads while offline and
// staging optimistic writes before remote confirmation. Implementations
// log and swallow their own I/O errors; callers treat the cache as
// best-effort and the remote store as the consistency authority.
type Store interface {
	Get(collection, id string) (Record, bool)
	Put(collection string, rec Record)
	Delete(collection, id string)
	List(collection string) []Record
	QueryByIndex(collection, index, value string) []Record
	Clear(collection string)

	// Small key-value metadata area (last sync time, schema marker).
	SetMeta(key, value string)
	GetMeta(key string) (string, bool)
}

// NewRecord builds a Record from a JSON-marshalable entity, pulling the
// indexed fields out of the marshaled body.
func NewRecord(id string, entity any) (Record, error) {
	raw, err := json.Marshal(entity)
	if err != nil {
		return Record{}, err
	}
	var denorm struct {
		Status     string `json:"status"`
		BranchID   string `json:"branch_id"`
		BusinessID string `json:"business_id"`
	}
	_ = json.Unmarshal(raw, &denorm)

	return Record{
		ID:         id,
		Data:       raw,
		Status:     denorm.Status,
		BranchID:   denorm.BranchID,
		BusinessID: denorm.BusinessID,
		CreatedAt:  time.Now(),
	}, nil
}
