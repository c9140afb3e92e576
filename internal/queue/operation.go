package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/pos-sync/internal/domain/item"
	"github.com/example/pos-sync/internal/domain/tenant"
)

// Type tags a pending operation with the lifecycle transition it replays.
type Type string

const (
	TypeAddProduct     Type = "addProduct"
	TypeUpdateProduct  Type = "updateProduct"
	TypeDeleteProduct  Type = "deleteProduct"
	TypeSellProduct    Type = "sellProduct"
	TypeRestoreProduct Type = "restoreProduct"
	TypeSellRestored   Type = "sellRestoredProduct"
	TypeUpdateBusiness Type = "updateBusiness"
)

// Status of an operation within the queue.
type Status string

const (
	StatusPending Status = "pending"
	StatusSyncing Status = "syncing"
	StatusFailed  Status = "failed"
)

// Operation is one queued mutation. The payload is immutable after
// creation; only Status and RetryCount move.
type Operation struct {
	ID         string          `json:"id"`
	Type       Type            `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
	Status     Status          `json:"status"`
	RetryCount int             `json:"retry_count"`
}

// Payload is the tagged union over operation payloads. Each variant
// carries everything needed to replay without re-reading local state.
type Payload interface {
	Kind() Type
}

type AddProductPayload struct {
	Actor item.Actor      `json:"actor"`
	Req   item.AddRequest `json:"request"`
}

func (AddProductPayload) Kind() Type { return TypeAddProduct }

type UpdateProductPayload struct {
	Actor  item.Actor  `json:"actor"`
	ItemID string      `json:"item_id"`
	Update item.Update `json:"update"`
}

func (UpdateProductPayload) Kind() Type { return TypeUpdateProduct }

type DeleteProductPayload struct {
	Actor item.Actor `json:"actor"`
	// Full snapshot at enqueue time; replay targets Item.ID.
	Item item.Item `json:"item"`
}

func (DeleteProductPayload) Kind() Type { return TypeDeleteProduct }

type SellProductPayload struct {
	Actor item.Actor       `json:"actor"`
	Req   item.SellRequest `json:"request"`
}

func (SellProductPayload) Kind() Type { return TypeSellProduct }

type RestoreProductPayload struct {
	Actor item.Actor          `json:"actor"`
	Req   item.RestoreRequest `json:"request"`
}

func (RestoreProductPayload) Kind() Type { return TypeRestoreProduct }

type SellRestoredPayload struct {
	Actor item.Actor         `json:"actor"`
	Req   item.ResellRequest `json:"request"`
}

func (SellRestoredPayload) Kind() Type { return TypeSellRestored }

type UpdateBusinessPayload struct {
	Actor      item.Actor            `json:"actor"`
	BusinessID string                `json:"business_id"`
	Update     tenant.BusinessUpdate `json:"update"`
}

func (UpdateBusinessPayload) Kind() Type { return TypeUpdateBusiness }

// EncodePayload marshals a typed payload for storage.
func EncodePayload(p Payload) (json.RawMessage, error) {
	return json.Marshal(p)
}

// DecodePayload recovers the typed payload from an operation. The switch
// is exhaustive over every queue type; an unknown tag is a corrupt entry.
func (o Operation) DecodePayload() (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch o.Type {
	case TypeAddProduct:
		var v AddProductPayload
		err = json.Unmarshal(o.Payload, &v)
		p = v
	case TypeUpdateProduct:
		var v UpdateProductPayload
		err = json.Unmarshal(o.Payload, &v)
		p = v
	case TypeDeleteProduct:
		var v DeleteProductPayload
		err = json.Unmarshal(o.Payload, &v)
		p = v
	case TypeSellProduct:
		var v SellProductPayload
		err = json.Unmarshal(o.Payload, &v)
		p = v
	case TypeRestoreProduct:
		var v RestoreProductPayload
		err = json.Unmarshal(o.Payload, &v)
		p = v
	case TypeSellRestored:
		var v SellRestoredPayload
		err = json.Unmarshal(o.Payload, &v)
		p = v
	case TypeUpdateBusiness:
		var v UpdateBusinessPayload
		err = json.Unmarshal(o.Payload, &v)
		p = v
	default:
		return nil, fmt.Errorf("unknown operation type %q", o.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", o.Type, err)
	}
	return p, nil
}

// Describe renders an operation type for user-facing messages.
func (t Type) Describe() string {
	switch t {
	case TypeAddProduct:
		return "Add product"
	case TypeUpdateProduct:
		return "Update product"
	case TypeDeleteProduct:
		return "Delete product"
	case TypeSellProduct:
		return "Sell product"
	case TypeRestoreProduct:
		return "Restore product"
	case TypeSellRestored:
		return "Sell restored product"
	case TypeUpdateBusiness:
		return "Update business profile"
	default:
		return string(t)
	}
}
