package item

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/example/pos-sync/internal/remote"
)

// Service applies lifecycle transitions against the remote store. Each
// transition runs inside one remote transaction: the re-read of the
// source, the quantity arithmetic and every derived write commit or fail
// together, which is what makes queued-operation replay safe.
type Service struct {
	store remote.Store
}

func NewService(store remote.Store) *Service {
	return &Service{store: store}
}

// AddRequest creates a store item, or tops up an existing one matching
// the natural key within the same business and branch.
type AddRequest struct {
	// ID is optional; offline enqueues preset it so the provisional
	// cache record and the replayed remote record agree.
	ID           string `json:"id,omitempty"`
	Name         string `json:"name"`
	Category     string `json:"category"`
	Model        string `json:"model,omitempty"`
	CostPrice    int64  `json:"cost_price"`
	SellingPrice int64  `json:"selling_price,omitempty"`
	Quantity     int    `json:"quantity"`
	BranchID     string `json:"branch_id"`
}

// SellRequest moves quantity from a store item to a new sold record.
// Source carries the full snapshot captured at enqueue time; replay
// re-reads the live record by Source.ID and never trusts the snapshot's
// quantity.
type SellRequest struct {
	Source   Item       `json:"source"`
	Quantity int        `json:"quantity"`
	Price    int64      `json:"price"`
	Deadline *time.Time `json:"deadline,omitempty"`
	NewID    string     `json:"new_id,omitempty"`
}

// RestoreRequest moves quantity from a sold record back to restored.
type RestoreRequest struct {
	Source   Item   `json:"source"`
	Quantity int    `json:"quantity"`
	Comment  string `json:"comment"`
	NewID    string `json:"new_id,omitempty"`
}

// ResellRequest sells quantity out of a restored record.
type ResellRequest struct {
	Source   Item       `json:"source"`
	Quantity int        `json:"quantity"`
	Price    int64      `json:"price"`
	Deadline *time.Time `json:"deadline,omitempty"`
	NewID    string     `json:"new_id,omitempty"`
}

// ValidateAdd runs the synchronous checks for Add without touching the
// store. Callers reject invalid requests before any enqueue.
func ValidateAdd(actor Actor, req AddRequest) error {
	if normalize(req.Name) == "" {
		return ErrNameRequired
	}
	if req.BranchID == "" {
		return ErrBranchRequired
	}
	if req.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if req.CostPrice <= 0 {
		return ErrInvalidPrice
	}
	if !actor.IsAdmin() && actor.BranchID != req.BranchID {
		return ErrBranchMismatch
	}
	return nil
}

// ValidateMove runs the synchronous checks shared by sell, restore and
// resell against the snapshot the caller holds.
func ValidateMove(actor Actor, source Item, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if qty > source.Quantity {
		return ErrInsufficientQuantity
	}
	if actor.BusinessID != source.BusinessID {
		return ErrBusinessMismatch
	}
	if !actor.IsAdmin() && actor.BranchID != source.BranchID {
		return ErrBranchMismatch
	}
	return nil
}

// ValidateSellPrice checks the selling price for sell and resell.
func ValidateSellPrice(price int64) error {
	if price <= 0 {
		return ErrInvalidPrice
	}
	return nil
}

// ValidateDeadline rejects a restore whose sold record carries an
// already-expired return deadline. An expired deadline is a hard
// rejection, not a partial allowance.
func ValidateDeadline(source Item, now time.Time) error {
	if source.Deadline != nil && source.Deadline.Before(now) {
		return ErrDeadlinePassed
	}
	return nil
}

// Add creates a store item or increments a natural-key match.
func (s *Service) Add(ctx context.Context, actor Actor, req AddRequest) (Item, error) {
	if err := ValidateAdd(actor, req); err != nil {
		return Item{}, err
	}

	now := time.Now()
	candidate := Item{
		ID:           req.ID,
		Name:         req.Name,
		Category:     req.Category,
		Model:        req.Model,
		CostPrice:    req.CostPrice,
		SellingPrice: req.SellingPrice,
		Quantity:     req.Quantity,
		BranchID:     req.BranchID,
		BusinessID:   actor.BusinessID,
		Status:       StatusStore,
		AddedAt:      now,
		UpdatedAt:    now,
	}
	if candidate.ID == "" {
		candidate.ID = uuid.New().String()
	}

	var result Item
	err := s.store.RunTransaction(ctx, func(tx remote.Tx) error {
		docs, err := tx.Query(Collection,
			remote.Eq("business_id", actor.BusinessID),
			remote.Eq("branch_id", req.BranchID),
			remote.Eq("status", string(StatusStore)),
		)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			existing, err := FromDoc(doc)
			if err != nil {
				return err
			}
			if existing.NaturalKey() == candidate.NaturalKey() {
				existing.Quantity += req.Quantity
				existing.UpdatedAt = now
				result = existing
				return tx.Set(Collection, existing.ID, existing)
			}
		}
		result = candidate
		return tx.Set(Collection, candidate.ID, candidate)
	})
	if err != nil {
		return Item{}, err
	}
	return result, nil
}

// Sell moves req.Quantity units out of a store item into a new sold
// record. The source is deleted when fully exhausted.
func (s *Service) Sell(ctx context.Context, actor Actor, req SellRequest) (Item, error) {
	if err := ValidateSellPrice(req.Price); err != nil {
		return Item{}, err
	}
	if err := ValidateMove(actor, req.Source, req.Quantity); err != nil {
		return Item{}, err
	}

	now := time.Now()
	var created Item
	err := s.store.RunTransaction(ctx, func(tx remote.Tx) error {
		current, err := s.loadForMove(tx, actor, req.Source.ID, StatusStore, req.Quantity)
		if err != nil {
			return err
		}

		if err := s.shrinkSource(tx, current, req.Quantity, now); err != nil {
			return err
		}

		created = current // snapshot-then-mutate
		created.ID = req.NewID
		if created.ID == "" {
			created.ID = uuid.New().String()
		}
		created.Status = StatusSold
		created.Quantity = req.Quantity
		created.SellingPrice = req.Price
		created.SoldAt = &now
		created.UpdatedAt = now
		created.Deadline = req.Deadline
		return tx.Set(Collection, created.ID, created)
	})
	if err != nil {
		return Item{}, err
	}
	return created, nil
}

// Restore moves req.Quantity units of a sold record back into a new
// restored record, rejecting expired deadlines.
func (s *Service) Restore(ctx context.Context, actor Actor, req RestoreRequest) (Item, error) {
	now := time.Now()
	if err := ValidateMove(actor, req.Source, req.Quantity); err != nil {
		return Item{}, err
	}
	if err := ValidateDeadline(req.Source, now); err != nil {
		return Item{}, err
	}

	var created Item
	err := s.store.RunTransaction(ctx, func(tx remote.Tx) error {
		current, err := s.loadForMove(tx, actor, req.Source.ID, StatusSold, req.Quantity)
		if err != nil {
			return err
		}
		// Re-check against the live record: the snapshot's deadline may
		// be stale.
		if err := ValidateDeadline(current, now); err != nil {
			return err
		}

		if err := s.shrinkSource(tx, current, req.Quantity, now); err != nil {
			return err
		}

		created = current
		created.ID = req.NewID
		if created.ID == "" {
			created.ID = uuid.New().String()
		}
		created.Status = StatusRestored
		created.Quantity = req.Quantity
		created.RestoredAt = &now
		created.UpdatedAt = now
		created.RestoreComment = req.Comment
		created.Deadline = nil
		return tx.Set(Collection, created.ID, created)
	})
	if err != nil {
		return Item{}, err
	}
	return created, nil
}

// Resell sells units out of a restored record, carrying the original
// restore comment forward and booking profit or loss against cost price.
func (s *Service) Resell(ctx context.Context, actor Actor, req ResellRequest) (Item, error) {
	if err := ValidateSellPrice(req.Price); err != nil {
		return Item{}, err
	}
	if err := ValidateMove(actor, req.Source, req.Quantity); err != nil {
		return Item{}, err
	}

	now := time.Now()
	var created Item
	err := s.store.RunTransaction(ctx, func(tx remote.Tx) error {
		current, err := s.loadForMove(tx, actor, req.Source.ID, StatusRestored, req.Quantity)
		if err != nil {
			return err
		}

		if err := s.shrinkSource(tx, current, req.Quantity, now); err != nil {
			return err
		}

		created = current
		created.ID = req.NewID
		if created.ID == "" {
			created.ID = uuid.New().String()
		}
		created.Status = StatusSold
		created.Quantity = req.Quantity
		created.SellingPrice = req.Price
		created.SoldAt = &now
		created.UpdatedAt = now
		created.Deadline = req.Deadline

		margin := (req.Price - current.CostPrice) * int64(req.Quantity)
		if margin >= 0 {
			created.Profit = margin
			created.Loss = 0
		} else {
			created.Profit = 0
			created.Loss = -margin
		}
		return tx.Set(Collection, created.ID, created)
	})
	if err != nil {
		return Item{}, err
	}
	return created, nil
}

// Update rewrites the mutable attributes of an item.
func (s *Service) Update(ctx context.Context, actor Actor, itemID string, upd Update) (Item, error) {
	if upd.CostPrice != nil && *upd.CostPrice <= 0 {
		return Item{}, ErrInvalidPrice
	}
	if upd.Quantity != nil && *upd.Quantity < 0 {
		return Item{}, ErrInvalidQuantity
	}
	if upd.Name != nil && normalize(*upd.Name) == "" {
		return Item{}, ErrNameRequired
	}

	var result Item
	err := s.store.RunTransaction(ctx, func(tx remote.Tx) error {
		current, err := s.load(tx, actor, itemID)
		if err != nil {
			return err
		}
		if upd.Name != nil {
			current.Name = *upd.Name
		}
		if upd.Category != nil {
			current.Category = *upd.Category
		}
		if upd.Model != nil {
			current.Model = *upd.Model
		}
		if upd.CostPrice != nil {
			current.CostPrice = *upd.CostPrice
		}
		if upd.SellingPrice != nil {
			current.SellingPrice = *upd.SellingPrice
		}
		if upd.Quantity != nil {
			current.Quantity = *upd.Quantity
		}
		current.UpdatedAt = time.Now()
		result = current
		return tx.Set(Collection, current.ID, current)
	})
	if err != nil {
		return Item{}, err
	}
	return result, nil
}

// SoftDelete marks a store item deleted. Quantity is untouched so the
// record can be restored intact.
func (s *Service) SoftDelete(ctx context.Context, actor Actor, itemID string) (Item, error) {
	var result Item
	err := s.store.RunTransaction(ctx, func(tx remote.Tx) error {
		current, err := s.load(tx, actor, itemID)
		if err != nil {
			return err
		}
		if current.Status != StatusStore {
			return ErrWrongStatus
		}
		now := time.Now()
		current.Status = StatusDeleted
		current.DeletedAt = &now
		current.UpdatedAt = now
		result = current
		return tx.Set(Collection, current.ID, current)
	})
	if err != nil {
		return Item{}, err
	}
	return result, nil
}

// RestoreFromDeleted moves a soft-deleted item back to store.
func (s *Service) RestoreFromDeleted(ctx context.Context, actor Actor, itemID string) (Item, error) {
	var result Item
	err := s.store.RunTransaction(ctx, func(tx remote.Tx) error {
		current, err := s.load(tx, actor, itemID)
		if err != nil {
			return err
		}
		if current.Status != StatusDeleted {
			return ErrWrongStatus
		}
		current.Status = StatusStore
		current.DeletedAt = nil
		current.UpdatedAt = time.Now()
		result = current
		return tx.Set(Collection, current.ID, current)
	})
	if err != nil {
		return Item{}, err
	}
	return result, nil
}

// HardDelete permanently removes an item. There is no undo.
func (s *Service) HardDelete(ctx context.Context, actor Actor, itemID string) error {
	return s.store.RunTransaction(ctx, func(tx remote.Tx) error {
		if _, err := s.load(tx, actor, itemID); err != nil {
			return err
		}
		return tx.Delete(Collection, itemID)
	})
}

// load reads an item inside a transaction and enforces ownership.
func (s *Service) load(tx remote.Tx, actor Actor, itemID string) (Item, error) {
	doc, err := tx.Get(Collection, itemID)
	if errors.Is(err, remote.ErrNotFound) {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, err
	}
	current, err := FromDoc(doc)
	if err != nil {
		return Item{}, err
	}
	if current.BusinessID != actor.BusinessID {
		return Item{}, ErrBusinessMismatch
	}
	if !actor.IsAdmin() && current.BranchID != actor.BranchID {
		return Item{}, ErrBranchMismatch
	}
	return current, nil
}

// loadForMove loads the live source for a quantity-moving transition and
// re-validates status and quantity against current remote state, which is
// what keeps at-least-once replay from double-applying.
func (s *Service) loadForMove(tx remote.Tx, actor Actor, itemID string, want Status, qty int) (Item, error) {
	current, err := s.load(tx, actor, itemID)
	if err != nil {
		return Item{}, err
	}
	if current.Status != want {
		return Item{}, ErrWrongStatus
	}
	if current.Quantity < qty {
		return Item{}, ErrInsufficientQuantity
	}
	return current, nil
}

// shrinkSource decrements the source record, deleting it outright when
// the move exhausts it.
func (s *Service) shrinkSource(tx remote.Tx, current Item, qty int, now time.Time) error {
	if current.Quantity == qty {
		return tx.Delete(Collection, current.ID)
	}
	current.Quantity -= qty
	current.UpdatedAt = now
	return tx.Set(Collection, current.ID, current)
}
