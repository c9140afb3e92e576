package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/example/pos-sync/internal/domain/item"
	"github.com/example/pos-sync/internal/remote"
)

// Collections for tenant records.
const (
	CollectionBusinesses = "businesses"
	CollectionBranches   = "branches"
	CollectionUsers      = "users"
)

var (
	ErrNotFound    = errors.New("business not found")
	ErrNotAdmin    = errors.New("only a business admin may do this")
	ErrWrongTenant = errors.New("record belongs to another business")
)

// Business is the tenant root; every record in the system carries its ID.
type Business struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Branch is a physical location under a business.
type Branch struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"business_id"`
	Name       string    `json:"name"`
	Location   string    `json:"location,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// User is a staff member or admin scoped to a business and, for staff, a
// branch.
type User struct {
	ID           string    `json:"id"`
	BusinessID   string    `json:"business_id"`
	BranchID     string    `json:"branch_id,omitempty"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"password_hash,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// BusinessUpdate carries the mutable business attributes. Nil fields are
// left untouched.
type BusinessUpdate struct {
	Name    *string `json:"name,omitempty"`
	Email   *string `json:"email,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Address *string `json:"address,omitempty"`
}

// Service applies tenant mutations against the remote store.
type Service struct {
	store remote.Store
}

func NewService(store remote.Store) *Service {
	return &Service{store: store}
}

// UpdateBusiness rewrites the business profile. Admin only, own tenant
// only.
func (s *Service) UpdateBusiness(ctx context.Context, actor item.Actor, businessID string, upd BusinessUpdate) (Business, error) {
	if !actor.IsAdmin() {
		return Business{}, ErrNotAdmin
	}
	if actor.BusinessID != businessID {
		return Business{}, ErrWrongTenant
	}

	var result Business
	err := s.store.RunTransaction(ctx, func(tx remote.Tx) error {
		doc, err := tx.Get(CollectionBusinesses, businessID)
		if errors.Is(err, remote.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var biz Business
		if err := json.Unmarshal(doc, &biz); err != nil {
			return err
		}
		if upd.Name != nil {
			biz.Name = *upd.Name
		}
		if upd.Email != nil {
			biz.Email = *upd.Email
		}
		if upd.Phone != nil {
			biz.Phone = *upd.Phone
		}
		if upd.Address != nil {
			biz.Address = *upd.Address
		}
		biz.UpdatedAt = time.Now()
		result = biz
		return tx.Set(CollectionBusinesses, biz.ID, biz)
	})
	if err != nil {
		return Business{}, err
	}
	return result, nil
}
