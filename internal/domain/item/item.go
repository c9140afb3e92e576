package item

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Collection is the remote and local collection inventory items live in.
const Collection = "products"

var (
	ErrNameRequired         = errors.New("product name is required")
	ErrBranchRequired       = errors.New("branch is required")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrInvalidPrice         = errors.New("price must be positive")
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrBranchMismatch       = errors.New("item belongs to another branch")
	ErrBusinessMismatch     = errors.New("item belongs to another business")
	ErrDeadlinePassed       = errors.New("return deadline has passed")
	ErrWrongStatus          = errors.New("item is not in the required status")
	ErrNotFound             = errors.New("item not found")
)

// Status is an item's lifecycle state.
type Status string

const (
	StatusStore    Status = "store"
	StatusSold     Status = "sold"
	StatusRestored Status = "restored"
	StatusDeleted  Status = "deleted"
)

// Roles understood by the lifecycle permission checks.
const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// Actor identifies who is performing a mutation. It is passed explicitly
// to every lifecycle call; there is no ambient current-user state.
type Actor struct {
	UserID     string `json:"user_id"`
	Role       string `json:"role"`
	BranchID   string `json:"branch_id"`
	BusinessID string `json:"business_id"`
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// Item is one inventory record. Every transition that derives a new
// record copies the source first and then overrides only the fields the
// transition owns, so embedded history (original add date, cost price,
// restore comment) survives status changes.
type Item struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Category     string `json:"category"`
	Model        string `json:"model,omitempty"`
	CostPrice    int64  `json:"cost_price"`
	SellingPrice int64  `json:"selling_price,omitempty"`
	Quantity     int    `json:"quantity"`
	BranchID     string `json:"branch_id"`
	BusinessID   string `json:"business_id"`
	Status       Status `json:"status"`

	AddedAt    time.Time  `json:"added_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	SoldAt     *time.Time `json:"sold_at,omitempty"`
	RestoredAt *time.Time `json:"restored_at,omitempty"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`

	RestoreComment string     `json:"restore_comment,omitempty"`
	Deadline       *time.Time `json:"deadline,omitempty"`

	// Set only on sold records produced by reselling a restored item.
	Profit int64 `json:"profit,omitempty"`
	Loss   int64 `json:"loss,omitempty"`
}

// NaturalKey is the case- and whitespace-insensitive identity used by the
// add upsert: two store items with the same key in the same business and
// branch are the same product.
func (i Item) NaturalKey() string {
	return strings.Join([]string{
		normalize(i.Name),
		normalize(i.Category),
		normalize(i.Model),
		strconv.FormatInt(i.CostPrice, 10),
	}, "|")
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Update carries the mutable attributes of updateProduct. Nil fields are
// left untouched.
type Update struct {
	Name         *string `json:"name,omitempty"`
	Category     *string `json:"category,omitempty"`
	Model        *string `json:"model,omitempty"`
	CostPrice    *int64  `json:"cost_price,omitempty"`
	SellingPrice *int64  `json:"selling_price,omitempty"`
	Quantity     *int    `json:"quantity,omitempty"`
}

// FromDoc decodes a remote document into an Item.
func FromDoc(doc json.RawMessage) (Item, error) {
	var it Item
	if err := json.Unmarshal(doc, &it); err != nil {
		return Item{}, err
	}
	return it, nil
}
