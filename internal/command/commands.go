package command

import (
	"time"

	"github.com/example/pos-sync/internal/domain/item"
	"github.com/example/pos-sync/internal/domain/tenant"
)

// Product commands

type AddProduct struct {
	Name         string `json:"name"`
	Category     string `json:"category"`
	Model        string `json:"model,omitempty"`
	CostPrice    int64  `json:"cost_price"`
	SellingPrice int64  `json:"selling_price,omitempty"`
	Quantity     int    `json:"quantity"`
	BranchID     string `json:"branch_id"`
}

type UpdateProduct struct {
	ItemID string      `json:"item_id"`
	Update item.Update `json:"update"`
}

type DeleteProduct struct {
	ItemID string `json:"item_id"`
}

type SellProduct struct {
	ItemID   string     `json:"item_id"`
	Quantity int        `json:"quantity"`
	Price    int64      `json:"price"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

type RestoreProduct struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
	Comment  string `json:"comment"`
}

type SellRestoredProduct struct {
	ItemID   string     `json:"item_id"`
	Quantity int        `json:"quantity"`
	Price    int64      `json:"price"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

type RestoreDeletedProduct struct {
	ItemID string `json:"item_id"`
}

type HardDeleteProduct struct {
	ItemID string `json:"item_id"`
}

// Tenant commands

type UpdateBusiness struct {
	BusinessID string                `json:"business_id"`
	Update     tenant.BusinessUpdate `json:"update"`
}
