package command

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/example/pos-sync/internal/domain/item"
	"github.com/example/pos-sync/internal/domain/tenant"
	"github.com/example/pos-sync/internal/localstore"
	"github.com/example/pos-sync/internal/queue"
	"github.com/example/pos-sync/internal/remote"
	"github.com/example/pos-sync/internal/syncer"
)

// ErrRequiresConnection marks operations that have no queued-replay path.
var ErrRequiresConnection = errors.New("operation requires a connection")

// Handler is the mutation gateway. Every command validates synchronously
// first; an invalid request is rejected before any queue entry or cache
// write exists. Valid commands either run directly against the remote
// store (online) or are applied optimistically to the local cache and
// enqueued for replay (offline).
type Handler struct {
	monitor *syncer.Monitor
	queue   *queue.Queue
	items   *item.Service
	tenants *tenant.Service
	remote  remote.Store
	local   localstore.Store
}

func NewHandler(
	monitor *syncer.Monitor,
	q *queue.Queue,
	items *item.Service,
	tenants *tenant.Service,
	remoteStore remote.Store,
	local localstore.Store,
) *Handler {
	return &Handler{
		monitor: monitor,
		queue:   q,
		items:   items,
		tenants: tenants,
		remote:  remoteStore,
		local:   local,
	}
}

// AddProduct creates (or tops up) a store item.
func (h *Handler) AddProduct(ctx context.Context, actor item.Actor, cmd AddProduct) (item.Item, error) {
	req := item.AddRequest{
		Name:         cmd.Name,
		Category:     cmd.Category,
		Model:        cmd.Model,
		CostPrice:    cmd.CostPrice,
		SellingPrice: cmd.SellingPrice,
		Quantity:     cmd.Quantity,
		BranchID:     cmd.BranchID,
	}
	if req.BranchID == "" {
		req.BranchID = actor.BranchID
	}
	if err := item.ValidateAdd(actor, req); err != nil {
		return item.Item{}, err
	}

	if h.monitor.Online() {
		created, err := h.items.Add(ctx, actor, req)
		if err != nil {
			return item.Item{}, err
		}
		h.putItem(created)
		return created, nil
	}

	// Offline: preset the ID so the provisional cache record and the
	// replayed remote record agree.
	req.ID = uuid.New().String()
	provisional := provisionalItem(actor, req)
	if _, err := h.queue.Enqueue(queue.AddProductPayload{Actor: actor, Req: req}); err != nil {
		return item.Item{}, err
	}
	h.putItem(provisional)
	return provisional, nil
}

// SellProduct moves quantity from a store item into a new sold record.
func (h *Handler) SellProduct(ctx context.Context, actor item.Actor, cmd SellProduct) (item.Item, error) {
	source, err := h.loadItem(ctx, actor, cmd.ItemID)
	if err != nil {
		return item.Item{}, err
	}
	if source.Status != item.StatusStore {
		return item.Item{}, item.ErrWrongStatus
	}
	if err := item.ValidateSellPrice(cmd.Price); err != nil {
		return item.Item{}, err
	}
	if err := item.ValidateMove(actor, source, cmd.Quantity); err != nil {
		return item.Item{}, err
	}

	req := item.SellRequest{Source: source, Quantity: cmd.Quantity, Price: cmd.Price, Deadline: cmd.Deadline}

	if h.monitor.Online() {
		created, err := h.items.Sell(ctx, actor, req)
		if err != nil {
			return item.Item{}, err
		}
		h.putItem(created)
		h.shrinkLocal(source, cmd.Quantity)
		return created, nil
	}

	req.NewID = uuid.New().String()
	if _, err := h.queue.Enqueue(queue.SellProductPayload{Actor: actor, Req: req}); err != nil {
		return item.Item{}, err
	}
	provisional := provisionalMove(source, req.NewID, item.StatusSold, cmd.Quantity)
	provisional.SellingPrice = cmd.Price
	provisional.Deadline = cmd.Deadline
	h.putItem(provisional)
	h.shrinkLocal(source, cmd.Quantity)
	return provisional, nil
}

// RestoreProduct moves quantity from a sold record back to restored.
func (h *Handler) RestoreProduct(ctx context.Context, actor item.Actor, cmd RestoreProduct) (item.Item, error) {
	source, err := h.loadItem(ctx, actor, cmd.ItemID)
	if err != nil {
		return item.Item{}, err
	}
	if source.Status != item.StatusSold {
		return item.Item{}, item.ErrWrongStatus
	}
	if err := item.ValidateMove(actor, source, cmd.Quantity); err != nil {
		return item.Item{}, err
	}
	if err := item.ValidateDeadline(source, time.Now()); err != nil {
		return item.Item{}, err
	}

	req := item.RestoreRequest{Source: source, Quantity: cmd.Quantity, Comment: cmd.Comment}

	if h.monitor.Online() {
		created, err := h.items.Restore(ctx, actor, req)
		if err != nil {
			return item.Item{}, err
		}
		h.putItem(created)
		h.shrinkLocal(source, cmd.Quantity)
		return created, nil
	}

	req.NewID = uuid.New().String()
	if _, err := h.queue.Enqueue(queue.RestoreProductPayload{Actor: actor, Req: req}); err != nil {
		return item.Item{}, err
	}
	provisional := provisionalMove(source, req.NewID, item.StatusRestored, cmd.Quantity)
	provisional.RestoreComment = cmd.Comment
	provisional.Deadline = nil
	h.putItem(provisional)
	h.shrinkLocal(source, cmd.Quantity)
	return provisional, nil
}

// SellRestoredProduct re-sells quantity out of a restored record.
func (h *Handler) SellRestoredProduct(ctx context.Context, actor item.Actor, cmd SellRestoredProduct) (item.Item, error) {
	source, err := h.loadItem(ctx, actor, cmd.ItemID)
	if err != nil {
		return item.Item{}, err
	}
	if source.Status != item.StatusRestored {
		return item.Item{}, item.ErrWrongStatus
	}
	if err := item.ValidateSellPrice(cmd.Price); err != nil {
		return item.Item{}, err
	}
	if err := item.ValidateMove(actor, source, cmd.Quantity); err != nil {
		return item.Item{}, err
	}

	req := item.ResellRequest{Source: source, Quantity: cmd.Quantity, Price: cmd.Price, Deadline: cmd.Deadline}

	if h.monitor.Online() {
		created, err := h.items.Resell(ctx, actor, req)
		if err != nil {
			return item.Item{}, err
		}
		h.putItem(created)
		h.shrinkLocal(source, cmd.Quantity)
		return created, nil
	}

	req.NewID = uuid.New().String()
	if _, err := h.queue.Enqueue(queue.SellRestoredPayload{Actor: actor, Req: req}); err != nil {
		return item.Item{}, err
	}
	provisional := provisionalMove(source, req.NewID, item.StatusSold, cmd.Quantity)
	provisional.SellingPrice = cmd.Price
	provisional.Deadline = cmd.Deadline
	margin := (cmd.Price - source.CostPrice) * int64(cmd.Quantity)
	if margin >= 0 {
		provisional.Profit = margin
	} else {
		provisional.Loss = -margin
	}
	h.putItem(provisional)
	h.shrinkLocal(source, cmd.Quantity)
	return provisional, nil
}

// UpdateProduct rewrites mutable product attributes.
func (h *Handler) UpdateProduct(ctx context.Context, actor item.Actor, cmd UpdateProduct) (item.Item, error) {
	source, err := h.loadItem(ctx, actor, cmd.ItemID)
	if err != nil {
		return item.Item{}, err
	}
	upd := cmd.Update
	if upd.CostPrice != nil && *upd.CostPrice <= 0 {
		return item.Item{}, item.ErrInvalidPrice
	}
	if upd.Quantity != nil && *upd.Quantity < 0 {
		return item.Item{}, item.ErrInvalidQuantity
	}

	if h.monitor.Online() {
		updated, err := h.items.Update(ctx, actor, cmd.ItemID, upd)
		if err != nil {
			return item.Item{}, err
		}
		h.putItem(updated)
		return updated, nil
	}

	if _, err := h.queue.Enqueue(queue.UpdateProductPayload{Actor: actor, ItemID: cmd.ItemID, Update: upd}); err != nil {
		return item.Item{}, err
	}
	merged := applyUpdate(source, upd)
	h.putItem(merged)
	return merged, nil
}

// DeleteProduct soft-deletes a store item.
func (h *Handler) DeleteProduct(ctx context.Context, actor item.Actor, cmd DeleteProduct) (item.Item, error) {
	source, err := h.loadItem(ctx, actor, cmd.ItemID)
	if err != nil {
		return item.Item{}, err
	}
	if source.Status != item.StatusStore {
		return item.Item{}, item.ErrWrongStatus
	}

	if h.monitor.Online() {
		deleted, err := h.items.SoftDelete(ctx, actor, cmd.ItemID)
		if err != nil {
			return item.Item{}, err
		}
		h.putItem(deleted)
		return deleted, nil
	}

	if _, err := h.queue.Enqueue(queue.DeleteProductPayload{Actor: actor, Item: source}); err != nil {
		return item.Item{}, err
	}
	now := time.Now()
	source.Status = item.StatusDeleted
	source.DeletedAt = &now
	source.UpdatedAt = now
	h.putItem(source)
	return source, nil
}

// RestoreDeletedProduct moves a soft-deleted item back to store. There is
// no queued-replay path for this; it requires a connection.
func (h *Handler) RestoreDeletedProduct(ctx context.Context, actor item.Actor, cmd RestoreDeletedProduct) (item.Item, error) {
	if !h.monitor.Online() {
		return item.Item{}, ErrRequiresConnection
	}
	restored, err := h.items.RestoreFromDeleted(ctx, actor, cmd.ItemID)
	if err != nil {
		return item.Item{}, err
	}
	h.putItem(restored)
	return restored, nil
}

// HardDeleteProduct permanently removes an item. Connection required.
func (h *Handler) HardDeleteProduct(ctx context.Context, actor item.Actor, cmd HardDeleteProduct) error {
	if !h.monitor.Online() {
		return ErrRequiresConnection
	}
	if err := h.items.HardDelete(ctx, actor, cmd.ItemID); err != nil {
		return err
	}
	h.local.Delete(item.Collection, cmd.ItemID)
	return nil
}

// UpdateBusiness rewrites the business profile.
func (h *Handler) UpdateBusiness(ctx context.Context, actor item.Actor, cmd UpdateBusiness) (tenant.Business, error) {
	if !actor.IsAdmin() {
		return tenant.Business{}, tenant.ErrNotAdmin
	}
	if cmd.BusinessID == "" {
		cmd.BusinessID = actor.BusinessID
	}
	if cmd.BusinessID != actor.BusinessID {
		return tenant.Business{}, tenant.ErrWrongTenant
	}

	if h.monitor.Online() {
		biz, err := h.tenants.UpdateBusiness(ctx, actor, cmd.BusinessID, cmd.Update)
		if err != nil {
			return tenant.Business{}, err
		}
		h.putBusiness(biz)
		return biz, nil
	}

	if _, err := h.queue.Enqueue(queue.UpdateBusinessPayload{
		Actor:      actor,
		BusinessID: cmd.BusinessID,
		Update:     cmd.Update,
	}); err != nil {
		return tenant.Business{}, err
	}
	biz := h.mergeBusinessLocally(cmd.BusinessID, cmd.Update)
	return biz, nil
}

// loadItem fetches the current source snapshot: from the remote store
// when online, from the local cache when offline.
func (h *Handler) loadItem(ctx context.Context, actor item.Actor, itemID string) (item.Item, error) {
	if h.monitor.Online() {
		doc, err := h.remote.Get(ctx, item.Collection, itemID)
		if errors.Is(err, remote.ErrNotFound) {
			return item.Item{}, item.ErrNotFound
		}
		if err != nil {
			return item.Item{}, err
		}
		it, err := item.FromDoc(doc)
		if err != nil {
			return item.Item{}, err
		}
		return checkOwnership(actor, it)
	}

	rec, ok := h.local.Get(item.Collection, itemID)
	if !ok {
		return item.Item{}, item.ErrNotFound
	}
	it, err := item.FromDoc(rec.Data)
	if err != nil {
		return item.Item{}, err
	}
	return checkOwnership(actor, it)
}

func checkOwnership(actor item.Actor, it item.Item) (item.Item, error) {
	if it.BusinessID != actor.BusinessID {
		return item.Item{}, item.ErrBusinessMismatch
	}
	if !actor.IsAdmin() && it.BranchID != actor.BranchID {
		return item.Item{}, item.ErrBranchMismatch
	}
	return it, nil
}

func (h *Handler) putItem(it item.Item) {
	rec, err := localstore.NewRecord(it.ID, it)
	if err != nil {
		log.Printf("[Command] cache %s: %v", it.ID, err)
		return
	}
	h.local.Put(item.Collection, rec)
}

// shrinkLocal mirrors a quantity move onto the cached source record.
func (h *Handler) shrinkLocal(source item.Item, qty int) {
	if source.Quantity == qty {
		h.local.Delete(item.Collection, source.ID)
		return
	}
	source.Quantity -= qty
	source.UpdatedAt = time.Now()
	h.putItem(source)
}

func (h *Handler) putBusiness(biz tenant.Business) {
	rec, err := localstore.NewRecord(biz.ID, biz)
	if err != nil {
		log.Printf("[Command] cache business %s: %v", biz.ID, err)
		return
	}
	h.local.Put(localstore.CollectionBusinesses, rec)
}

func (h *Handler) mergeBusinessLocally(businessID string, upd tenant.BusinessUpdate) tenant.Business {
	biz := tenant.Business{ID: businessID}
	if rec, ok := h.local.Get(localstore.CollectionBusinesses, businessID); ok {
		_ = json.Unmarshal(rec.Data, &biz)
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
	h.putBusiness(biz)
	return biz
}

func provisionalItem(actor item.Actor, req item.AddRequest) item.Item {
	now := time.Now()
	return item.Item{
		ID:           req.ID,
		Name:         req.Name,
		Category:     req.Category,
		Model:        req.Model,
		CostPrice:    req.CostPrice,
		SellingPrice: req.SellingPrice,
		Quantity:     req.Quantity,
		BranchID:     req.BranchID,
		BusinessID:   actor.BusinessID,
		Status:       item.StatusStore,
		AddedAt:      now,
		UpdatedAt:    now,
	}
}

// provisionalMove snapshots the source and rewrites the fields the
// transition owns, same as the remote-side lifecycle does.
func provisionalMove(source item.Item, newID string, status item.Status, qty int) item.Item {
	now := time.Now()
	created := source
	created.ID = newID
	created.Status = status
	created.Quantity = qty
	created.UpdatedAt = now
	switch status {
	case item.StatusSold:
		created.SoldAt = &now
	case item.StatusRestored:
		created.RestoredAt = &now
	}
	return created
}

func applyUpdate(source item.Item, upd item.Update) item.Item {
	if upd.Name != nil {
		source.Name = *upd.Name
	}
	if upd.Category != nil {
		source.Category = *upd.Category
	}
	if upd.Model != nil {
		source.Model = *upd.Model
	}
	if upd.CostPrice != nil {
		source.CostPrice = *upd.CostPrice
	}
	if upd.SellingPrice != nil {
		source.SellingPrice = *upd.SellingPrice
	}
	if upd.Quantity != nil {
		source.Quantity = *upd.Quantity
	}
	source.UpdatedAt = time.Now()
	return source
}
