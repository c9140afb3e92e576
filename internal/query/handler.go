package query

import (
	"encoding/json"
	"log"
	"sort"

	"github.com/example/pos-sync/internal/domain/item"
	"github.com/example/pos-sync/internal/domain/tenant"
	"github.com/example/pos-sync/internal/localstore"
)

// Handler serves reads from the local cache, so queries keep working
// while offline. The cache is refreshed by the sync engine and by direct
// online mutations.
type Handler struct {
	local localstore.Store
}

func NewHandler(local localstore.Store) *Handler {
	return &Handler{local: local}
}

// GetProduct returns one cached item scoped to the actor's business.
func (h *Handler) GetProduct(actor item.Actor, id string) (item.Item, bool) {
	rec, ok := h.local.Get(item.Collection, id)
	if !ok {
		return item.Item{}, false
	}
	it, err := item.FromDoc(rec.Data)
	if err != nil {
		log.Printf("[Query] decode product %s: %v", id, err)
		return item.Item{}, false
	}
	if it.BusinessID != actor.BusinessID {
		return item.Item{}, false
	}
	return it, true
}

// ListProducts returns the actor's items, optionally filtered by status,
// newest first. Staff only see their own branch.
func (h *Handler) ListProducts(actor item.Actor, status item.Status) []item.Item {
	var recs []localstore.Record
	if status != "" {
		recs = h.local.QueryByIndex(item.Collection, localstore.IndexStatus, string(status))
	} else {
		recs = h.local.QueryByIndex(item.Collection, localstore.IndexBusiness, actor.BusinessID)
	}

	var items []item.Item
	for _, rec := range recs {
		it, err := item.FromDoc(rec.Data)
		if err != nil {
			log.Printf("[Query] decode product %s: %v", rec.ID, err)
			continue
		}
		if it.BusinessID != actor.BusinessID {
			continue
		}
		if !actor.IsAdmin() && it.BranchID != actor.BranchID {
			continue
		}
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].AddedAt.After(items[j].AddedAt)
	})
	return items
}

// GetBusiness returns the cached business profile.
func (h *Handler) GetBusiness(actor item.Actor) (tenant.Business, bool) {
	rec, ok := h.local.Get(localstore.CollectionBusinesses, actor.BusinessID)
	if !ok {
		return tenant.Business{}, false
	}
	var biz tenant.Business
	if err := json.Unmarshal(rec.Data, &biz); err != nil {
		log.Printf("[Query] decode business %s: %v", actor.BusinessID, err)
		return tenant.Business{}, false
	}
	return biz, true
}

// ListBranches returns the cached branches of the actor's business.
func (h *Handler) ListBranches(actor item.Actor) []tenant.Branch {
	var out []tenant.Branch
	for _, rec := range h.local.QueryByIndex(localstore.CollectionBranches, localstore.IndexBusiness, actor.BusinessID) {
		var br tenant.Branch
		if err := json.Unmarshal(rec.Data, &br); err != nil {
			log.Printf("[Query] decode branch %s: %v", rec.ID, err)
			continue
		}
		out = append(out, br)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetUser returns a cached user by ID.
func (h *Handler) GetUser(id string) (tenant.User, bool) {
	rec, ok := h.local.Get(localstore.CollectionUsers, id)
	if !ok {
		return tenant.User{}, false
	}
	var u tenant.User
	if err := json.Unmarshal(rec.Data, &u); err != nil {
		log.Printf("[Query] decode user %s: %v", id, err)
		return tenant.User{}, false
	}
	return u, true
}

// FindUserByEmail scans the cached users for a login match.
func (h *Handler) FindUserByEmail(email string) (tenant.User, bool) {
	for _, rec := range h.local.List(localstore.CollectionUsers) {
		var u tenant.User
		if err := json.Unmarshal(rec.Data, &u); err != nil {
			continue
		}
		if u.Email == email {
			return u, true
		}
	}
	return tenant.User{}, false
}
