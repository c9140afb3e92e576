package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/example/pos-sync/internal/api/middleware"
	"github.com/example/pos-sync/internal/command"
	"github.com/example/pos-sync/internal/domain/item"
	"github.com/example/pos-sync/internal/domain/tenant"
	"github.com/example/pos-sync/internal/query"
	"github.com/example/pos-sync/internal/queue"
	"github.com/example/pos-sync/internal/syncer"
)

type Handlers struct {
	cmdHandler   *command.Handler
	queryHandler *query.Handler
	queue        *queue.Queue
	engine       *syncer.Engine
	monitor      *syncer.Monitor
}

func NewHandlers(
	cmdHandler *command.Handler,
	queryHandler *query.Handler,
	q *queue.Queue,
	engine *syncer.Engine,
	monitor *syncer.Monitor,
) *Handlers {
	return &Handlers{
		cmdHandler:   cmdHandler,
		queryHandler: queryHandler,
		queue:        q,
		engine:       engine,
		monitor:      monitor,
	}
}

// Product Handlers

func (h *Handlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		respondJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var cmd command.AddProduct
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		respondJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.cmdHandler.AddProduct(r.Context(), actor, cmd)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, created)
}

func (h *Handlers) GetProducts(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		respondJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	status := item.Status(r.URL.Query().Get("status"))
	products := h.queryHandler.ListProducts(actor, status)
	if products == nil {
		products = []item.Item{}
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		respondJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id := extractPathParam(r.URL.Path, "/products/")
	product, found := h.queryHandler.GetProduct(actor, id)
	if !found {
		respondJSONError(w, "product not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (h *Handlers) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		respondJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id := extractPathParam(r.URL.Path, "/products/")

	var upd item.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		respondJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	updated, err := h.cmdHandler.UpdateProduct(r.Context(), actor, command.UpdateProduct{ItemID: id, Update: upd})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, updated)
}

func (h *Handlers) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		respondJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id := extractPathParam(r.URL.Path, "/products/")

	deleted, err := h.cmdHandler.DeleteProduct(r.Context(), actor, command.DeleteProduct{ItemID: id})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, deleted)
}

func (h *Handlers) SellProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		respondJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, _ := splitAction(r.URL.Path)

	var req struct {
		Quantity int        `json:"quantity"`
		Price    int64      `json:"price"`
		Deadline *time.Time `json:"deadline,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	sold, err := h.cmdHandler.SellProduct(r.Context(), actor, command.SellProduct{
		ItemID:   id,
		Quantity: req.Quantity,
		Price:    req.Price,
		Deadline: req.Deadline,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, sold)
}

func (h *Handlers) RestoreProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		respondJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, _ := splitAction(r.URL.Path)

	var req struct {
		Quantity int    `json:"quantity"`
		Comment  string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	restored, err := h.cmdHandler.RestoreProduct(r.Context(), actor, command.RestoreProduct{
		ItemID:   id,
		Quantity: req.Quantity,
		Comment:  req.Comment,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, restored)
}

func (h *Handlers) SellRestoredProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		respondJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, _ := splitAction(r.URL.Path)

	var req struct {
		Quantity int        `json:"quantity"`
		Price    int64      `json:"price"`
		Deadline *time.Time `json:"deadline,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	sold, err := h.cmdHandler.SellRestoredProduct(r.Context(), actor, command.SellRestoredProduct{
		ItemID:   id,
		Quantity: req.Quantity,
		Price:    req.Price,
		Deadline: req.Deadline,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, sold)
}

func (h *Handlers) RestoreDeletedProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		respondJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, _ := splitAction(r.URL.Path)

	restored, err := h.cmdHandler.RestoreDeletedProduct(r.Context(), actor, command.RestoreDeletedProduct{ItemID: id})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, restored)
}

func (h *Handlers) HardDeleteProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		respondJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, _ := splitAction(r.URL.Path)

	if err := h.cmdHandler.HardDeleteProduct(r.Context(), actor, command.HardDeleteProduct{ItemID: id}); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Product permanently deleted"})
}

// Business Handlers

func (h *Handlers) GetBusiness(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		respondJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	biz, found := h.queryHandler.GetBusiness(actor)
	if !found {
		respondJSONError(w, "business not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, biz)
}

func (h *Handlers) UpdateBusiness(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		respondJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var upd tenant.BusinessUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		respondJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	biz, err := h.cmdHandler.UpdateBusiness(r.Context(), actor, command.UpdateBusiness{Update: upd})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, biz)
}

func (h *Handlers) GetBranches(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		respondJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	branches := h.queryHandler.ListBranches(actor)
	if branches == nil {
		branches = []tenant.Branch{}
	}
	respondJSON(w, http.StatusOK, branches)
}

// Sync Handlers

type pendingOperation struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	RetryCount  int       `json:"retry_count"`
	CreatedAt   time.Time `json:"created_at"`
}

func (h *Handlers) GetPendingOperations(w http.ResponseWriter, r *http.Request) {
	ops := h.queue.ListPending()
	out := make([]pendingOperation, 0, len(ops))
	for _, op := range ops {
		out = append(out, pendingOperation{
			ID:          op.ID,
			Type:        string(op.Type),
			Description: op.Type.Describe(),
			Status:      string(op.Status),
			RetryCount:  op.RetryCount,
			CreatedAt:   op.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"count":      len(out),
		"operations": out,
	})
}

func (h *Handlers) DrainQueue(w http.ResponseWriter, r *http.Request) {
	if !h.monitor.Online() {
		respondJSONError(w, "device is offline", http.StatusConflict)
		return
	}
	result := h.engine.Drain(r.Context())
	respondJSON(w, http.StatusOK, result)
}

// Connectivity Handlers

func (h *Handlers) GetConnectivity(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"online": h.monitor.Online()})
}

func (h *Handlers) SetConnectivity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Online bool `json:"online"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.monitor.SetOnline(req.Online)
	respondJSON(w, http.StatusOK, map[string]bool{"online": req.Online})
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"online":  h.monitor.Online(),
		"pending": h.queue.Count(),
	})
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondJSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// respondDomainError maps lifecycle and tenant errors onto HTTP statuses.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, item.ErrNotFound) || errors.Is(err, tenant.ErrNotFound):
		respondJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, item.ErrBranchMismatch) ||
		errors.Is(err, item.ErrBusinessMismatch) ||
		errors.Is(err, tenant.ErrNotAdmin) ||
		errors.Is(err, tenant.ErrWrongTenant):
		respondJSONError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, command.ErrRequiresConnection):
		respondJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, item.ErrNameRequired) ||
		errors.Is(err, item.ErrBranchRequired) ||
		errors.Is(err, item.ErrInvalidQuantity) ||
		errors.Is(err, item.ErrInvalidPrice) ||
		errors.Is(err, item.ErrInsufficientQuantity) ||
		errors.Is(err, item.ErrDeadlinePassed) ||
		errors.Is(err, item.ErrWrongStatus):
		respondJSONError(w, err.Error(), http.StatusBadRequest)
	default:
		respondJSONError(w, err.Error(), http.StatusInternalServerError)
	}
}

func extractPathParam(path, prefix string) string {
	return strings.TrimPrefix(path, prefix)
}

// splitAction breaks "/products/{id}/{action}" into its id and action.
func splitAction(path string) (id, action string) {
	rest := strings.TrimPrefix(path, "/products/")
	parts := strings.SplitN(rest, "/", 2)
	id = parts[0]
	if len(parts) == 2 {
		action = parts[1]
	}
	return id, action
}
