package api

import (
	"net/http"
	"strings"

	"github.com/example/pos-sync/internal/api/middleware"
	"github.com/example/pos-sync/internal/auth"
	"github.com/example/pos-sync/internal/domain/item"
)

func NewRouter(handlers *Handlers, authHandlers *AuthHandlers, jwtService *auth.JWTService) http.Handler {
	mux := http.NewServeMux()

	requireAuth := middleware.AuthMiddleware(jwtService)
	requireAdmin := func(next http.Handler) http.Handler {
		return requireAuth(middleware.RequireRole(item.RoleAdmin)(next))
	}

	// Auth
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		authHandlers.Login(w, r)
	})

	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		authHandlers.Logout(w, r)
	})

	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		authHandlers.Refresh(w, r)
	})

	mux.Handle("/auth/me", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		authHandlers.Me(w, r)
	})))

	// Products
	mux.Handle("/products", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetProducts(w, r)
		case http.MethodPost:
			handlers.CreateProduct(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	mux.Handle("/products/", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, action := splitAction(r.URL.Path)
		switch {
		case action == "" && r.Method == http.MethodGet:
			handlers.GetProduct(w, r)
		case action == "" && r.Method == http.MethodPut:
			handlers.UpdateProduct(w, r)
		case action == "" && r.Method == http.MethodDelete:
			handlers.DeleteProduct(w, r)
		case action == "sell" && r.Method == http.MethodPost:
			handlers.SellProduct(w, r)
		case action == "restore" && r.Method == http.MethodPost:
			handlers.RestoreProduct(w, r)
		case action == "resell" && r.Method == http.MethodPost:
			handlers.SellRestoredProduct(w, r)
		case action == "restore-deleted" && r.Method == http.MethodPost:
			handlers.RestoreDeletedProduct(w, r)
		case action == "permanent" && r.Method == http.MethodDelete:
			handlers.HardDeleteProduct(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	// Business
	mux.Handle("/business", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetBusiness(w, r)
		case http.MethodPut:
			requireAdmin(http.HandlerFunc(handlers.UpdateBusiness)).ServeHTTP(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	mux.Handle("/branches", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handlers.GetBranches(w, r)
	})))

	// Sync
	mux.Handle("/sync/pending", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handlers.GetPendingOperations(w, r)
	})))

	mux.Handle("/sync/drain", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handlers.DrainQueue(w, r)
	})))

	// Connectivity
	mux.Handle("/connectivity", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetConnectivity(w, r)
		case http.MethodPut:
			handlers.SetConnectivity(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	// Health
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handlers.Health(w, r)
	})

	return withLogging(mux)
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		println("[API]", r.Method, strings.TrimSuffix(r.URL.Path, "/"))
		next.ServeHTTP(w, r)
	})
}
