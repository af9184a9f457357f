/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Structured request logging (zerolog)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend
  5. Access:     X-User-Email gate on /api (see middleware.go)

ROUTE GROUPS:
  /healthz                    Liveness check
  /api/profiles/*             Profiles, authorizations, balances
  /api/entries/*              Service entries
  /api/scenarios/*            Demo scenarios (disabled unless configured)
  /*                          Static files (frontend)

SHUTDOWN:
  NewServer roots every request context in a base context that Shutdown
  cancels, so open balance streams end instead of holding Shutdown open.

STATIC FILE SERVING:
  Serves the built frontend from web/dist/ when present.
  Falls back to index.html for client-side routing.

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Request logging and access gate
  - cmd/casebook/main.go: Server startup
*/
package api

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", UserHeader},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(RequireUser(h.Access))

		r.Route("/profiles", func(r chi.Router) {
			r.Get("/", h.ListProfiles)
			r.Post("/", h.CreateProfile)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetProfile)
				r.Put("/", h.UpdateProfile)
				r.Delete("/", h.DeleteProfile)
				r.Post("/migrate-legacy", h.MigrateLegacy)

				r.Get("/balance", h.GetBalance)
				r.Post("/balance/preview", h.PreviewBalance)
				r.Get("/balance/stream", h.StreamBalance)
				r.Get("/summary", h.GetSummary)
				r.Get("/audit", h.GetAudit)

				r.Route("/authorizations", func(r chi.Router) {
					r.Post("/", h.AddAuthorization)
					r.Put("/{authID}", h.EditAuthorization)
					r.Delete("/{authID}", h.DeleteAuthorization)
					r.Post("/{authID}/archive", h.ArchiveAuthorization)
					r.Post("/{authID}/unarchive", h.UnarchiveAuthorization)
					r.Post("/{authID}/adjustments", h.AddAdjustment)
					r.Delete("/{authID}/adjustments/{adjID}", h.RemoveAdjustment)
				})
			})
		})

		r.Route("/entries", func(r chi.Router) {
			r.Get("/", h.ListEntries)
			r.Post("/", h.CreateEntry)
			r.Delete("/{id}", h.DeleteEntry)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	// Serve static files (frontend build)
	staticDir := "./web/dist"
	if _, err := os.Stat(staticDir); os.IsNotExist(err) {
		exe, _ := os.Executable()
		staticDir = filepath.Join(filepath.Dir(exe), "web", "dist")
	}

	if _, err := os.Stat(staticDir); err == nil {
		fileServer := http.FileServer(http.Dir(staticDir))
		r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
			fullPath := filepath.Join(staticDir, r.URL.Path)
			if _, err := os.Stat(fullPath); os.IsNotExist(err) {
				// SPA routing: serve index.html
				http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
				return
			}
			fileServer.ServeHTTP(w, r)
		})
	}

	return r
}

// NewServer returns an http.Server for handler on addr. Request contexts are
// cancelled as soon as Shutdown is called.
func NewServer(addr string, handler http.Handler) *http.Server {
	base, cancel := context.WithCancel(context.Background())
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return base },
	}
	server.RegisterOnShutdown(cancel)
	return server
}
