/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RealIP, RequestID: client address and a per-request id
  2. Request logging:   one structured line per request, id attached
  3. Recoverer:         panic recovery (500 instead of crash)
  4. Secure headers:    unrolled/secure, SSL redirect in production
  5. CORS:              cross-origin requests for the frontend
  6. Rate limit:        per-IP requests per minute (httprate)

ROUTE GROUPS:
  /healthz, /metrics       Public
  /media/stok-barang/*     Public, in-process images only
  /api/auth/login          Public
  /api/*                   Bearer token required
  /api/auth/register       Admin only
  /api/scenarios/*         Admin only, mounted when enabled

SEE ALSO:
  - handlers.go: Handler implementations
  - auth/middleware.go: Authenticate, RequireRole
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unrolled/secure"

	"github.com/dapurkue/stockledger/auth"
	"github.com/dapurkue/stockledger/inventory"
	"github.com/dapurkue/stockledger/logging"
)

type RouterOptions struct {
	Tokens      auth.TokenConfig
	CORSOrigins []string
	// RateLimit is requests per minute per client IP; 0 disables it.
	RateLimit  int
	Production bool
	Scenarios  bool
	// Gatherer backs /metrics; nil leaves the route out.
	Gatherer prometheus.Gatherer
	Logger   *logging.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(secureHeaders(opts.Production, log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if opts.RateLimit > 0 {
		r.Use(httprate.Limit(opts.RateLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	if h.images != nil {
		r.Get("/media/stok-barang/{name}", h.ServeImage)
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate(opts.Tokens))
			r.Use(actorLogger(log))

			// Auth routes
			r.Get("/auth/me", h.Me)
			r.With(auth.RequireRole(inventory.RoleAdmin)).Post("/auth/register", h.Register)

			// Product routes
			r.Route("/products", func(r chi.Router) {
				r.Get("/", h.ListProducts)
				r.Post("/", h.CreateProduct)
				r.Get("/low-stock", h.ListLowStock)
				r.Get("/code/{code}", h.GetProductByCode)
				r.Get("/{id}", h.GetProduct)
				r.Patch("/{id}", h.AdjustProduct)
				r.Delete("/{id}", h.DeleteProduct)
			})

			// Supplier routes
			r.Route("/suppliers", func(r chi.Router) {
				r.Get("/", h.ListSuppliers)
				r.Post("/", h.CreateSupplier)
				r.Get("/{id}", h.GetSupplier)
				r.Put("/{id}", h.UpdateSupplier)
				r.Delete("/{id}", h.DeleteSupplier)
			})

			// Ledger routes
			r.Route("/inbound", func(r chi.Router) {
				r.Get("/", h.ListInbound)
				r.Post("/", h.RecordInbound)
				r.Get("/{id}", h.GetInbound)
				r.Put("/{id}", h.UpdateInbound)
				r.Delete("/{id}", h.DeleteInbound)
			})
			r.Route("/outbound", func(r chi.Router) {
				r.Get("/", h.ListOutbound)
				r.Post("/", h.RecordOutbound)
				r.Get("/{id}", h.GetOutbound)
				r.Delete("/{id}", h.DeleteOutbound)
			})

			// Report routes
			r.Route("/reports", func(r chi.Router) {
				r.Get("/", h.GetReport)
				r.Get("/export.csv", h.ExportReportCSV)
				r.Get("/export.pdf", h.ExportReportPDF)
				r.Get("/stock", h.ListStock)
				r.Get("/stock.csv", h.ExportStockCSV)
			})
			r.Get("/dashboard", h.Dashboard)
			r.Get("/dashboard/events", h.DashboardEvents)

			r.Post("/uploads", h.Upload)

			// Catalog routes
			r.Post("/catalog/import", h.ImportCatalog)
			r.Get("/catalog/export", h.ExportCatalog)

			// Scenario routes
			if opts.Scenarios {
				r.Route("/scenarios", func(r chi.Router) {
					r.Use(auth.RequireRole(inventory.RoleAdmin))
					r.Get("/", h.ListScenarios)
					r.Get("/current", h.GetCurrentScenario)
					r.Post("/load", h.LoadScenario)
					r.Post("/reset", h.ResetDatabase)
				})
			}
		})
	})

	return r
}

// requestLogger logs one line per request with the chi request id.
func requestLogger(log *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := log.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(ctx))

			ctx = log.WithFields(ctx, map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
			})
			switch {
			case ww.Status() >= http.StatusInternalServerError:
				log.Warn(ctx, "request completed")
			default:
				log.Info(ctx, "request completed")
			}
		})
	}
}

// actorLogger adds the authenticated actor to the log context.
func actorLogger(log *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a, ok := auth.ActorFrom(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			ctx := log.WithActor(r.Context(), a.ID, string(a.Role))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func secureHeaders(production bool, log *logging.Logger) func(http.Handler) http.Handler {
	sec := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        production,
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:      !production,
	})
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := sec.Process(w, r); err != nil {
				log.Warn(log.WithField(r.Context(), "error", err.Error()), "secure headers blocked request")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
