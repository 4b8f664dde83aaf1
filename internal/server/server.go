package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dukerupert/foodalloc/internal/auth"
	"github.com/dukerupert/foodalloc/internal/handler"
	"github.com/dukerupert/foodalloc/internal/middleware"
	"github.com/dukerupert/foodalloc/internal/store"
	ws "github.com/dukerupert/foodalloc/internal/websocket"
)

// Config holds the settings of the development backend.
type Config struct {
	JWTSecret      string
	TokenTTL       time.Duration
	AllowedOrigins []string
	// LoginPerMinute bounds token requests per client IP.
	LoginPerMinute int
}

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	issuer      *auth.Issuer
	allocationH *handler.AllocationHandler
	masterH     *handler.MasterHandler
	simH        *handler.SimHandler
	authH       *handler.AuthHandler
	rateLimiter *middleware.RateLimiter
	origins     []string
	logger      *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	familyStore := store.NewFamilyStore(db)
	inventoryStore := store.NewInventoryStore(db)
	allocationStore := store.NewAllocationStore(db)
	afStore := store.NewAllocationFamilyStore(db)
	userStore := store.NewUserStore(db)

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if cfg.LoginPerMinute < 1 {
		cfg.LoginPerMinute = 10
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return &Server{
		db:          db,
		hub:         hub,
		issuer:      issuer,
		allocationH: handler.NewAllocationHandler(allocationStore, familyStore, inventoryStore, afStore, hub, logger.With("component", "allocation")),
		masterH:     handler.NewMasterHandler(familyStore, inventoryStore, logger.With("component", "master")),
		simH:        handler.NewSimHandler(allocationStore, afStore, hub, logger.With("component", "sim")),
		authH:       handler.NewAuthHandler(userStore, issuer, logger.With("component", "auth")),
		rateLimiter: middleware.NewRateLimiter(float64(cfg.LoginPerMinute)/60, cfg.LoginPerMinute),
		origins:     origins,
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Hub returns the websocket hub, closed on shutdown.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(middleware.RequestLogger(s.logger.With("component", "http")))

	// Public routes
	r.Get("/health", s.healthHandler)
	r.With(middleware.RateLimit(s.rateLimiter, middleware.RealIP)).Post("/api/auth/token", s.authH.Token)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireToken(s.issuer))

		r.Route("/api", func(r chi.Router) {
			r.Route("/allocations", func(r chi.Router) {
				r.Get("/", s.allocationH.Search)
				r.Post("/", s.allocationH.Create)
				r.Get("/creatable", s.allocationH.Creatable)
				r.Get("/{id}", s.allocationH.Get)
				r.Get("/{id}/families", s.allocationH.Families)
				r.Get("/{id}/inventories", s.allocationH.Inventories)
			})
			r.Post("/allocation-families/{id}/accept", s.allocationH.AcceptFamily)
			r.Post("/allocation-families/{id}/reject", s.allocationH.RejectFamily)
			r.Get("/families/eligible", s.masterH.EligibleFamilies)
			r.Get("/inventories/eligible", s.masterH.EligibleInventories)
		})

		// Engine simulation
		r.Post("/sim/allocations/{id}/advance", s.simH.Advance)

		// WebSocket
		r.Get("/ws/allocation", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))
	})

	return r
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		status = "database unavailable"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{"status": status, "clients": s.hub.ClientCount()})
}
