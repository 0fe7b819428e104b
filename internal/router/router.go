package router

import (
	"log"
	"net/http"
	"time"

	"github.com/brewloyal/api/internal/config"
	"github.com/brewloyal/api/internal/database"
	"github.com/brewloyal/api/internal/handler"
	mw "github.com/brewloyal/api/internal/middleware"
	"github.com/brewloyal/api/internal/notify"
	"github.com/brewloyal/api/internal/service"
	"github.com/brewloyal/api/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
)

// New wires services, handlers and the websocket hub into one router. The
// hub's resync routine is installed here so it shares the services the
// handlers use.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub, publisher notify.Publisher) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Services
	confirm := service.NewConfirmer(cfg.JWTSecret, cfg.ConfirmTokenTTL)
	gate := service.NewStaffGate(queries, service.LockoutPolicy{
		MaxFailures: cfg.PasscodeMaxFailures,
		Duration:    cfg.PasscodeLockout,
	})
	orderService := service.NewOrderService(pool, queries, func(db database.DBTX) service.OrderStore {
		return database.New(db)
	}, confirm)
	redemptionService := service.NewRedemptionService(pool, queries, func(db database.DBTX) service.RedemptionStore {
		return database.New(db)
	})
	kitchenService := service.NewKitchenService(pool, queries, func(db database.DBTX) service.KitchenStore {
		return database.New(db)
	}, confirm, publisher, hub)

	hub.SetResyncer(service.NewSnapshots(orderService, kitchenService, queries))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Public routes
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket authenticates from its query string.
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		// Customer routes: a customer token may only read its own data.
		customerHandler := handler.NewCustomerHandler(orderService, queries)
		r.Route("/customers/{uid}", func(r chi.Router) {
			r.Use(mw.RequireSelf)
			customerHandler.RegisterRoutes(r)
		})

		// Outlet-scoped routes
		r.Route("/outlets/{oid}", func(r chi.Router) {
			r.Use(mw.RequireOutlet)

			orderHandler := handler.NewOrderHandler(orderService)
			r.Route("/orders", orderHandler.RegisterRoutes)

			redemptionHandler := handler.NewRedemptionHandler(gate, redemptionService)
			redemptionHandler.RegisterRoutes(r)

			kitchenHandler := handler.NewKitchenHandler(kitchenService)
			r.Route("/kitchen", kitchenHandler.RegisterRoutes)
		})
	})

	log.Println("Router initialized with all handlers")
	return r
}

// NewServer applies the HTTP timeouts used by cmd/server.
func NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
