package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Sessions       SessionAcquirer
	Receipts       ReceiptReader
	RequestTimeout time.Duration
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter builds the storefront HTTP API.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	rs := responder{logger: logger}

	cartHandler := NewCartHandler(logger)
	checkoutHandler := NewCheckoutHandler(logger)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		rs.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Sessions, rs))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Post("/items", cartHandler.AddItem)
			r.Post("/items/{id}/increment", cartHandler.Increment)
			r.Post("/items/{id}/decrement", cartHandler.Decrement)
			r.Delete("/items/{id}", cartHandler.RemoveItem)
			r.Delete("/items/{id}/pending", cartHandler.CancelRemove)
			r.Post("/items/{id}/toggle", cartHandler.ToggleSelection)
			r.Delete("/selection", cartHandler.ClearSelection)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", checkoutHandler.Begin)
			r.Get("/", checkoutHandler.Get)
			r.Delete("/", checkoutHandler.Abandon)
			r.Post("/delivery/quotes", checkoutHandler.RequestAllQuotes)
			r.Post("/delivery/{seller_id}/quote", checkoutHandler.RequestQuote)
			r.Put("/delivery/{seller_id}", checkoutHandler.ChooseDelivery)
			r.Post("/address/refresh", checkoutHandler.RefreshAddress)
			r.Post("/order", checkoutHandler.Submit)
		})

		if cfg.Receipts != nil {
			ordersHandler := NewOrdersHandler(cfg.Receipts, logger)
			r.Route("/orders/receipts", func(r chi.Router) {
				r.Get("/", ordersHandler.ListReceipts)
				r.Get("/{receipt_id}", ordersHandler.GetReceipt)
			})
		}
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
	})

	return otelhttp.NewHandler(c.Handler(r), "storefront")
}
