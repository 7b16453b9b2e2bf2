package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/vpos/handler"
	"github.com/mstgnz/vpos/infra/metrics"
	"github.com/mstgnz/vpos/infra/middle"
	"github.com/mstgnz/vpos/infra/response"
	"github.com/mstgnz/vpos/infra/storage"
	v1 "github.com/mstgnz/vpos/router/v1"

	// Import for side-effect registration
	_ "github.com/mstgnz/vpos/provider/akbank"
	_ "github.com/mstgnz/vpos/provider/denizbank"
	_ "github.com/mstgnz/vpos/provider/garanti"
	_ "github.com/mstgnz/vpos/provider/iyzico"
	_ "github.com/mstgnz/vpos/provider/kuveytturk"
	_ "github.com/mstgnz/vpos/provider/mock"
	_ "github.com/mstgnz/vpos/provider/nestpay"
	_ "github.com/mstgnz/vpos/provider/qnbpay"
	_ "github.com/mstgnz/vpos/provider/vakifbank"
	_ "github.com/mstgnz/vpos/provider/vakifkatilim"
	_ "github.com/mstgnz/vpos/provider/yapikredi"
)

// Providers lists and resolves the registered adapters
type Providers interface {
	handler.ProviderLister
	handler.ProviderResolver
}

// Options carries what the HTTP surface needs
type Options struct {
	Payments  handler.PaymentServiceInterface
	Store     storage.Store
	Encrypter storage.Encrypter
	Events    handler.EventReader
	Providers Providers
	Validator *validator.Validate

	APIKey             string
	APISecretHash      string
	IPWhitelist        string
	AllowedOrigins     []string
	RateLimitPerMinute int
	RequestTimeout     time.Duration
}

// New builds the route table: public health, metrics and 3-D browser
// endpoints, and the key protected /v1 API
func New(opts Options) http.Handler {
	if opts.Validator == nil {
		opts.Validator = validator.New()
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middle.RequestLoggingMiddleware())
	r.Use(middle.PanicRecoveryMiddleware())
	r.Use(middle.SecurityHeadersMiddleware())
	r.Use(middle.RequestValidationMiddleware())

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-API-Secret", "X-Partner-ID", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Length", "X-Request-ID", "X-RateLimit-Limit"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	paymentHandler := handler.NewPaymentHandler(opts.Payments, opts.Validator, opts.RequestTimeout)
	healthHandler := handler.NewHealthHandler(opts.Store, opts.Providers)
	terminalHandler := handler.NewTerminalHandler(opts.Store, opts.Encrypter, opts.Providers)
	eventsHandler := handler.NewEventsHandler(opts.Events, opts.Validator)
	rateLimiter := middle.NewRateLimiter(opts.RateLimitPerMinute)

	r.Get("/health", healthHandler.CheckHealth)
	r.Handle("/metrics", metrics.Handler())

	// Browser facing 3-D endpoints; banks post back without credentials
	r.Route("/payment/{id}", func(r chi.Router) {
		r.Use(middle.RateLimitMiddleware(rateLimiter))
		r.Get("/form", paymentHandler.PaymentForm)
		r.Post("/callback", paymentHandler.HandleCallback)
		r.Get("/callback", paymentHandler.HandleCallback)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(middle.IPWhitelistMiddleware(opts.IPWhitelist))
		r.Use(middle.AuthMiddleware(opts.APIKey, opts.APISecretHash))
		r.Use(middle.RateLimitMiddleware(rateLimiter))

		v1.Routes(r, paymentHandler, terminalHandler, eventsHandler)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, "Not Found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
	})

	return r
}
