package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"captain-dispatch/internal/domain"
	"captain-dispatch/internal/http/handlers"
	"captain-dispatch/internal/http/middleware"
	"captain-dispatch/internal/logx"
)

const apiTimeout = 5 * time.Second

// Deps are the handlers and middleware the router mounts.
// RateLimit, Metrics, Gatherer and WS are optional.
type Deps struct {
	Logger        logx.Logger
	Base          *handlers.Handlers
	Session       *handlers.SessionHandler
	Captain       *handlers.CaptainHandler
	Admin         *handlers.AdminHandler
	Orders        *handlers.OrderHandler
	Notifications *handlers.NotificationHandler

	Verifier  middleware.TokenVerifier
	RateLimit func(http.Handler) http.Handler
	Metrics   *middleware.HTTPMetrics
	Gatherer  prometheus.Gatherer
	WS        http.Handler
}

// New constructs a chi-based http.Handler with base middleware and routes.
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Observability(d.Logger, d.Metrics))
	r.Use(chimw.Recoverer)
	r.Use(middleware.Authenticate(d.Verifier))
	if d.RateLimit != nil {
		r.Use(d.RateLimit)
	}

	r.Get("/ping", d.Base.Ping)
	r.Method(http.MethodHead, "/healthcheck", http.HandlerFunc(d.Base.HealthcheckHead))
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}
	if d.WS != nil {
		// no request timeout: the socket outlives the handshake
		r.Method(http.MethodGet, "/ws", d.WS)
	}

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(apiTimeout))

		r.Post("/captain/login", d.Session.CaptainLogin)
		r.Post("/auth/login", d.Session.UserLogin)

		r.Route("/captain/{captainId}", func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleCaptain), middleware.RequireSelf("captainId"))
			r.Get("/", d.Session.CaptainProfile)
			r.Post("/logout", d.Session.CaptainLogout)
			r.Get("/available-orders", d.Captain.AvailableOrders)
			r.Post("/accept-order/{orderId}", d.Captain.AcceptOrder)
			r.Post("/location", d.Captain.UpdateLocation)
			r.Post("/order/{orderId}/status", d.Captain.UpdateOrderStatus)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleAdmin))
			r.Post("/orders/{orderId}/assign-to-captains", d.Admin.AssignToCaptains)
			r.Post("/orders/{orderId}/ready", d.Admin.MarkReady)
			r.Post("/orders/{orderId}/cancel", d.Admin.Cancel)
			r.Post("/notifications/system-alert", d.Admin.SystemAlert)
		})

		r.With(middleware.RequireRole(domain.RoleCustomer)).
			Post("/orders/{orderId}/cancel", d.Orders.Cancel)

		r.Route("/notifications", func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleCaptain, domain.RoleAdmin, domain.RoleCustomer))
			r.Get("/unread", d.Notifications.Unread)
			r.Post("/{id}/read", d.Notifications.MarkRead)
		})
	})

	r.NotFound(d.Base.NotFound)
	r.MethodNotAllowed(d.Base.MethodNotAllowed)

	return r
}
