package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	"captain-dispatch/internal/auth"
	"captain-dispatch/internal/config"
	"captain-dispatch/internal/http/handlers"
	"captain-dispatch/internal/http/middleware"
	"captain-dispatch/internal/http/middleware/ratelimit"
	"captain-dispatch/internal/http/pprofserver"
	"captain-dispatch/internal/http/router"
	"captain-dispatch/internal/hub"
	"captain-dispatch/internal/logx"
)

type routerIn struct {
	dig.In

	Logger        logx.Logger
	Registry      *prometheus.Registry
	Hub           *hub.Hub
	Tokens        *auth.Manager
	RateLimit     *ratelimit.Middleware
	Base          *handlers.Handlers
	Session       *handlers.SessionHandler
	Captain       *handlers.CaptainHandler
	Admin         *handlers.AdminHandler
	Orders        *handlers.OrderHandler
	Notifications *handlers.NotificationHandler
}

func newRouter(in routerIn) (http.Handler, error) {
	m, err := middleware.NewHTTPMetrics(in.Registry)
	if err != nil {
		return nil, err
	}
	return router.New(router.Deps{
		Logger:        in.Logger,
		Base:          in.Base,
		Session:       in.Session,
		Captain:       in.Captain,
		Admin:         in.Admin,
		Orders:        in.Orders,
		Notifications: in.Notifications,
		Verifier:      in.Tokens,
		RateLimit:     in.RateLimit.Handler(),
		Metrics:       m,
		Gatherer:      in.Registry,
		WS:            in.Hub.Handler(in.Tokens),
	}), nil
}

type pprofOut struct {
	dig.Out

	Server *http.Server `name:"pprof_server"`
}

// newPprofServer yields a nil server while profiling is disabled.
func newPprofServer(cfg *config.Config, logger logx.Logger) pprofOut {
	if !cfg.Pprof.Enabled {
		return pprofOut{}
	}
	return pprofOut{Server: pprofserver.New(pprofserver.Config{
		Addr: cfg.Pprof.Addr,
		User: cfg.Pprof.User,
		Pass: cfg.Pprof.Pass,
	}, logger)}
}

func registerHTTP(container *dig.Container) error {
	if err := registerRateLimit(container); err != nil {
		return err
	}
	return provideAll(container,
		handlers.New,
		handlers.NewSessionUsecase,
		handlers.NewDispatchUsecase,
		handlers.NewTrackingUsecase,
		handlers.NewNotificationUsecase,
		handlers.NewSessionHandler,
		handlers.NewCaptainHandler,
		handlers.NewAdminHandler,
		handlers.NewOrderHandler,
		handlers.NewNotificationHandler,
		newRouter,
		newServer,
		newPprofServer,
	)
}
