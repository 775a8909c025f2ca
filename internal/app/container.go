package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"

	"captain-dispatch/internal/auth"
	"captain-dispatch/internal/config"
	"captain-dispatch/internal/hub"
	"captain-dispatch/internal/jobs"
	"captain-dispatch/internal/logx"
	"captain-dispatch/internal/metrics"
	"captain-dispatch/internal/offers"
	"captain-dispatch/internal/service/dispatch"
	"captain-dispatch/internal/service/notify"
	"captain-dispatch/internal/service/session"
	"captain-dispatch/internal/service/tracking"
	"captain-dispatch/internal/transport/kafka"
)

type dbConnectFunc func(ctx context.Context, logger logx.Logger, dsn string, retries int, delay time.Duration) (*pgxpool.Pool, error)

// ContainerBuilder is a dig container builder.
type ContainerBuilder struct {
	dbConnect  dbConnectFunc
	loadConfig func() (*config.Config, error)
	logFatalf  func(string, ...interface{})
}

// NewContainerBuilder returns a new dig container builder
func NewContainerBuilder() *ContainerBuilder {
	return &ContainerBuilder{
		dbConnect:  connectDbWithRetry,
		loadConfig: config.Load,
		logFatalf:  log.Fatalf,
	}
}

// WithDBConnect sets the database connection function
func (b *ContainerBuilder) WithDBConnect(fn dbConnectFunc) *ContainerBuilder {
	if fn != nil {
		b.dbConnect = fn
	}
	return b
}

// WithConfig skips config.Load and uses cfg.
func (b *ContainerBuilder) WithConfig(cfg *config.Config) *ContainerBuilder {
	if cfg != nil {
		b.loadConfig = func() (*config.Config, error) { return cfg, nil }
	}
	return b
}

// WithLogFatalf sets the log.Fatalf function
func (b *ContainerBuilder) WithLogFatalf(fn func(string, ...interface{})) *ContainerBuilder {
	if fn != nil {
		b.logFatalf = fn
	}
	return b
}

// MustBuild builds and returns the API container.
func (b *ContainerBuilder) MustBuild(ctx context.Context) *dig.Container {
	container, err := b.build(ctx)
	if err != nil {
		b.logFatalf("failed to build container: %v", err)
	}
	return container
}

// MustBuildWorker builds and returns the order-event worker container.
func (b *ContainerBuilder) MustBuildWorker(ctx context.Context) *dig.Container {
	container, err := b.buildWorker(ctx)
	if err != nil {
		b.logFatalf("failed to build worker container: %v", err)
	}
	return container
}

func (b *ContainerBuilder) build(ctx context.Context) (*dig.Container, error) {
	container, err := b.buildShared(ctx)
	if err != nil {
		return nil, err
	}
	if err := registerHTTP(container); err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	if err := registerJobs(container); err != nil {
		return nil, fmt.Errorf("jobs: %w", err)
	}
	return container, nil
}

func (b *ContainerBuilder) buildWorker(ctx context.Context) (*dig.Container, error) {
	container, err := b.buildShared(ctx)
	if err != nil {
		return nil, err
	}
	if err := registerWorker(container); err != nil {
		return nil, fmt.Errorf("worker: %w", err)
	}
	return container, nil
}

func (b *ContainerBuilder) buildShared(ctx context.Context) (*dig.Container, error) {
	container := dig.New()

	if err := registerCore(container, ctx, b.loadConfig); err != nil {
		return nil, fmt.Errorf("core: %w", err)
	}
	if err := registerStorage(container, b.dbConnect); err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	if err := registerRealtime(container); err != nil {
		return nil, fmt.Errorf("realtime: %w", err)
	}
	if err := registerService(container); err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	return container, nil
}

// MustBuildContainer builds and returns the API container.
func MustBuildContainer(ctx context.Context) *dig.Container {
	return NewContainerBuilder().MustBuild(ctx)
}

// MustBuildWorkerContainer builds and returns the worker container.
func MustBuildWorkerContainer(ctx context.Context) *dig.Container {
	return NewContainerBuilder().MustBuildWorker(ctx)
}

func provideAll(container *dig.Container, providers ...any) error {
	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return fmt.Errorf("provide %T: %w", provider, err)
		}
	}
	return nil
}

func registerCore(container *dig.Container, ctx context.Context, load func() (*config.Config, error)) error {
	return provideAll(container,
		func() context.Context { return ctx },
		load,
		NewLogger,
		newCloser,
		newRegistry,
		func(reg *prometheus.Registry) (*metrics.Recorder, error) { return metrics.NewRecorder(reg) },
	)
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func registerStorage(container *dig.Container, dbConnect dbConnectFunc) error {
	provider := func(ctx context.Context, cfg *config.Config, logger logx.Logger, hasher *auth.Hasher, cl *closer) (Storage, error) {
		return openStorage(ctx, cfg, logger, hasher, cl, dbConnect)
	}
	return provideAll(container,
		func() *auth.Hasher { return auth.NewHasher(auth.DefaultParams) },
		provider,
	)
}

// newRedisClient returns nil when no address is configured.
func newRedisClient(cfg *config.Config, cl *closer) redis.UniversalClient {
	if cfg.Redis.Addr == "" {
		return nil
	}
	c := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	cl.add("redis", c.Close)
	return c
}

func newOfferBook(rc redis.UniversalClient) offers.Book {
	if rc == nil {
		return offers.NewMemoryBook()
	}
	return offers.NewRedisBook(rc)
}

// newRelay returns nil without redis; pushes then stay in process.
func newRelay(cfg *config.Config, h *hub.Hub, rc redis.UniversalClient) *hub.Relay {
	if rc == nil {
		return nil
	}
	return hub.NewRelay(h, rc, cfg.Redis.RelayChannel)
}

func newPusher(h *hub.Hub, relay *hub.Relay) hub.Pusher {
	if relay == nil {
		return h
	}
	return relay
}

func registerRealtime(container *dig.Container) error {
	return provideAll(container,
		newRedisClient,
		newOfferBook,
		hub.New,
		newRelay,
		newPusher,
	)
}

// newStatusPublisher returns a nil publisher without brokers.
func newStatusPublisher(cfg *config.Config, reg *prometheus.Registry, logger logx.Logger, cl *closer) (dispatch.StatusPublisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Info("kafka brokers not configured, status changes are not published")
		return nil, nil
	}
	p, err := kafka.NewStatusProducer(cfg.Kafka.Brokers, cfg.Kafka.StatusTopic)
	if err != nil {
		return nil, err
	}
	cl.add("kafka producer", p.Close)

	retries, err := metrics.Register(reg, metrics.NewStatusPublishRetriesTotal())
	if err != nil {
		return nil, err
	}
	return kafka.NewRetryingPublisher(p, logger, retries, kafka.RetryConfig{
		MaxAttempts: cfg.Kafka.PublishAttempts,
		BaseDelay:   cfg.Kafka.RetryBaseDelay,
		MaxDelay:    cfg.Kafka.RetryMaxDelay,
	}), nil
}

func newCoordinator(
	cfg *config.Config,
	store Storage,
	book offers.Book,
	engine *notify.Engine,
	push hub.Pusher,
	publisher dispatch.StatusPublisher,
	logger logx.Logger,
	rec *metrics.Recorder,
) *dispatch.Coordinator {
	c := dispatch.NewCoordinator(store, dispatch.NewState(book), engine, push, publisher, dispatch.Options{
		OfferTTL:      cfg.Dispatch.OfferTTL,
		Timeout:       cfg.Dispatch.OperationTimeout,
		AutoBroadcast: cfg.Dispatch.AutoBroadcast,
	}, logger, rec)
	if cfg.Dispatch.Escalation == config.EscalationRebroadcast {
		c.SetEscalation(c.RebroadcastHook())
	}
	return c
}

func newTokenManager(cfg *config.Config, logger logx.Logger) (*auth.Manager, error) {
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		secret = hex.EncodeToString(buf)
		logger.Warn("AUTH_JWT_SECRET is empty, using a random secret; tokens will not survive a restart")
	}
	return auth.NewManager(secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
}

func registerService(container *dig.Container) error {
	return provideAll(container,
		func(cfg *config.Config) (*notify.Templates, error) { return notify.NewTemplates(cfg.Notify.Language) },
		func(cfg *config.Config, store Storage, push hub.Pusher, tpl *notify.Templates, logger logx.Logger, rec *metrics.Recorder) *notify.Engine {
			return notify.NewEngine(store, push, tpl, notify.Options{
				Timeout:           cfg.Dispatch.OperationTimeout,
				DefaultActiveDays: cfg.Notify.ActiveWithinDays,
			}, logger, rec)
		},
		newStatusPublisher,
		newCoordinator,
		func(cfg *config.Config, store Storage, push hub.Pusher, logger logx.Logger, rec *metrics.Recorder) *tracking.Tracker {
			return tracking.NewTracker(store, push, cfg.Dispatch.OperationTimeout, logger, rec)
		},
		newTokenManager,
		func(cfg *config.Config, store Storage, m *auth.Manager, h *auth.Hasher, logger logx.Logger) *session.Service {
			return session.NewService(store, m, h, cfg.Dispatch.OperationTimeout, logger)
		},
		newProcessor,
	)
}

func registerJobs(container *dig.Container) error {
	return provideAll(container,
		func(cfg *config.Config, c *dispatch.Coordinator, logger logx.Logger) *jobs.JobManager {
			return jobs.NewJobManager(logger,
				jobs.NewOfferExpiryJob(c, cfg.Dispatch.SweepSchedule, cfg.Dispatch.OperationTimeout, logger),
			)
		},
		newEmbeddedConsumer,
	)
}

func newServer(cfg *config.Config, mux http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
