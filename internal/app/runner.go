package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"go.uber.org/dig"

	"captain-dispatch/internal/hub"
	"captain-dispatch/internal/jobs"
	"captain-dispatch/internal/logx"
)

const shutdownTimeout = 15 * time.Second

// closer releases opened resources in reverse order of acquisition.
type closer struct {
	mu    sync.Mutex
	names []string
	fns   []func() error
}

func newCloser() *closer { return &closer{} }

func (c *closer) add(name string, fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = append(c.names, name)
	c.fns = append(c.fns, fn)
}

func (c *closer) closeAll(logger logx.Logger) {
	c.mu.Lock()
	names, fns := c.names, c.fns
	c.names, c.fns = nil, nil
	c.mu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		if err := fns[i](); err != nil {
			logger.Error("close error", logx.String("resource", names[i]), logx.Err(err))
		}
	}
}

// MustRun starts the HTTP server using the provided DI container
func MustRun(container *dig.Container) {
	if err := run(container); err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			log.Println("shutdown requested, exiting")
			return
		case errors.Is(err, context.DeadlineExceeded):
			log.Println("startup aborted: startup timeout exceeded")
			return
		default:
			log.Fatalf("run error: %v", err)
		}
	}
}

type apiIn struct {
	dig.In

	Ctx      context.Context
	Logger   logx.Logger
	Server   *http.Server
	Pprof    *http.Server `name:"pprof_server" optional:"true"`
	Jobs     *jobs.JobManager
	Relay    *hub.Relay        `optional:"true"`
	Consumer *embeddedConsumer `optional:"true"`
	Closer   *closer
}

func run(container *dig.Container) error {
	return container.Invoke(func(in apiIn) error {
		defer in.Closer.closeAll(in.Logger)

		if err := in.Jobs.StartAll(); err != nil {
			return err
		}
		defer in.Jobs.StopAll()

		var wg sync.WaitGroup
		if in.Relay != nil {
			startBackground(&wg, in.Ctx, in.Logger, "realtime relay", in.Relay.Run)
		}
		if in.Consumer != nil {
			startBackground(&wg, in.Ctx, in.Logger, "order consumer", in.Consumer.Run)
		}

		startServer(in.Server, in.Logger, "service-dispatch")
		if in.Pprof != nil {
			startServer(in.Pprof, in.Logger, "pprof")
		}

		waitForShutdown(in.Ctx, in.Logger)
		gracefulShutdown(in.Server, in.Logger, shutdownTimeout)
		if in.Pprof != nil {
			gracefulShutdown(in.Pprof, in.Logger, shutdownTimeout)
		}
		wg.Wait()
		return nil
	})
}

func startBackground(wg *sync.WaitGroup, ctx context.Context, logger logx.Logger, name string, fn func(context.Context) error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error(name+" stopped", logx.Err(err))
		}
	}()
}

func startServer(server *http.Server, logger logx.Logger, name string) {
	go func() {
		logger.Info(name+" listening", logx.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("%s listen error: %v", name, err)
		}
	}()
}

func waitForShutdown(ctx context.Context, logger logx.Logger) {
	<-ctx.Done()
	logger.Info("shutting down service-dispatch...")
}

func gracefulShutdown(srv *http.Server, logger logx.Logger, timeout time.Duration) {
	shCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		logger.Error("graceful shutdown error", logx.String("addr", srv.Addr), logx.Err(err))
	}
}
