package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/dig"

	"captain-dispatch/internal/auth"
	"captain-dispatch/internal/config"
	"captain-dispatch/internal/domain"
	"captain-dispatch/internal/jobs"
	"captain-dispatch/internal/logx"
	"captain-dispatch/internal/repository/memory"
	testlog "captain-dispatch/internal/testutil"
)

// requireEventually polls condition until it holds or timeout passes, so
// scheduler jitter on CI does not make the test flaky.
func requireEventually(t *testing.T, timeout time.Duration, tick time.Duration, condition func() bool, msgAndArgs ...any) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		if condition() {
			return
		}
		if time.Now().After(deadline) {
			if len(msgAndArgs) > 0 {
				t.Fatalf(msgAndArgs[0].(string), msgAndArgs[1:]...)
			}
			t.Fatalf("condition not satisfied within %s", timeout)
		}
		<-ticker.C
	}
}

type fakeJob struct {
	started atomic.Int32
	stopped atomic.Int32
	err     error
}

func (j *fakeJob) Name() string { return "fake" }

func (j *fakeJob) Start() error {
	if j.err != nil {
		return j.err
	}
	j.started.Add(1)
	return nil
}

func (j *fakeJob) Stop() { j.stopped.Add(1) }

func TestCloser_ClosesInReverseOrder(t *testing.T) {
	t.Parallel()

	rec := testlog.New()
	cl := newCloser()

	var order []string
	cl.add("postgres", func() error { order = append(order, "postgres"); return nil })
	cl.add("redis", func() error { order = append(order, "redis"); return errors.New("already closed") })
	cl.add("kafka producer", func() error { order = append(order, "kafka producer"); return nil })

	cl.closeAll(rec.Logger())
	assert.Equal(t, []string{"kafka producer", "redis", "postgres"}, order)

	e, ok := rec.Find("error", "close error")
	require.True(t, ok)
	res, _ := e.Field("resource")
	assert.Equal(t, "redis", res)

	cl.closeAll(rec.Logger())
	assert.Len(t, order, 3, "second closeAll is a no-op")
}

func TestGracefulShutdown_DoesNotPanic(t *testing.T) {
	t.Parallel()

	srv := &http.Server{
		Addr:    "127.0.0.1:0",
		Handler: http.NewServeMux(),
	}

	require.NotPanics(t, func() {
		gracefulShutdown(srv, logx.Nop(), 100*time.Millisecond)
	})
}

func TestStartBackground_LogsUnexpectedError(t *testing.T) {
	t.Parallel()

	rec := testlog.New()
	var wg sync.WaitGroup

	startBackground(&wg, context.Background(), rec.Logger(), "realtime relay", func(context.Context) error {
		return errors.New("subscription lost")
	})
	startBackground(&wg, context.Background(), rec.Logger(), "order consumer", func(context.Context) error {
		return context.Canceled
	})
	wg.Wait()

	_, ok := rec.Find("error", "realtime relay stopped")
	assert.True(t, ok)
	_, ok = rec.Find("error", "order consumer stopped")
	assert.False(t, ok)
}

func newRunContainer(t *testing.T, ctx context.Context, job *fakeJob, cl *closer) *dig.Container {
	t.Helper()

	c := dig.New()
	require.NoError(t, provideAll(c,
		func() context.Context { return ctx },
		logx.Nop,
		func() *http.Server {
			return &http.Server{Addr: "127.0.0.1:0", Handler: http.NewServeMux()}
		},
		func(logger logx.Logger) *jobs.JobManager { return jobs.NewJobManager(logger, job) },
		func() *closer { return cl },
	))
	return c
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job := &fakeJob{}
	cl := newCloser()
	var closed atomic.Bool
	cl.add("postgres", func() error { closed.Store(true); return nil })

	done := make(chan error, 1)
	go func() { done <- run(newRunContainer(t, ctx, job, cl)) }()

	requireEventually(t, time.Second, 5*time.Millisecond, func() bool { return job.started.Load() == 1 })
	cancel()
	require.NoError(t, <-done)
	assert.EqualValues(t, 1, job.stopped.Load())
	assert.True(t, closed.Load())
}

func TestRun_JobStartFailure(t *testing.T) {
	t.Parallel()

	job := &fakeJob{err: errors.New("bad schedule")}
	err := run(newRunContainer(t, context.Background(), job, newCloser()))
	require.Error(t, err)
	assert.ErrorContains(t, err, "bad schedule")
}

func TestSeedAccounts(t *testing.T) {
	t.Parallel()

	hasher := auth.NewHasher(auth.Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	store := memory.NewStore()
	rec := testlog.New()
	ctx := context.Background()

	seed := []config.Account{
		{ID: "cap-1", Username: "ahmed", Password: "secret", Name: "Ahmed", Role: "Captain"},
		{ID: "adm-1", Username: "ops", Password: "secret", Name: "Ops", Role: "admin"},
	}
	require.NoError(t, seedAccounts(ctx, store, hasher, seed, rec.Logger()))

	cp, err := store.GetCaptainByUsername(ctx, "ahmed")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, domain.VehicleMotorcycle, cp.VehicleType)
	assert.Equal(t, domain.CaptainOffline, cp.Status)
	ok, err := hasher.Verify("secret", cp.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	u, err := store.GetUserByUsername(ctx, "ops")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, domain.RoleAdmin, u.Role)

	require.NoError(t, seedAccounts(ctx, store, hasher, seed, rec.Logger()), "existing accounts are kept")
	_, found := rec.Find("debug", "seed account exists")
	assert.True(t, found)
}

func TestSeedAccounts_Invalid(t *testing.T) {
	t.Parallel()

	hasher := auth.NewHasher(auth.Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})

	tests := []struct {
		name    string
		account config.Account
		wantErr string
	}{
		{"missing password", config.Account{ID: "u-1", Username: "x", Role: "admin"}, "are required"},
		{"unknown role", config.Account{ID: "u-1", Username: "x", Password: "p", Role: "driver"}, "unknown role"},
		{"unknown vehicle", config.Account{ID: "c-1", Username: "x", Password: "p", Role: "captain", VehicleType: "truck"}, "unknown vehicle type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := seedAccounts(context.Background(), memory.NewStore(), hasher, []config.Account{tt.account}, logx.Nop())
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
