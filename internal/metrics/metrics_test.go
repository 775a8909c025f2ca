package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecorder_CountsAndReusesCollectors(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	r, err := NewRecorder(reg)
	require.NoError(t, err)

	r.Broadcast("sent", 3)
	r.Accept("won")
	r.Accept("conflict")
	r.Realtime("notification", false)
	r.ConnectionOpened()

	require.Equal(t, 3.0, testutil.ToFloat64(r.offers))
	require.Equal(t, 1.0, testutil.ToFloat64(r.accepts.WithLabelValues("won")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.realtime.WithLabelValues("notification", "dropped")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.connections))

	again, err := NewRecorder(reg)
	require.NoError(t, err)
	again.Accept("won")
	require.Equal(t, 2.0, testutil.ToFloat64(r.accepts.WithLabelValues("won")))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	t.Parallel()

	var r *Recorder
	require.NotPanics(t, func() {
		r.Broadcast("sent", 1)
		r.OffersExpired(1)
		r.Escalated()
		r.Accept("won")
		r.Transition("delivered")
		r.Location("ok")
		r.Notification("order_created", "sent")
		r.Realtime("notification", true)
		r.ConnectionOpened()
		r.ConnectionClosed()
	})
}

type errRegisterer struct{ err error }

func (e errRegisterer) Register(prometheus.Collector) error  { return e.err }
func (e errRegisterer) MustRegister(...prometheus.Collector) {}
func (e errRegisterer) Unregister(prometheus.Collector) bool { return false }

func TestNewRecorder_RegisterError(t *testing.T) {
	t.Parallel()

	_, err := NewRecorder(errRegisterer{err: errors.New("boom")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "register dispatch_broadcasts_total")
}

func TestRegister_AlreadyRegisteredReturnsExisting(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	existing := NewRateLimitExceededTotal()
	require.NoError(t, reg.Register(existing))

	got, err := Register(reg, NewRateLimitExceededTotal())
	require.NoError(t, err)
	require.Same(t, existing, got)
}
