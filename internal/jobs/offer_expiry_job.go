package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"captain-dispatch/internal/logx"
	"captain-dispatch/internal/service/dispatch"
)

// Sweeper discards expired offers and escalates stranded orders.
type Sweeper interface {
	ExpireOffers(ctx context.Context, now time.Time) (dispatch.SweepResult, error)
}

// OfferExpiryJob sweeps the offer book on a cron schedule.
type OfferExpiryJob struct {
	sweeper Sweeper
	spec    string
	timeout time.Duration
	cron    *cron.Cron
	logger  logx.Logger
	now     func() time.Time
}

var scheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// NewOfferExpiryJob creates the sweep job. spec is a cron expression with
// optional seconds or a descriptor such as "@every 15s".
func NewOfferExpiryJob(s Sweeper, spec string, timeout time.Duration, logger logx.Logger) *OfferExpiryJob {
	if logger == nil {
		logger = logx.Nop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OfferExpiryJob{
		sweeper: s,
		spec:    spec,
		timeout: timeout,
		cron:    cron.New(cron.WithParser(scheduleParser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:  logger.With(logx.Component("offer_expiry_job")),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (j *OfferExpiryJob) Name() string { return "offer_expiry" }

// Start schedules the sweep.
func (j *OfferExpiryJob) Start() error {
	if _, err := j.cron.AddFunc(j.spec, func() { j.RunOnce(context.Background()) }); err != nil {
		return err
	}
	j.cron.Start()
	j.logger.Info("offer expiry job started", logx.String("schedule", j.spec))
	return nil
}

// Stop stops scheduling and waits for a running sweep to finish.
func (j *OfferExpiryJob) Stop() {
	<-j.cron.Stop().Done()
	j.logger.Info("offer expiry job stopped")
}

// RunOnce performs one sweep.
func (j *OfferExpiryJob) RunOnce(ctx context.Context) dispatch.SweepResult {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	res, err := j.sweeper.ExpireOffers(ctx, j.now())
	if err != nil {
		j.logger.Error("offer sweep failed", logx.String("event", "offer_sweep_failed"), logx.Err(err))
		return res
	}
	if res.Expired > 0 || res.Escalated > 0 {
		j.logger.Info("offers swept",
			logx.String("event", "offer_sweep"),
			logx.Int("expired", res.Expired),
			logx.Int("escalated", res.Escalated),
		)
	}
	return res
}
