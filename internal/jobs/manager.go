package jobs

import (
	"fmt"

	"captain-dispatch/internal/logx"
)

// Job is a scheduled background task.
type Job interface {
	Name() string
	Start() error
	Stop()
}

// JobManager starts and stops jobs as a group.
type JobManager struct {
	jobs    []Job
	started []Job
	logger  logx.Logger
}

func NewJobManager(logger logx.Logger, jobs ...Job) *JobManager {
	if logger == nil {
		logger = logx.Nop()
	}
	return &JobManager{jobs: jobs, logger: logger.With(logx.Component("jobs"))}
}

// StartAll starts every job. When one fails, the ones already started are
// stopped again.
func (m *JobManager) StartAll() error {
	for _, j := range m.jobs {
		if err := j.Start(); err != nil {
			m.StopAll()
			return fmt.Errorf("start job %s: %w", j.Name(), err)
		}
		m.started = append(m.started, j)
	}
	m.logger.Info("jobs started", logx.Int("count", len(m.started)))
	return nil
}

// StopAll stops the started jobs in reverse order.
func (m *JobManager) StopAll() {
	for i := len(m.started) - 1; i >= 0; i-- {
		m.started[i].Stop()
	}
	m.started = nil
}
