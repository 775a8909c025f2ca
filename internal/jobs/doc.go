// Package jobs runs the scheduled background tasks of the dispatch service.
//
// Jobs are cron-scheduled with github.com/robfig/cron/v3 and managed through
// JobManager:
//
//	manager := jobs.NewJobManager(logger, jobs.NewOfferExpiryJob(coordinator, "*/5 * * * * *", 3*time.Second, logger))
//	if err := manager.StartAll(); err != nil {
//		return err
//	}
//	defer manager.StopAll()
//
// A failed start stops the jobs already running. A run that is still busy
// when the next tick fires is skipped.
package jobs
