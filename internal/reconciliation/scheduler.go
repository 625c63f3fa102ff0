package reconciliation

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler triggers one reconciliation run per day at the configured
// off-peak hour, reconciling the previous day. Operator-triggered runs
// go through the HTTP handler instead.
type Scheduler struct {
	service      *Service
	scheduleHour int
	logger       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(service *Service, scheduleHour int, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		service:      service,
		scheduleHour: scheduleHour,
		logger:       logger,
	}
}

func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("reconciliation scheduler started", "schedule_hour", s.scheduleHour)
}

func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("reconciliation scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		next := s.nextRun(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-timer.C:
			yesterday := time.Now().AddDate(0, 0, -1)
			if _, err := s.service.Reconcile(ctx, yesterday); err != nil {
				s.logger.Error("scheduled reconciliation run failed",
					"date", yesterday.Format("2006-01-02"),
					"error", err)
			}
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// nextRun returns the next occurrence of the schedule hour strictly
// after now.
func (s *Scheduler) nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.scheduleHour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
