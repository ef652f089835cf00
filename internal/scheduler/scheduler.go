// Package scheduler provides the fallback trigger: if the completion gate
// never fired for today (a store missed its upload), the analysis still runs
// in the late evening on whatever data arrived.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/salesdata/backend/internal/orchestrator"
	"github.com/salesdata/backend/internal/storage/models"
	"github.com/salesdata/backend/internal/storage/sqlite"
	"github.com/salesdata/backend/pkg/logger"
)

type Scheduler struct {
	db           *sqlite.Client
	orchestrator *orchestrator.Orchestrator
	location     *time.Location
	fallbackHour int
	interval     time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func New(db *sqlite.Client, orch *orchestrator.Orchestrator, timezone string, fallbackHour, intervalMin int) (*Scheduler, error) {
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, err
	}
	if fallbackHour < 0 || fallbackHour > 23 {
		fallbackHour = 23
	}
	if intervalMin <= 0 {
		intervalMin = 15
	}

	return &Scheduler{
		db:           db,
		orchestrator: orch,
		location:     location,
		fallbackHour: fallbackHour,
		interval:     time.Duration(intervalMin) * time.Minute,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}, nil
}

// Start launches the polling loop. Call Stop to shut it down.
func (s *Scheduler) Start(ctx context.Context) {
	logger.Info("Fallback scheduler started",
		zap.String("timezone", s.location.String()),
		zap.Int("fallback_hour", s.fallbackHour),
		zap.Duration("interval", s.interval),
	)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				s.tick(ctx, time.Now())
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
}

// tick runs today's analysis if the fallback window has opened and no run has
// succeeded yet. The orchestrator's claim absorbs races with the completion
// gate.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	local := now.In(s.location)
	if local.Hour() < s.fallbackHour {
		return
	}

	date := local.Format("2006-01-02")

	run, err := s.db.GetRun(date)
	if err != nil {
		logger.Error("Fallback check failed", zap.String("date", date), zap.Error(err))
		return
	}
	if run != nil && run.Status == models.RunSucceeded {
		return
	}

	logger.Info("Fallback window open, triggering analysis", zap.String("date", date))

	if _, err := s.orchestrator.Run(ctx, date); err != nil {
		logger.Error("Fallback analysis run failed", zap.String("date", date), zap.Error(err))
	}
}
