package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron"

	"github.com/gamesignal/gamesignal-backend/internal/listener"
	"github.com/gamesignal/gamesignal-backend/internal/platform/logger"
	"github.com/gamesignal/gamesignal-backend/internal/viral"
)

// Scheduler drives the periodic pipelines: the listener pass, the viral
// scan, and the outlier cleanup. Task errors are logged, never fatal; the
// loop always reaches the next tick.
type Scheduler struct {
	listener *listener.Service
	detector *viral.Detector
	log      *logger.Logger
}

func New(listenerSvc *listener.Service, detector *viral.Detector, baseLog *logger.Logger) *Scheduler {
	return &Scheduler{
		listener: listenerSvc,
		detector: detector,
		log:      baseLog.With("component", "Scheduler"),
	}
}

// RunOnce executes a single listener pass followed by a viral scan and
// cleanup. Used by the run-once command and by each periodic tick.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	res, err := s.listener.RunPass(ctx)
	if err != nil {
		return fmt.Errorf("listener pass: %w", err)
	}
	s.log.Info("listener pass finished",
		"sources", res.Sources, "items_kept", res.ItemsKept,
		"cards", res.CardsCreated, "alerts", res.Alerts)

	if s.detector != nil {
		scan, err := s.detector.Scan(ctx)
		if err != nil {
			s.log.Error("viral scan failed", "error", err)
		} else {
			s.log.Info("viral scan finished", "status", scan.Status, "accepted", scan.Accepted)
		}
		if _, err := s.detector.Cleanup(ctx); err != nil {
			s.log.Error("outlier cleanup failed", "error", err)
		}
	}
	return nil
}

// RunPeriodic ticks RunOnce every interval until the context ends. The
// viral scan and cleanup ride on hourly and daily cron entries so a short
// listener interval does not hammer the scanner lock.
func (s *Scheduler) RunPeriodic(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	c := cron.New()
	if err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		if _, err := s.listener.RunPass(ctx); err != nil {
			s.log.Error("listener pass failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule listener pass: %w", err)
	}
	if s.detector != nil {
		if err := c.AddFunc("@every 1h", func() {
			if _, err := s.detector.Scan(ctx); err != nil {
				s.log.Error("viral scan failed", "error", err)
			}
		}); err != nil {
			return fmt.Errorf("schedule viral scan: %w", err)
		}
		if err := c.AddFunc("@every 24h", func() {
			if _, err := s.detector.Cleanup(ctx); err != nil {
				s.log.Error("outlier cleanup failed", "error", err)
			}
		}); err != nil {
			return fmt.Errorf("schedule outlier cleanup: %w", err)
		}
	}

	// First pass immediately; cron fires the rest.
	if err := s.RunOnce(ctx); err != nil {
		s.log.Error("initial pass failed", "error", err)
	}

	c.Start()
	defer c.Stop()
	<-ctx.Done()
	return ctx.Err()
}
