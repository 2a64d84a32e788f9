package generate

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/reelsmith/studio/internal/logging"
)

// Sweeper periodically pulls the status of every in-flight keyframe and
// clip, so finished jobs are collected even when nobody polls for them.
type Sweeper struct {
	generator *Generator
	interval  time.Duration
	logger    *slog.Logger
	running   atomic.Bool
}

// NewSweeper returns a sweeper; an interval of zero disables it.
func NewSweeper(g *Generator, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		generator: g,
		interval:  interval,
		logger:    logging.WithComponent(logger, "sweeper"),
	}
}

// Start blocks until ctx ends. It returns at once when disabled or already
// running.
func (s *Sweeper) Start(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	if s.running.Swap(true) {
		return
	}

	s.logger.Info("status sweeper started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("status sweeper stopping")
			s.running.Store(false)
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

func (s *Sweeper) IsRunning() bool {
	return s.running.Load()
}

// Sweep runs one pass and returns how many artifacts reached a terminal
// state during it.
func (s *Sweeper) Sweep(ctx context.Context) int {
	finished := 0

	keyframes, err := s.generator.repo.ListInFlightKeyframes(ctx)
	if err != nil {
		s.logger.Error("failed to list in-flight keyframes", "error", err)
	}
	for _, kf := range keyframes {
		got, err := s.generator.KeyframeStatus(ctx, kf.ID)
		if err != nil {
			s.logger.Warn("keyframe status failed", "keyframe_id", kf.ID, "error", err)
			continue
		}
		if got.Status.IsTerminal() {
			finished++
		}
	}

	clips, err := s.generator.repo.ListInFlightClips(ctx)
	if err != nil {
		s.logger.Error("failed to list in-flight clips", "error", err)
	}
	for _, c := range clips {
		got, err := s.generator.ClipStatus(ctx, c.ID)
		if err != nil {
			s.logger.Warn("clip status failed", "clip_id", c.ID, "error", err)
			continue
		}
		if got.Status.IsTerminal() {
			finished++
		}
	}

	if finished > 0 {
		s.logger.Info("sweep collected finished artifacts", "count", finished)
	}
	return finished
}
