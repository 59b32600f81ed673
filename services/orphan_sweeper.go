package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/inkwell/repository"
	"github.com/cppla/inkwell/storage"
)

const sweepBatchSize = 500

// OrphanSweeper periodically deletes stored files that no post references.
// Files younger than the grace period are skipped so uploads of an in-flight
// create are never touched.
type OrphanSweeper struct {
	repo     repository.PostRepository
	backend  storage.Backend
	grace    time.Duration
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewOrphanSweeper builds a sweeper. Non-positive durations fall back to
// one hour of grace and a 15 minute interval.
func NewOrphanSweeper(repo repository.PostRepository, backend storage.Backend, grace, interval time.Duration, logger *zap.Logger) *OrphanSweeper {
	if grace <= 0 {
		grace = time.Hour
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrphanSweeper{
		repo:     repo,
		backend:  backend,
		grace:    grace,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Start launches the background loop. It returns immediately.
func (s *OrphanSweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			// wait one interval first so startup is not slowed by a listing
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if n, err := s.SweepOnce(ctx); err != nil {
				s.logger.Warn("orphan sweep failed", zap.Error(err))
			} else if n > 0 {
				s.logger.Info("orphan sweep removed files", zap.Int("count", n))
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit.
func (s *OrphanSweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
}

// SweepOnce runs a single reconciliation pass and returns the number of
// deleted files.
func (s *OrphanSweeper) SweepOnce(ctx context.Context) (int, error) {
	objects, err := s.backend.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-s.grace)
	var candidates []string
	for _, o := range objects {
		if o.ModTime.Before(cutoff) {
			candidates = append(candidates, o.Name)
		}
	}

	deleted := 0
	for start := 0; start < len(candidates); start += sweepBatchSize {
		end := min(start+sweepBatchSize, len(candidates))
		batch := candidates[start:end]
		referenced, err := s.repo.ReferencedNames(ctx, batch)
		if err != nil {
			return deleted, err
		}
		for _, name := range batch {
			if _, ok := referenced[name]; ok {
				continue
			}
			if err := s.backend.Delete(ctx, name); err != nil {
				s.logger.Warn("orphan delete failed", zap.String("name", name), zap.Error(err))
				continue
			}
			deleted++
		}
	}
	return deleted, nil
}
