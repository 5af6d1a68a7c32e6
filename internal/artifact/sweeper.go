package artifact

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/gorhill/cronexpr"
)

// Sweeper removes artifacts older than the retention age on a cron schedule.
// An unparseable cron spec falls back to a daily sweep.
type Sweeper struct {
	store  *Store
	spec   string
	maxAge time.Duration
}

func NewSweeper(store *Store, cronSpec string, maxAge time.Duration) *Sweeper {
	return &Sweeper{store: store, spec: cronSpec, maxAge: maxAge}
}

// Run blocks until ctx is done, sweeping at each cron tick.
func (s *Sweeper) Run(ctx context.Context) {
	if s.maxAge <= 0 {
		return
	}
	for {
		wait := s.untilNext(time.Now())
		select {
		case <-time.After(wait):
			removed := s.SweepOnce(time.Now())
			if removed > 0 {
				s.store.logger.Printf("retention sweep removed %d artifacts", removed)
			}
		case <-ctx.Done():
			return
		}
	}
}

// SweepOnce removes expired artifacts and returns how many were deleted.
func (s *Sweeper) SweepOnce(now time.Time) int {
	entries, err := os.ReadDir(s.store.dir)
	if err != nil {
		s.store.logger.Printf("retention sweep: %v", err)
		return 0
	}
	cutoff := now.Add(-s.maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.store.dir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed
}

func (s *Sweeper) untilNext(now time.Time) time.Duration {
	expr, err := cronexpr.Parse(s.spec)
	if err != nil {
		return 24 * time.Hour
	}
	next := expr.Next(now)
	if next.IsZero() {
		return 24 * time.Hour
	}
	return next.Sub(now)
}
