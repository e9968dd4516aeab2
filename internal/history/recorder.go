package history

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/hamonitor/internal/monitor"
)

const (
	recordTimeout = 5 * time.Second
	pruneEvery    = time.Hour
)

// Logger is the logging interface used by the Recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Recorder is a monitor.Subscriber that writes every snapshot to the
// repository and prunes old rows at most once an hour.
type Recorder struct {
	repo      *SQLiteRepository
	retention time.Duration
	logger    Logger
	now       func() time.Time

	mu        sync.Mutex
	lastPrune time.Time
}

// NewRecorder returns a Recorder keeping retention worth of history.
func NewRecorder(repo *SQLiteRepository, retention time.Duration, logger Logger) *Recorder {
	return &Recorder{
		repo:      repo,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

// OnSnapshot implements monitor.Subscriber.
func (r *Recorder) OnSnapshot(snap *monitor.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := r.repo.Record(ctx, snap); err != nil {
		r.logger.Warn("recording poll history failed", "poll_id", snap.ID, "error", err)
		return
	}

	r.mu.Lock()
	due := r.retention > 0 && r.now().Sub(r.lastPrune) >= pruneEvery
	if due {
		r.lastPrune = r.now()
	}
	r.mu.Unlock()

	if !due {
		return
	}
	n, err := r.repo.Prune(ctx, r.retention, r.now())
	if err != nil {
		r.logger.Warn("pruning poll history failed", "error", err)
		return
	}
	if n > 0 {
		r.logger.Debug("pruned poll history", "rows", n)
	}
}
