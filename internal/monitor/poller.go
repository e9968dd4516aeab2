package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/hamonitor/internal/balance"
	"github.com/nerrad567/hamonitor/internal/hass"
	"github.com/nerrad567/hamonitor/internal/offline"
	"github.com/nerrad567/hamonitor/internal/updates"
)

// DefaultInterval is the polling interval used when none is configured.
const DefaultInterval = 300 * time.Second

// Options configures a Poller.
type Options struct {
	Interval time.Duration
	Offline  *offline.Builder
	Updates  updates.Options
	Balance  *balance.Reader
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Poller periodically fetches Home Assistant data and derives a Snapshot.
//
// Each poll fetches states and both registries concurrently. Polls started by
// the ticker and by Refresh are not serialised against each other: whichever
// completes last replaces the current snapshot.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Poller struct {
	source Source
	opts   Options
	logger Logger

	current atomic.Pointer[Snapshot]
	seq     atomic.Uint64

	subs   map[uint64]Subscriber
	subSeq uint64
	subMu  sync.RWMutex

	refresh chan struct{}
	polls   sync.WaitGroup
}

// NewPoller creates a poller. Run must be called to start periodic polling.
func NewPoller(source Source, opts Options, logger Logger) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Offline == nil {
		opts.Offline = offline.NewBuilder(offline.Options{})
	}
	if opts.Balance == nil {
		opts.Balance = balance.NewReader(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Poller{
		source:  source,
		opts:    opts,
		logger:  logger,
		subs:    make(map[uint64]Subscriber),
		refresh: make(chan struct{}, 1),
	}
}

// Subscribe registers sub for future snapshots and returns a function that
// removes it. The returned function is safe to call more than once.
func (p *Poller) Subscribe(sub Subscriber) (unsubscribe func()) {
	p.subMu.Lock()
	p.subSeq++
	id := p.subSeq
	p.subs[id] = sub
	p.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.subMu.Lock()
			delete(p.subs, id)
			p.subMu.Unlock()
		})
	}
}

// SubscriberCount returns the number of registered subscribers.
func (p *Poller) SubscriberCount() int {
	p.subMu.RLock()
	defer p.subMu.RUnlock()
	return len(p.subs)
}

// Current returns the most recently completed snapshot, or nil before the
// first poll completes.
func (p *Poller) Current() *Snapshot {
	return p.current.Load()
}

// Refresh asks Run to start an extra poll. It never blocks; requests made
// while one is already queued are merged.
func (p *Poller) Refresh() {
	select {
	case p.refresh <- struct{}{}:
	default:
	}
}

// Run polls immediately and then on every tick or Refresh until ctx is
// cancelled. It waits for started polls to finish before returning.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	p.logger.Info("poller started", "interval", p.opts.Interval)
	p.start(ctx)

	for {
		select {
		case <-ctx.Done():
			p.polls.Wait()
			p.logger.Info("poller stopped")
			return nil
		case <-ticker.C:
			p.start(ctx)
		case <-p.refresh:
			p.logger.Debug("refresh requested")
			p.start(ctx)
		}
	}
}

func (p *Poller) start(ctx context.Context) {
	p.polls.Add(1)
	go func() {
		defer p.polls.Done()
		p.PollOnce(ctx)
	}()
}

// PollOnce fetches, derives, publishes and returns one snapshot.
//
// A fetch failure does not return an error: the snapshot is published with
// Known false and empty lists, and the failure is logged. A poll cut short
// by cancelling ctx is returned but never published.
func (p *Poller) PollOnce(ctx context.Context) *Snapshot {
	snap := &Snapshot{
		ID:        uuid.NewString(),
		Seq:       p.seq.Add(1),
		StartedAt: p.opts.Now(),
	}

	raw, err := p.fetch(ctx)
	snap.TakenAt = p.opts.Now()

	if err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil {
		p.logger.Debug("poll cancelled", "poll_id", snap.ID)
		snap.Error = err.Error()
		return snap
	}

	if err != nil {
		p.logger.Warn("home assistant data unavailable", "poll_id", snap.ID, "error", err)
		snap.Known = false
		snap.Error = err.Error()
		snap.Offline = offline.Unknown()
		snap.Updates = updates.Buckets{Core: []updates.UpdateRecord{}, ThirdParty: []updates.UpdateRecord{}}
		snap.Balance = []balance.Reading{}
	} else {
		snap.Known = true
		snap.HA = raw
		snap.Offline = p.opts.Offline.BuildSnapshot(raw)
		snap.Updates = updates.FromSnapshot(raw, p.opts.Updates)
		snap.Balance = p.opts.Balance.Read(raw)
	}

	p.current.Store(snap)

	sum := snap.Summary()
	p.logger.Debug("poll complete",
		"poll_id", snap.ID,
		"seq", snap.Seq,
		"known", sum.Known,
		"offline_devices", sum.OfflineDevices,
		"offline_entities", sum.OfflineEntities,
		"updates", sum.CoreUpdates+sum.OtherUpdates,
		"duration", snap.TakenAt.Sub(snap.StartedAt),
	)

	p.notify(snap)
	return snap
}

func (p *Poller) fetch(ctx context.Context) (*hass.Snapshot, error) {
	var (
		states   []hass.EntityState
		devices  []hass.Device
		entities []hass.EntityRegistration
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		states, err = p.source.GetStates(gctx)
		if err != nil {
			return fmt.Errorf("fetching states: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		devices, err = p.source.ListDevices(gctx)
		if err != nil {
			return fmt.Errorf("fetching device registry: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		entities, err = p.source.ListEntities(gctx)
		if err != nil {
			return fmt.Errorf("fetching entity registry: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return hass.NewSnapshot(states, devices, entities, p.opts.Now()), nil
}

// notify calls every subscriber, recovering from panics so one faulty
// subscriber cannot stop the others.
func (p *Poller) notify(snap *Snapshot) {
	p.subMu.RLock()
	subs := make([]Subscriber, 0, len(p.subs))
	for _, s := range p.subs {
		subs = append(subs, s)
	}
	p.subMu.RUnlock()

	for _, s := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("subscriber panic recovered", "poll_id", snap.ID, "panic", r)
				}
			}()
			s.OnSnapshot(snap)
		}()
	}
}
