// Package syncer implements the incremental sync loop shared by every source:
// walk the archive period by period from a cursor, download what is not yet
// known locally, post-process it, and switch to polling once caught up.
package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"satsync/internal/checkpoint"
	"satsync/internal/downloadlog"
	"satsync/internal/logger"
	"satsync/internal/missinglog"
	"satsync/internal/storage"
)

// CheckpointStore persists cursors between runs.
type CheckpointStore interface {
	Load(ctx context.Context, source string) (checkpoint.Checkpoint, bool, error)
	Save(ctx context.Context, cp checkpoint.Checkpoint) error
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithDownloadLog records downloaded keys in l and consults it when diffing.
func WithDownloadLog(l *downloadlog.Log) Option {
	return func(s *Syncer) { s.downloads = l }
}

// WithMissingLog appends missing periods of gap-tracking sources to l.
func WithMissingLog(l *missinglog.Log) Option {
	return func(s *Syncer) { s.missing = l }
}

// WithMirror copies every downloaded file to client.
func WithMirror(client storage.StorageClient) Option {
	return func(s *Syncer) { s.mirror = client }
}

// WithCheckpoints restores the cursor from store on start and saves it on every move.
func WithCheckpoints(store CheckpointStore) Option {
	return func(s *Syncer) { s.checkpoints = store }
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Syncer) { s.clock = c }
}

// WithLogger replaces the component logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Syncer) { s.log = l }
}

// Syncer runs the sync loop for one source. A Syncer is not safe for
// concurrent use except for Snapshot.
type Syncer struct {
	src         Source
	downloads   *downloadlog.Log
	missing     *missinglog.Log
	mirror      storage.StorageClient
	checkpoints CheckpointStore
	clock       Clock
	log         *logger.Logger

	sess *session

	mu    sync.RWMutex
	state State
}

// New validates src and returns a Syncer positioned at src.Start.
func New(src Source, opts ...Option) (*Syncer, error) {
	src.applyDefaults()
	if err := src.validate(); err != nil {
		return nil, err
	}

	s := &Syncer{src: src, clock: RealClock}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.WithComponent(src.Name)
	}
	if s.src.ListRetry.Sleep == nil {
		s.src.ListRetry.Sleep = s.clock.Sleep
	}
	if s.src.DownloadRetry.Sleep == nil {
		s.src.DownloadRetry.Sleep = s.clock.Sleep
	}

	s.state = State{Cursor: src.Start, UpdatedAt: s.clock.Now()}
	s.state.Mode = s.initialMode(src.Start)
	return s, nil
}

// Name returns the source name.
func (s *Syncer) Name() string { return s.src.Name }

// Snapshot returns a copy of the current state. Safe for concurrent use.
func (s *Syncer) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.snapshot(s.src.Name, s.src.Dialer.Describe())
}

func (s *Syncer) update(fn func(st *State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
	s.state.UpdatedAt = s.clock.Now()
}

func (s *Syncer) current() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// caughtUp reports whether t is too recent for historical mode.
func (s *Syncer) caughtUp(t time.Time) bool {
	return !t.Before(s.clock.Now().Add(-s.src.Lag))
}

func (s *Syncer) initialMode(cursor time.Time) Mode {
	if s.caughtUp(cursor) {
		return ModeRealtime
	}
	return ModeHistorical
}

// restore loads a stored cursor, which wins over the configured start.
func (s *Syncer) restore(ctx context.Context) {
	if s.checkpoints == nil {
		return
	}
	cp, ok, err := s.checkpoints.Load(ctx, s.src.Name)
	if err != nil {
		s.log.Error("Failed to load checkpoint, starting from configured start", err)
		return
	}
	if !ok {
		return
	}
	cursor := s.src.Step.Truncate(cp.Cursor)
	s.update(func(st *State) {
		st.Cursor = cursor
		st.LastFound = cp.LastFound
		st.Mode = s.initialMode(cursor)
	})
	s.log.Info("Resuming from checkpoint", map[string]interface{}{
		"cursor": s.src.Step.Label(cursor),
		"mode":   string(s.current().Mode),
	})
}

func (s *Syncer) saveCheckpoint(ctx context.Context) {
	if s.checkpoints == nil {
		return
	}
	st := s.current()
	err := s.checkpoints.Save(ctx, checkpoint.Checkpoint{
		Source:    s.src.Name,
		Cursor:    st.Cursor,
		Mode:      string(st.Mode),
		LastFound: st.LastFound,
	})
	if err != nil && ctx.Err() == nil {
		s.log.Error("Failed to save checkpoint", err)
	}
}

// Run syncs until ctx is cancelled and then returns ctx.Err().
func (s *Syncer) Run(ctx context.Context) error {
	defer s.dropSession()

	s.restore(ctx)
	st := s.current()
	s.log.Info("Starting sync loop", map[string]interface{}{
		"remote": s.src.Dialer.Describe(),
		"cursor": s.src.Step.Label(st.Cursor),
		"mode":   string(st.Mode),
		"step":   s.src.Step.String(),
		"gap":    s.src.Gap.String(),
	})

	for ctx.Err() == nil {
		if s.current().Mode == ModeHistorical {
			if err := s.RunHistorical(ctx); err != nil {
				return err
			}
			continue
		}

		wait := s.src.PollInterval
		if err := s.RealtimePass(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			s.recordError("Real-time pass failed", err)
			wait = s.src.ErrorDelay
		}
		s.dropSession()
		s.log.Debug("Waiting before next check", map[string]interface{}{"wait": wait.String()})
		if err := s.clock.Sleep(ctx, wait); err != nil {
			break
		}
	}
	return ctx.Err()
}

// RunHistorical walks forward from the cursor until the loop switches to
// real-time mode or ctx is cancelled. Errors other than cancellation are
// logged and the same period is retried.
func (s *Syncer) RunHistorical(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		cursor := s.current().Cursor
		if s.caughtUp(cursor) {
			s.log.Info("Historical download complete, switching to real-time mode", map[string]interface{}{
				"cursor": s.src.Step.Label(cursor),
			})
			s.switchToRealtime(ctx, cursor)
			return nil
		}

		res, err := s.SyncPeriod(ctx, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.recordError("Failed to sync period", err, map[string]interface{}{
				"period": s.src.Step.Label(cursor),
			})
			s.dropSession()
			if err := s.clock.Sleep(ctx, s.src.ErrorDelay); err != nil {
				return err
			}
			continue
		}

		if res.Found {
			s.update(func(st *State) {
				st.ConsecutiveMissing = 0
				st.FirstMissing = time.Time{}
				st.LastFound = cursor
				st.Cursor = s.src.Step.Add(cursor, 1)
			})
		} else if done := s.handleMissing(ctx, cursor); done {
			return nil
		}
		s.saveCheckpoint(ctx)

		if err := s.clock.Sleep(ctx, s.src.PeriodDelay); err != nil {
			return err
		}
	}
}

// handleMissing applies the gap policy to a missing historical period and
// reports whether historical mode is over.
func (s *Syncer) handleMissing(ctx context.Context, cursor time.Time) bool {
	if s.src.Gap == EndOfData {
		s.log.Info("No more data found, reached the end of the archive", map[string]interface{}{
			"period": s.src.Step.Label(cursor),
		})
		s.switchToRealtime(ctx, cursor)
		return true
	}

	var st State
	s.update(func(state *State) {
		if state.FirstMissing.IsZero() {
			state.FirstMissing = cursor
		}
		state.ConsecutiveMissing++
		st = *state
	})

	if st.ConsecutiveMissing >= s.src.MaxMissing {
		s.log.Warn("Too many consecutive missing periods, assuming caught up", map[string]interface{}{
			"missing":       st.ConsecutiveMissing,
			"first_missing": s.src.Step.Label(st.FirstMissing),
		})
		s.switchToRealtime(ctx, st.FirstMissing)
		return true
	}

	s.log.Info("Skipping missing period", map[string]interface{}{
		"period":  s.src.Step.Label(cursor),
		"missing": st.ConsecutiveMissing,
		"limit":   s.src.MaxMissing,
	})
	s.update(func(state *State) { state.Cursor = s.src.Step.Add(cursor, 1) })
	return false
}

func (s *Syncer) switchToRealtime(ctx context.Context, cursor time.Time) {
	s.update(func(st *State) {
		st.Mode = ModeRealtime
		st.Cursor = cursor
		st.ConsecutiveMissing = 0
		st.FirstMissing = time.Time{}
	})
	s.saveCheckpoint(ctx)
}

// RealtimePass performs one poll. Gap-tracking sources re-check a fixed window
// before the current period; end-of-data sources walk forward from just before
// the cursor while periods keep appearing.
func (s *Syncer) RealtimePass(ctx context.Context) error {
	if s.src.Gap == EndOfData {
		return s.walkForward(ctx)
	}
	return s.checkWindow(ctx)
}

func (s *Syncer) checkWindow(ctx context.Context) error {
	current := s.src.Step.Truncate(s.clock.Now())
	for i := s.src.RealtimeWindow; i >= 1; i-- {
		period := s.src.Step.Add(current, -i)
		res, err := s.SyncPeriod(ctx, period)
		if err != nil {
			return err
		}
		if res.Found {
			s.update(func(st *State) {
				if period.After(st.LastFound) {
					st.LastFound = period
				}
				if next := s.src.Step.Add(period, 1); next.After(st.Cursor) {
					st.Cursor = next
				}
			})
		}
		if err := s.clock.Sleep(ctx, s.src.PeriodDelay); err != nil {
			return err
		}
	}
	s.saveCheckpoint(ctx)
	return nil
}

func (s *Syncer) walkForward(ctx context.Context) error {
	start := s.current().Cursor
	period := s.src.Step.Add(start, -s.src.Rescan)
	if period.Before(s.src.Start) {
		period = s.src.Start
	}

	found := 0
	for !s.caughtUp(period) {
		res, err := s.SyncPeriod(ctx, period)
		if err != nil {
			return err
		}
		if !res.Found {
			break
		}
		found++
		p := period
		s.update(func(st *State) {
			if p.After(st.LastFound) {
				st.LastFound = p
			}
		})
		period = s.src.Step.Add(period, 1)
		if err := s.clock.Sleep(ctx, s.src.PeriodDelay); err != nil {
			return err
		}
	}

	if period.After(start) {
		s.update(func(st *State) { st.Cursor = period })
	}
	s.saveCheckpoint(ctx)

	if period.After(start) {
		s.log.Info("Updated archive", map[string]interface{}{
			"through": s.src.Step.Label(s.src.Step.Add(period, -1)),
		})
	} else if found == 0 {
		s.log.Info("No new updates found", map[string]interface{}{
			"cursor": s.src.Step.Label(start),
		})
	}
	return nil
}

func (s *Syncer) recordError(msg string, err error, fields ...map[string]interface{}) {
	s.update(func(st *State) { st.LastError = err.Error() })
	s.log.Error(msg, err, fields...)
}

// IsCancelled reports whether err only signals that the loop was stopped.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
