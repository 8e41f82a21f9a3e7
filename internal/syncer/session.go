package syncer

import (
	"context"
	"time"

	"satsync/internal/remote"
	"satsync/internal/retry"
)

type session struct {
	client  remote.Client
	opened  time.Time
	files   int
	periods int
}

// recycleReason returns why the current session should be replaced, or "".
func (s *Syncer) recycleReason(ctx context.Context) string {
	p := s.src.Session
	switch {
	case p.MaxPeriods > 0 && s.sess.periods >= p.MaxPeriods:
		return "period limit"
	case p.MaxFiles > 0 && s.sess.files >= p.MaxFiles:
		return "file limit"
	case p.MaxAge > 0 && s.clock.Now().Sub(s.sess.opened) >= p.MaxAge:
		return "age limit"
	case p.Probe:
		if err := s.sess.client.Ping(ctx); err != nil {
			return "liveness probe failed"
		}
	}
	return ""
}

// prepareSession replaces a session that hit its policy limits and makes sure
// one is open.
func (s *Syncer) prepareSession(ctx context.Context) error {
	if s.sess != nil {
		if reason := s.recycleReason(ctx); reason != "" {
			s.log.Debug("Recycling remote session", map[string]interface{}{"reason": reason})
			s.dropSession()
		}
	}
	_, err := s.session(ctx)
	return err
}

func (s *Syncer) endPeriod() {
	if s.sess != nil {
		s.sess.periods++
	}
}

// session returns the open session, dialing until it succeeds or ctx is done.
func (s *Syncer) session(ctx context.Context) (remote.Client, error) {
	if s.sess != nil {
		return s.sess.client, nil
	}

	policy := retry.Unbounded(s.src.ConnectDelay)
	policy.Sleep = s.clock.Sleep
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		s.update(func(st *State) { st.LastError = err.Error() })
		s.log.Warn("Connection failed, retrying", map[string]interface{}{
			"remote":  s.src.Dialer.Describe(),
			"attempt": attempt,
			"wait":    wait.String(),
			"error":   err.Error(),
		})
	}

	var client remote.Client
	err := policy.Do(ctx, func(int) error {
		c, err := s.src.Dialer.Dial(ctx)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.sess = &session{client: client, opened: s.clock.Now()}
	s.update(func(st *State) { st.Sessions++ })
	s.log.Debug("Connected", map[string]interface{}{"remote": s.src.Dialer.Describe()})
	return client, nil
}

func (s *Syncer) dropSession() {
	if s.sess == nil {
		return
	}
	if err := s.sess.client.Close(); err != nil {
		s.log.Debug("Error closing remote session", map[string]interface{}{"error": err.Error()})
	}
	s.sess = nil
}
