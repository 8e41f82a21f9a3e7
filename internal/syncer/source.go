package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"satsync/internal/layout"
	"satsync/internal/remote"
	"satsync/internal/retry"
)

// GapPolicy decides what a missing remote period means.
type GapPolicy int

const (
	// GapTrack logs the miss and keeps walking; after MaxMissing consecutive
	// misses the loop goes real-time with the cursor on the first miss.
	GapTrack GapPolicy = iota
	// EndOfData treats the first missing period as the end of the archive.
	EndOfData
)

func (g GapPolicy) String() string {
	if g == EndOfData {
		return "end-of-data"
	}
	return "gap-track"
}

// SessionPolicy says when a remote session is replaced by a fresh one.
// Zero fields are ignored.
type SessionPolicy struct {
	MaxFiles   int
	MaxAge     time.Duration
	MaxPeriods int
	// Probe pings the session before each period and reconnects if it fails.
	Probe bool
}

// Processor post-processes one downloaded file.
type Processor interface {
	Run(ctx context.Context, file string) error
}

// KeyFunc maps a file name to the key used to decide whether it was downloaded.
type KeyFunc func(name string) string

// Source describes one remote product and how it is synchronized.
type Source struct {
	Name      string
	Dialer    remote.Dialer
	RemoteDir layout.Template
	LocalDir  layout.Template
	Step      layout.Step
	Start     time.Time
	Filter    remote.Filter

	// RemoteKey and LocalKey default to the identity.
	RemoteKey KeyFunc
	LocalKey  KeyFunc
	// RequireNonEmpty ignores zero-byte local files when building the known set.
	RequireNonEmpty bool
	// EmptyIsMissing treats a listing with no matching files as a missing period.
	EmptyIsMissing bool

	Gap        GapPolicy
	MaxMissing int
	// Lag keeps historical mode away from periods that are not published yet.
	Lag time.Duration
	// RealtimeWindow is how many periods before the current one a gap-tracking
	// source re-checks on every poll.
	RealtimeWindow int
	// Rescan is how many periods before the cursor an end-of-data source
	// re-checks on every poll.
	Rescan       int
	PollInterval time.Duration
	FileDelay    time.Duration
	PeriodDelay  time.Duration
	ConnectDelay time.Duration
	ErrorDelay   time.Duration

	Session       SessionPolicy
	ListRetry     retry.Policy
	DownloadRetry retry.Policy

	Processor Processor
}

func (src *Source) applyDefaults() {
	if src.RemoteKey == nil {
		src.RemoteKey = identity
	}
	if src.LocalKey == nil {
		src.LocalKey = identity
	}
	if src.Gap == GapTrack && src.MaxMissing <= 0 {
		src.MaxMissing = 24
	}
	if src.RealtimeWindow <= 0 {
		src.RealtimeWindow = 1
	}
	if src.PollInterval <= 0 {
		src.PollInterval = 10 * time.Minute
	}
	if src.ConnectDelay <= 0 {
		src.ConnectDelay = 30 * time.Second
	}
	if src.ErrorDelay <= 0 {
		src.ErrorDelay = 30 * time.Second
	}
	if src.ListRetry.MaxAttempts == 0 && src.ListRetry.Backoff == nil {
		src.ListRetry = retry.Policy{MaxAttempts: 3, Backoff: retry.Fixed(5 * time.Second)}
	}
	if src.DownloadRetry.MaxAttempts == 0 && src.DownloadRetry.Backoff == nil {
		src.DownloadRetry = retry.Policy{MaxAttempts: 3, Backoff: retry.Fixed(5 * time.Second)}
	}
	src.Start = src.Step.Truncate(src.Start)
}

func (src *Source) validate() error {
	if src.Name == "" {
		return errors.New("source name is required")
	}
	if src.Dialer == nil {
		return fmt.Errorf("%s: remote dialer is required", src.Name)
	}
	if src.Step <= 0 {
		return fmt.Errorf("%s: period step is required", src.Name)
	}
	if src.Start.IsZero() {
		return fmt.Errorf("%s: start period is required", src.Name)
	}
	if err := src.RemoteDir.Validate(); err != nil {
		return fmt.Errorf("%s: remote dir: %w", src.Name, err)
	}
	if err := src.LocalDir.Validate(); err != nil {
		return fmt.Errorf("%s: local dir: %w", src.Name, err)
	}
	return nil
}

func identity(name string) string { return name }
