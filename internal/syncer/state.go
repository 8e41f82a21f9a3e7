package syncer

import (
	"time"
)

// Mode is the phase a sync loop is in.
type Mode string

const (
	ModeHistorical Mode = "historical"
	ModeRealtime   Mode = "realtime"
)

// State is the mutable progress of one loop. It is owned by the loop goroutine;
// other goroutines read it through Snapshot.
type State struct {
	Mode               Mode
	Cursor             time.Time
	ConsecutiveMissing int
	FirstMissing       time.Time
	LastFound          time.Time

	PeriodsChecked    int
	PeriodsMissing    int
	FilesDownloaded   int
	FilesFailed       int
	FilesSkipped      int
	ProcessorTimeouts int
	ProcessorFailures int
	Sessions          int

	LastError string
	UpdatedAt time.Time
}

// Snapshot is a copy of a loop's state for reporting.
type Snapshot struct {
	Source             string    `json:"source"`
	Remote             string    `json:"remote"`
	Mode               Mode      `json:"mode"`
	Cursor             time.Time `json:"cursor"`
	ConsecutiveMissing int       `json:"consecutive_missing"`
	FirstMissing       time.Time `json:"first_missing,omitempty"`
	LastFound          time.Time `json:"last_found,omitempty"`
	PeriodsChecked     int       `json:"periods_checked"`
	PeriodsMissing     int       `json:"periods_missing"`
	FilesDownloaded    int       `json:"files_downloaded"`
	FilesFailed        int       `json:"files_failed"`
	FilesSkipped       int       `json:"files_skipped"`
	ProcessorTimeouts  int       `json:"processor_timeouts"`
	ProcessorFailures  int       `json:"processor_failures"`
	Sessions           int       `json:"sessions"`
	LastError          string    `json:"last_error,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (st State) snapshot(source, remote string) Snapshot {
	return Snapshot{
		Source:             source,
		Remote:             remote,
		Mode:               st.Mode,
		Cursor:             st.Cursor,
		ConsecutiveMissing: st.ConsecutiveMissing,
		FirstMissing:       st.FirstMissing,
		LastFound:          st.LastFound,
		PeriodsChecked:     st.PeriodsChecked,
		PeriodsMissing:     st.PeriodsMissing,
		FilesDownloaded:    st.FilesDownloaded,
		FilesFailed:        st.FilesFailed,
		FilesSkipped:       st.FilesSkipped,
		ProcessorTimeouts:  st.ProcessorTimeouts,
		ProcessorFailures:  st.ProcessorFailures,
		Sessions:           st.Sessions,
		LastError:          st.LastError,
		UpdatedAt:          st.UpdatedAt,
	}
}
