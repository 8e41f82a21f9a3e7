// Package layout maps sync periods to remote and local paths.
package layout

import (
	"fmt"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
)

// Template is a strftime pattern such as "/gpmdata/%Y/%m/%d/gis/".
// Supported directives include %Y %m %d %H %j.
type Template string

// Format renders the template for t in UTC.
func (tpl Template) Format(t time.Time) string {
	return strftime.Format(string(tpl), t.UTC())
}

// Validate rejects empty templates and templates without any time directive.
func (tpl Template) Validate() error {
	if tpl == "" {
		return fmt.Errorf("empty path template")
	}
	if !strings.Contains(string(tpl), "%") {
		return fmt.Errorf("path template %q has no time directive", tpl)
	}
	return nil
}

// Step is the unit a cursor advances by.
type Step time.Duration

const (
	Hourly = Step(time.Hour)
	Daily  = Step(24 * time.Hour)
)

// Duration returns the step as a time.Duration.
func (s Step) Duration() time.Duration { return time.Duration(s) }

// Truncate aligns t (in UTC) to the start of its period.
func (s Step) Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Duration(s))
}

// Add moves t by n periods.
func (s Step) Add(t time.Time, n int) time.Time {
	return t.Add(time.Duration(n) * time.Duration(s))
}

// Label renders t at the step's resolution for logs.
func (s Step) Label(t time.Time) string {
	if s >= Daily {
		return t.UTC().Format("2006-01-02")
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func (s Step) String() string {
	switch s {
	case Hourly:
		return "hourly"
	case Daily:
		return "daily"
	default:
		return time.Duration(s).String()
	}
}

// ParseStart parses a configured start cursor. Accepted forms are
// "2006-01-02", "2006-01-02T15" and "2006-01-02T15:04".
func ParseStart(value string) (time.Time, error) {
	for _, f := range []string{"2006-01-02T15:04", "2006-01-02T15", "2006-01-02"} {
		if t, err := time.ParseInLocation(f, value, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid start date %q: use YYYY-MM-DD or YYYY-MM-DDTHH", value)
}
