// Package remote provides the archive clients the sync loop talks to: plain FTP,
// explicit FTPS and HTTPS archives that publish per-directory listings.
package remote

import (
	"context"
	"errors"
	"io"
	"path"
	"regexp"
	"sort"
	"strings"
)

// ErrNotFound reports that a remote directory or file does not exist
// (FTP 550, HTTP 404).
var ErrNotFound = errors.New("remote path not found")

// Entry is a single file in a remote listing.
type Entry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Client is one open session with a remote archive.
type Client interface {
	// List returns the files in dir. A missing dir yields ErrNotFound.
	List(ctx context.Context, dir string) ([]Entry, error)

	// Retrieve streams dir/name into w.
	Retrieve(ctx context.Context, dir, name string, w io.Writer) error

	// Ping checks that the session is still usable.
	Ping(ctx context.Context) error

	Close() error
}

// Dialer opens new sessions.
type Dialer interface {
	Dial(ctx context.Context) (Client, error)
	// Describe names the endpoint for logs.
	Describe() string
}

// Filter selects the entries a source cares about. All non-empty criteria must match.
type Filter struct {
	// Suffix is a required file extension such as ".nc".
	Suffix string
	// Pattern is searched anywhere in the name.
	Pattern *regexp.Regexp
	// AnyOf requires at least one of the substrings (MODIS tile ids).
	AnyOf []string
}

// Match reports whether name passes the filter.
func (f Filter) Match(name string) bool {
	if name == "" {
		return false
	}
	if f.Suffix != "" && !strings.HasSuffix(name, f.Suffix) {
		return false
	}
	if f.Pattern != nil && !f.Pattern.MatchString(name) {
		return false
	}
	if len(f.AnyOf) > 0 {
		found := false
		for _, s := range f.AnyOf {
			if strings.Contains(name, s) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Apply returns the matching entries sorted by name, so the result does not
// depend on the order the server listed them in.
func (f Filter) Apply(entries []Entry) []Entry {
	var out []Entry
	for _, e := range entries {
		if f.Match(e.Name) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// baseName strips any directory prefix some servers include in NLST output.
func baseName(name string) string {
	name = strings.TrimRight(strings.TrimSpace(name), "/")
	if name == "" {
		return ""
	}
	return path.Base(name)
}

// contextReader stops a copy once ctx is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
