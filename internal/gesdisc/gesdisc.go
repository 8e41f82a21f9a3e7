// Package gesdisc downloads lists of GES DISC URLs behind Earthdata Login.
//
// Earthdata redirects unauthenticated requests to the URS host, which answers
// a basic-auth challenge with session cookies and redirects back. Credentials
// are only ever sent to the URS host; the cookies are kept in a jar file so
// later runs skip the login round trip.
package gesdisc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	cookiejar "github.com/juju/persistent-cookiejar"

	"satsync/internal/logger"
	"satsync/internal/remote"
	"satsync/internal/retry"
	"satsync/internal/storage"
)

// Options configures a Downloader.
type Options struct {
	User     string
	Password string
	// URSHost is the login host credentials are sent to, with an optional port.
	URSHost    string
	CookieFile string
	Attempts   int
	RetryDelay time.Duration
	Timeout    time.Duration
	// Sleep replaces the retry sleep in tests.
	Sleep retry.SleepFunc
}

// Downloader fetches URLs into a directory with a shared cookie jar.
type Downloader struct {
	client *resty.Client
	jar    *cookiejar.Jar
	opts   Options
	log    *logger.Logger
}

// Result is the outcome for one URL.
type Result struct {
	URL  string
	File string
	Err  error
}

// Summary totals a DownloadAll run.
type Summary struct {
	Total      int
	Downloaded int
	Failed     int
	Results    []Result
}

// New creates a Downloader. The cookie file is created if missing.
func New(opts Options) (*Downloader, error) {
	if opts.URSHost == "" {
		opts.URSHost = "urs.earthdata.nasa.gov"
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}

	jarOpts := &cookiejar.Options{NoPersist: opts.CookieFile == ""}
	if opts.CookieFile != "" {
		if err := os.MkdirAll(filepath.Dir(opts.CookieFile), 0755); err != nil {
			return nil, fmt.Errorf("failed to create cookie directory: %w", err)
		}
		jarOpts.Filename = opts.CookieFile
	}
	jar, err := cookiejar.New(jarOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open cookie jar %s: %w", opts.CookieFile, err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	client, err := remote.NewHTTPClient(timeout)
	if err != nil {
		return nil, err
	}

	d := &Downloader{
		client: client,
		jar:    jar,
		opts:   opts,
		log:    logger.WithComponent("gesdisc"),
	}
	client.SetCookieJar(jar)
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10), resty.RedirectPolicyFunc(d.authorizeRedirect))
	client.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		if u, err := url.Parse(r.URL); err == nil && d.isURS(u) {
			r.SetBasicAuth(opts.User, opts.Password)
		}
		return nil
	})
	return d, nil
}

func (d *Downloader) isURS(u *url.URL) bool {
	if strings.Contains(d.opts.URSHost, ":") {
		return strings.EqualFold(u.Host, d.opts.URSHost)
	}
	return strings.EqualFold(u.Hostname(), d.opts.URSHost)
}

// authorizeRedirect adds credentials to hops that land on the URS host and
// strips them from every other hop.
func (d *Downloader) authorizeRedirect(req *http.Request, via []*http.Request) error {
	if d.isURS(req.URL) {
		req.SetBasicAuth(d.opts.User, d.opts.Password)
	} else {
		req.Header.Del("Authorization")
	}
	return nil
}

// Close persists the cookie jar.
func (d *Downloader) Close() error {
	if d.opts.CookieFile == "" {
		return nil
	}
	if err := d.jar.Save(); err != nil {
		return fmt.Errorf("failed to save cookies to %s: %w", d.opts.CookieFile, err)
	}
	return nil
}

// ReadURLList reads one URL per line, skipping blank lines and # comments.
func ReadURLList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open URL list: %w", err)
	}
	defer f.Close()
	return ParseURLList(f)
}

// ParseURLList is ReadURLList over a reader.
func ParseURLList(r io.Reader) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read URL list: %w", err)
	}
	return urls, nil
}

// DownloadAll fetches every URL into targetDir. Failures are logged and
// counted; the error is non-nil only if ctx is cancelled.
func (d *Downloader) DownloadAll(ctx context.Context, urls []string, targetDir string) (Summary, error) {
	summary := Summary{Total: len(urls)}
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return summary, fmt.Errorf("failed to create %s: %w", targetDir, err)
	}

	for i, u := range urls {
		d.log.Info("Downloading", map[string]interface{}{"url": u, "index": i + 1, "total": len(urls)})
		file, err := d.Download(ctx, u, targetDir)
		summary.Results = append(summary.Results, Result{URL: u, File: file, Err: err})
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			summary.Failed++
			d.log.Warn("Download failed", map[string]interface{}{"url": u, "error": err.Error()})
			continue
		}
		summary.Downloaded++
		d.log.Info("Saved", map[string]interface{}{"file": file})
	}

	d.log.Info("All downloads attempted", map[string]interface{}{
		"total":      summary.Total,
		"downloaded": summary.Downloaded,
		"failed":     summary.Failed,
	})
	return summary, nil
}

type statusError struct {
	code   int
	status string
}

func (e *statusError) Error() string { return "unexpected HTTP status " + e.status }

// Download fetches one URL into targetDir and returns the written path.
func (d *Downloader) Download(ctx context.Context, rawURL, targetDir string) (string, error) {
	fallback, err := nameFromURL(rawURL)
	if err != nil {
		return "", err
	}

	policy := retry.Policy{
		MaxAttempts: d.opts.Attempts,
		Backoff:     retry.Fixed(d.opts.RetryDelay),
		Sleep:       d.opts.Sleep,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			d.log.Warn("Retrying download", map[string]interface{}{
				"url":     rawURL,
				"attempt": attempt,
				"wait":    wait.String(),
				"error":   err.Error(),
			})
		},
	}

	var written string
	err = policy.Do(ctx, func(int) error {
		file, err := d.fetch(ctx, rawURL, targetDir, fallback)
		if err == nil {
			written = file
			return nil
		}
		var se *statusError
		if errors.As(err, &se) && se.code >= 400 && se.code < 500 && se.code != http.StatusTooManyRequests {
			return retry.Permanent(err)
		}
		return err
	})
	return written, err
}

func (d *Downloader) fetch(ctx context.Context, rawURL, targetDir, fallback string) (string, error) {
	resp, err := d.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(rawURL)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.IsError() {
		return "", &statusError{code: resp.StatusCode(), status: resp.Status()}
	}

	name := nameFromDisposition(resp.Header().Get("Content-Disposition"))
	if name == "" {
		name = fallback
	}
	dst := filepath.Join(targetDir, name)
	if err := storage.AtomicWrite(dst, func(w io.Writer) error {
		_, err := io.Copy(w, body)
		return err
	}); err != nil {
		return "", err
	}
	return dst, nil
}

// nameFromDisposition returns the filename parameter of a Content-Disposition
// header, reduced to its base name.
func nameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return safeName(params["filename"])
}

// nameFromURL prefers the LABEL query parameter GES DISC subset URLs carry,
// then the last path segment.
func nameFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid URL %q: unsupported scheme", rawURL)
	}
	if name := safeName(u.Query().Get("LABEL")); name != "" {
		return name, nil
	}
	if name := safeName(path.Base(u.Path)); name != "" {
		return name, nil
	}
	return "", fmt.Errorf("cannot derive a file name from %q", rawURL)
}

func safeName(name string) string {
	name = filepath.Base(strings.TrimSpace(strings.ReplaceAll(name, "\\", "/")))
	switch name {
	case ".", "..", "/":
		return ""
	}
	return name
}
