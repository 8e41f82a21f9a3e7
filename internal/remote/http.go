package remote

import (
	"context"
	"crypto/tls"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/http2"
)

// Listing formats published by LAADS-style archives next to each directory.
const (
	ListingCSV  = "csv"
	ListingJSON = "json"
)

const defaultUserAgent = "satsync/1.0"

// NewHTTPClient builds the resty client used for archive and Earthdata requests:
// TLS 1.2 minimum, HTTP/2 enabled, redirects followed.
func NewHTTPClient(timeout time.Duration) (*resty.Client, error) {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 15 * time.Second,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("failed to enable HTTP/2: %w", err)
	}

	client := resty.New()
	client.SetTransport(transport)
	client.SetTimeout(timeout)
	client.SetHeader("User-Agent", defaultUserAgent)
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	return client, nil
}

// ArchiveDialer talks to an HTTPS archive such as LAADS DAAC, where every
// directory URL has a sibling "<dir>.csv" or "<dir>.json" listing.
type ArchiveDialer struct {
	BaseURL string
	// Token is sent as a bearer token when set.
	Token   string
	Format  string
	Timeout time.Duration

	client *resty.Client
}

// Describe implements Dialer.
func (d *ArchiveDialer) Describe() string {
	return d.BaseURL
}

// Dial implements Dialer. HTTP is stateless, so the same resty client is shared
// across sessions.
func (d *ArchiveDialer) Dial(ctx context.Context) (Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.client == nil {
		timeout := d.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Minute
		}
		client, err := NewHTTPClient(timeout)
		if err != nil {
			return nil, err
		}
		if d.Token != "" {
			client.SetAuthToken(d.Token)
		}
		d.client = client
	}

	format := d.Format
	if format == "" {
		format = ListingCSV
	}
	return &archiveClient{
		client:  d.client,
		baseURL: strings.TrimRight(d.BaseURL, "/"),
		format:  format,
	}, nil
}

type archiveClient struct {
	client  *resty.Client
	baseURL string
	format  string
}

func (c *archiveClient) dirURL(dir string) string {
	dir = strings.Trim(dir, "/")
	if dir == "" {
		return c.baseURL
	}
	return c.baseURL + "/" + dir
}

func (c *archiveClient) List(ctx context.Context, dir string) ([]Entry, error) {
	listURL := c.dirURL(dir) + "." + c.format

	resp, err := c.client.R().
		SetContext(ctx).
		Get(listURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listing %s: %w", listURL, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, listURL)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("listing %s returned status %d", listURL, resp.StatusCode())
	}

	switch c.format {
	case ListingJSON:
		return parseJSONListing(resp.Body())
	default:
		return parseCSVListing(resp.Body())
	}
}

func (c *archiveClient) Retrieve(ctx context.Context, dir, name string, w io.Writer) error {
	fileURL := c.dirURL(dir) + "/" + name

	resp, err := c.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(fileURL)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", fileURL, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, fileURL)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("download %s returned status %d", fileURL, resp.StatusCode())
	}
	if _, err := io.Copy(w, contextReader{ctx: ctx, r: body}); err != nil {
		return fmt.Errorf("transfer %s: %w", name, err)
	}
	return nil
}

func (c *archiveClient) Ping(ctx context.Context) error {
	resp, err := c.client.R().SetContext(ctx).Head(c.baseURL)
	if err != nil {
		return err
	}
	if resp.StatusCode() >= 500 {
		return fmt.Errorf("archive returned status %d", resp.StatusCode())
	}
	return nil
}

func (c *archiveClient) Close() error { return nil }

// parseCSVListing reads a LAADS "<dir>.csv" listing; columns are located by
// header name and padded cells are trimmed.
func parseCSVListing(body []byte) ([]Entry, error) {
	r := csv.NewReader(strings.NewReader(string(body)))
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV listing: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	nameCol, sizeCol := -1, -1
	for i, h := range records[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "name":
			nameCol = i
		case "size":
			sizeCol = i
		}
	}
	if nameCol < 0 {
		return nil, fmt.Errorf("CSV listing has no name column")
	}

	entries := make([]Entry, 0, len(records)-1)
	for _, rec := range records[1:] {
		if nameCol >= len(rec) {
			continue
		}
		e := Entry{Name: strings.TrimSpace(rec[nameCol])}
		if e.Name == "" {
			continue
		}
		if sizeCol >= 0 && sizeCol < len(rec) {
			e.Size, _ = strconv.ParseInt(strings.TrimSpace(rec[sizeCol]), 10, 64)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

type jsonListing struct {
	Content []struct {
		Name string          `json:"name"`
		Size json.RawMessage `json:"size"`
	} `json:"content"`
}

func parseJSONListing(body []byte) ([]Entry, error) {
	var listing jsonListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("failed to parse JSON listing: %w", err)
	}

	entries := make([]Entry, 0, len(listing.Content))
	for _, item := range listing.Content {
		if item.Name == "" {
			continue
		}
		size, _ := strconv.ParseInt(strings.Trim(string(item.Size), `"`), 10, 64)
		entries = append(entries, Entry{Name: item.Name, Size: size})
	}
	return entries, nil
}
