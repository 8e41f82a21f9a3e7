package remote

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"path"
	"time"

	"github.com/jlaffaye/ftp"
)

// FTPDialer opens FTP sessions, optionally upgraded with explicit TLS (AUTH TLS
// on the control port, protected data channel).
type FTPDialer struct {
	Addr        string
	User        string
	Password    string
	ExplicitTLS bool
	Timeout     time.Duration
	// TLSConfig overrides the default TLS 1.2+ configuration.
	TLSConfig *tls.Config
}

// Describe implements Dialer.
func (d *FTPDialer) Describe() string {
	scheme := "ftp"
	if d.ExplicitTLS {
		scheme = "ftps"
	}
	return fmt.Sprintf("%s://%s", scheme, d.Addr)
}

// Dial implements Dialer.
func (d *FTPDialer) Dial(ctx context.Context) (Client, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(timeout),
	}
	if d.ExplicitTLS {
		cfg := d.TLSConfig
		if cfg == nil {
			host, _, err := net.SplitHostPort(d.Addr)
			if err != nil {
				host = d.Addr
			}
			cfg = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
		}
		opts = append(opts, ftp.DialWithExplicitTLS(cfg))
	}

	conn, err := ftp.Dial(d.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", d.Describe(), err)
	}
	if err := conn.Login(d.User, d.Password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("failed to log in to %s: %w", d.Describe(), err)
	}
	return &ftpClient{conn: conn}, nil
}

type ftpClient struct {
	conn *ftp.ServerConn
}

func (c *ftpClient) List(ctx context.Context, dir string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.conn.ChangeDir(dir); err != nil {
		return nil, classifyFTP(fmt.Errorf("cwd %s: %w", dir, err))
	}
	names, err := c.conn.NameList(dir)
	if err != nil {
		return nil, classifyFTP(fmt.Errorf("nlst %s: %w", dir, err))
	}

	entries := make([]Entry, 0, len(names))
	for _, n := range names {
		if b := baseName(n); b != "" && b != "." && b != ".." {
			entries = append(entries, Entry{Name: b})
		}
	}
	return entries, nil
}

func (c *ftpClient) Retrieve(ctx context.Context, dir, name string, w io.Writer) error {
	resp, err := c.conn.Retr(path.Join(dir, name))
	if err != nil {
		return classifyFTP(fmt.Errorf("retr %s: %w", name, err))
	}
	_, copyErr := io.Copy(w, contextReader{ctx: ctx, r: resp})
	closeErr := resp.Close()
	if copyErr != nil {
		return fmt.Errorf("transfer %s: %w", name, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("finish transfer %s: %w", name, closeErr)
	}
	return nil
}

func (c *ftpClient) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.conn.NoOp()
}

func (c *ftpClient) Close() error {
	return c.conn.Quit()
}

// classifyFTP maps "550 file unavailable" replies onto ErrNotFound.
func classifyFTP(err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && tpErr.Code == ftp.StatusFileUnavailable {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
