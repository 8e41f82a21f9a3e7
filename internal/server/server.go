package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"time"

	"satsync/internal/logger"
	"satsync/internal/storage"
	"satsync/internal/syncer"
)

// StatusSource is a running sync loop.
type StatusSource interface {
	Name() string
	Snapshot() syncer.Snapshot
}

// Server exposes health and progress of the running loops over HTTP.
type Server struct {
	Sources     []StatusSource
	MissingLogs map[string]string
	Mirror      storage.StorageClient
	StartedAt   time.Time
	Version     string

	log *logger.Logger
}

// NewServer creates a new server instance. missingLogs maps source names to
// their missing-data log paths; mirror may be nil.
func NewServer(sources []StatusSource, missingLogs map[string]string, mirror storage.StorageClient, version string) *Server {
	sorted := append([]StatusSource(nil), sources...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name() < sorted[j].Name() })
	if missingLogs == nil {
		missingLogs = map[string]string{}
	}
	return &Server{
		Sources:     sorted,
		MissingLogs: missingLogs,
		Mirror:      mirror,
		StartedAt:   time.Now().UTC(),
		Version:     version,
		log:         logger.WithComponent("server"),
	}
}

// SetupRoutes configures HTTP routes for the server
func (s *Server) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.HandleHealth)
	mux.HandleFunc("/status", s.HandleStatus)
	mux.HandleFunc("/status/", s.HandleSourceStatus)
	mux.HandleFunc("/mirror", s.HandleMirrorList)
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Status server listening", map[string]interface{}{"addr": ln.Addr().String()})
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("status server shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) source(name string) (StatusSource, bool) {
	for _, src := range s.Sources {
		if src.Name() == name {
			return src, true
		}
	}
	return nil, false
}
