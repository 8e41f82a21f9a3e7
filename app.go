package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"satsync/internal/checkpoint"
	"satsync/internal/config"
	"satsync/internal/logger"
	"satsync/internal/server"
	"satsync/internal/sources"
	"satsync/internal/storage"
	"satsync/internal/syncer"
)

// App owns the sync loops of one process and the resources they share.
type App struct {
	Config      *config.Config
	Mirror      storage.StorageClient
	Checkpoints *checkpoint.Store
	Syncers     []*syncer.Syncer
	MissingLogs map[string]string
}

// configuredSources returns the sources whose credentials are present.
func configuredSources(cfg *config.Config) []string {
	var names []string
	for _, name := range sources.Names {
		if cfg.ValidateSource(name) == nil {
			names = append(names, name)
		}
	}
	return names
}

// NewApp builds a syncer for every named source. With no names, every source
// that has credentials configured is used.
func NewApp(ctx context.Context, cfg *config.Config, names []string) (*App, error) {
	if len(names) == 0 {
		names = configuredSources(cfg)
		if len(names) == 0 {
			return nil, fmt.Errorf("no source is configured; set credentials for at least one of %s", strings.Join(sources.Names, ", "))
		}
	}
	if err := cfg.ValidateSources(names); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &App{Config: cfg, MissingLogs: map[string]string{}}

	mirror, err := storage.NewStorageClient(ctx, &cfg.Mirror)
	if err != nil {
		return nil, err
	}
	app.Mirror = mirror

	if cfg.CheckpointDB != "" {
		store, err := checkpoint.Open(ctx, cfg.CheckpointDB)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.Checkpoints = store
	}

	for _, name := range names {
		def, err := sources.Build(name, cfg)
		if err != nil {
			app.Close()
			return nil, err
		}
		opts, err := def.Options()
		if err != nil {
			app.Close()
			return nil, err
		}
		if app.Mirror != nil {
			opts = append(opts, syncer.WithMirror(app.Mirror))
		}
		if app.Checkpoints != nil {
			opts = append(opts, syncer.WithCheckpoints(app.Checkpoints))
		}

		s, err := syncer.New(def.Source, opts...)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.Syncers = append(app.Syncers, s)
		app.MissingLogs[def.Source.Name] = def.MissingLog
	}
	return app, nil
}

// Syncer returns the loop for a source name.
func (a *App) Syncer(name string) (*syncer.Syncer, bool) {
	for _, s := range a.Syncers {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// Run starts the status server (when a port is set) and one goroutine per
// loop, and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, len(a.Syncers)+1)

	if a.Config.StatusPort != "" {
		statusSources := make([]server.StatusSource, 0, len(a.Syncers))
		for _, s := range a.Syncers {
			statusSources = append(statusSources, s)
		}
		srv := server.NewServer(statusSources, a.MissingLogs, a.Mirror, config.GetVersion())
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.ListenAndServe(ctx, net.JoinHostPort("", a.Config.StatusPort)); err != nil {
				errCh <- fmt.Errorf("status server: %w", err)
				cancel()
			}
		}()
	}

	for _, s := range a.Syncers {
		wg.Add(1)
		go func(s *syncer.Syncer) {
			defer wg.Done()
			if err := s.Run(ctx); err != nil && !syncer.IsCancelled(err) {
				errCh <- fmt.Errorf("%s: %w", s.Name(), err)
				cancel()
			}
		}(s)
	}

	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close releases the mirror client and the checkpoint store.
func (a *App) Close() error {
	var errs []error
	if a.Mirror != nil {
		if err := a.Mirror.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Checkpoints != nil {
		if err := a.Checkpoints.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		logger.Error("Error closing resources", err)
		return err
	}
	return nil
}
