// Package sources turns configuration into the three archive loops this
// service runs: Himawari AOD, GPM IMERG GIS and MODIS MOD11A1.
package sources

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"satsync/internal/config"
	"satsync/internal/downloadlog"
	"satsync/internal/layout"
	"satsync/internal/missinglog"
	"satsync/internal/processor"
	"satsync/internal/remote"
	"satsync/internal/retry"
	"satsync/internal/syncer"
)

// Source names accepted on the command line.
const (
	HimawariName = "himawari"
	IMERGName    = "imerg"
	MODISName    = "modis"
)

// Names lists every known source in start order.
var Names = []string{HimawariName, IMERGName, MODISName}

// Definition is a ready-to-run source plus the log files it keeps.
type Definition struct {
	Source      syncer.Source
	DownloadLog string
	MissingLog  string
}

// Options opens the definition's logs and returns them as syncer options.
func (d Definition) Options() ([]syncer.Option, error) {
	var opts []syncer.Option
	if d.DownloadLog != "" {
		dl, err := downloadlog.Open(d.DownloadLog, downloadlog.Options{})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.Source.Name, err)
		}
		opts = append(opts, syncer.WithDownloadLog(dl))
	}
	if d.MissingLog != "" {
		opts = append(opts, syncer.WithMissingLog(missinglog.New(d.MissingLog)))
	}
	return opts, nil
}

// Build returns the definition for the named source. Credentials are checked
// here so a misconfigured source fails at startup.
func Build(name string, cfg *config.Config) (Definition, error) {
	switch strings.ToLower(name) {
	case HimawariName:
		if err := cfg.Himawari.Validate(); err != nil {
			return Definition{}, err
		}
		return Himawari(cfg.Himawari)
	case IMERGName:
		if err := cfg.IMERG.Validate(); err != nil {
			return Definition{}, err
		}
		return IMERG(cfg.IMERG)
	case MODISName:
		if err := cfg.MODIS.Validate(); err != nil {
			return Definition{}, err
		}
		return MODIS(cfg.MODIS)
	default:
		return Definition{}, fmt.Errorf("unknown source %q (known: %s)", name, strings.Join(Names, ", "))
	}
}

// HimawariRemoteKey maps a remote NetCDF name to its download key.
func HimawariRemoteKey(name string) string {
	return strings.TrimSuffix(name, ".nc")
}

// HimawariLocalKey maps a local file to the same key. The processor writes
// aod_vietnam_<key>.tif next to (or instead of) the raw file.
func HimawariLocalKey(name string) string {
	name = strings.TrimPrefix(name, "aod_vietnam_")
	name = strings.TrimSuffix(name, ".tif")
	return strings.TrimSuffix(name, ".nc")
}

// Himawari builds the hourly AOD source on the JAXA P-Tree FTP server.
func Himawari(cfg config.HimawariConfig) (Definition, error) {
	start, err := layout.ParseStart(cfg.Start)
	if err != nil {
		return Definition{}, fmt.Errorf("HIMAWARI_START: %w", err)
	}

	src := syncer.Source{
		Name: HimawariName,
		Dialer: &remote.FTPDialer{
			Addr:     cfg.Host,
			User:     cfg.User,
			Password: cfg.Password,
			Timeout:  cfg.Timeout,
		},
		RemoteDir:      layout.Template(cfg.RemoteTemplate),
		LocalDir:       layout.Template(cfg.LocalTemplate),
		Step:           layout.Hourly,
		Start:          start,
		Filter:         remote.Filter{Suffix: ".nc"},
		RemoteKey:      HimawariRemoteKey,
		LocalKey:       HimawariLocalKey,
		Gap:            syncer.GapTrack,
		MaxMissing:     cfg.MaxMissing,
		Lag:            cfg.Lag,
		RealtimeWindow: cfg.RealtimeWindow,
		PollInterval:   cfg.PollInterval,
		PeriodDelay:    time.Second,
		// P-Tree drops idle control connections, so every hour gets a fresh login.
		Session:       syncer.SessionPolicy{MaxPeriods: 1},
		ListRetry:     retryPolicy(cfg.DownloadAttempts, cfg.RetryDelay),
		DownloadRetry: retryPolicy(cfg.DownloadAttempts, cfg.RetryDelay),
		Processor:     processorFor(cfg.Processor),
	}
	return Definition{Source: src, DownloadLog: cfg.DownloadLog, MissingLog: cfg.MissingLog}, nil
}

// IMERG builds the daily GPM IMERG GIS source on the PPS FTPS server.
func IMERG(cfg config.IMERGConfig) (Definition, error) {
	start, err := layout.ParseStart(cfg.Start)
	if err != nil {
		return Definition{}, fmt.Errorf("IMERG_START: %w", err)
	}
	pattern, err := regexp.Compile(cfg.Pattern)
	if err != nil {
		return Definition{}, fmt.Errorf("IMERG_PATTERN: %w", err)
	}

	src := syncer.Source{
		Name: IMERGName,
		Dialer: &remote.FTPDialer{
			Addr:        cfg.Host,
			User:        cfg.User,
			Password:    cfg.Password,
			ExplicitTLS: true,
			Timeout:     cfg.Timeout,
		},
		RemoteDir:      layout.Template(cfg.RemoteTemplate),
		LocalDir:       layout.Template(cfg.LocalTemplate),
		Step:           layout.Daily,
		Start:          start,
		Filter:         remote.Filter{Pattern: pattern},
		EmptyIsMissing: true,
		Gap:            syncer.EndOfData,
		Rescan:         cfg.Rescan,
		PollInterval:   cfg.PollInterval,
		Session:        syncer.SessionPolicy{MaxPeriods: cfg.SessionPeriods, Probe: true},
		ListRetry:      retryPolicy(cfg.DownloadAttempts, cfg.RetryDelay),
		DownloadRetry:  retryPolicy(cfg.DownloadAttempts, cfg.RetryDelay),
		Processor:      processorFor(cfg.Processor),
	}
	return Definition{Source: src, DownloadLog: cfg.DownloadLog}, nil
}

// MODIS builds the daily MOD11A1 source on the LAADS HTTPS archive.
func MODIS(cfg config.MODISConfig) (Definition, error) {
	start, err := layout.ParseStart(cfg.Start)
	if err != nil {
		return Definition{}, fmt.Errorf("MODIS_START: %w", err)
	}

	src := syncer.Source{
		Name: MODISName,
		Dialer: &remote.ArchiveDialer{
			BaseURL: cfg.BaseURL,
			Token:   cfg.Token,
			Format:  strings.ToLower(cfg.ListingFormat),
			Timeout: cfg.Timeout,
		},
		RemoteDir:       layout.Template(cfg.RemoteTemplate),
		LocalDir:        layout.Template(cfg.LocalTemplate),
		Step:            layout.Daily,
		Start:           start,
		Filter:          remote.Filter{Suffix: ".hdf", AnyOf: cfg.Tiles},
		RequireNonEmpty: true,
		EmptyIsMissing:  true,
		Gap:             syncer.EndOfData,
		Rescan:          cfg.Rescan,
		PollInterval:    cfg.PollInterval,
		FileDelay:       cfg.FileDelay,
		ListRetry:       retryPolicy(cfg.DownloadAttempts, cfg.RetryDelay),
		DownloadRetry:   retryPolicy(cfg.DownloadAttempts, cfg.RetryDelay),
		Processor:       processorFor(cfg.Processor),
	}
	return Definition{Source: src, DownloadLog: cfg.DownloadLog}, nil
}

func retryPolicy(attempts int, delay time.Duration) retry.Policy {
	if attempts <= 0 {
		attempts = 1
	}
	return retry.Policy{MaxAttempts: attempts, Backoff: retry.Fixed(delay)}
}

// processorFor returns nil when no program is configured so the loop skips the step.
func processorFor(pc config.ProcessorConfig) syncer.Processor {
	cmd := processor.Command{Program: pc.Program, Args: pc.Args, Timeout: pc.Timeout}
	if !cmd.Enabled() {
		return nil
	}
	return cmd
}
