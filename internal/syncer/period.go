package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"satsync/internal/processor"
	"satsync/internal/remote"
	"satsync/internal/retry"
	"satsync/internal/storage"
)

// PeriodResult summarizes one period.
type PeriodResult struct {
	Period     time.Time
	RemoteDir  string
	Found      bool
	Listed     int
	Matched    int
	Known      int
	Downloaded int
	Failed     int
}

// SyncPeriod lists the remote directory for period t, downloads and processes
// every matching file that is not already known, and reports whether the period
// exists remotely. The returned error is non-nil only when the period could not
// be checked at all (lost connection, cancellation); a missing period is a
// result, not an error.
func (s *Syncer) SyncPeriod(ctx context.Context, t time.Time) (PeriodResult, error) {
	remoteDir := s.src.RemoteDir.Format(t)
	localDir := s.src.LocalDir.Format(t)
	res := PeriodResult{Period: t, RemoteDir: remoteDir}

	s.log.Debug("Checking period", map[string]interface{}{
		"period": s.src.Step.Label(t),
		"remote": remoteDir,
	})

	if err := s.prepareSession(ctx); err != nil {
		return res, err
	}
	defer s.endPeriod()

	entries, err := s.list(ctx, remoteDir)
	if errors.Is(err, remote.ErrNotFound) {
		s.markMissing(t, remoteDir, err.Error())
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("failed to list %s: %w", remoteDir, err)
	}
	res.Listed = len(entries)

	matched := s.src.Filter.Apply(entries)
	res.Matched = len(matched)
	if len(matched) == 0 && s.src.EmptyIsMissing {
		s.markMissing(t, remoteDir, "no matching files")
		return res, nil
	}
	res.Found = true
	s.update(func(st *State) { st.PeriodsChecked++ })

	if err := os.MkdirAll(localDir, 0755); err != nil {
		return res, fmt.Errorf("failed to create %s: %w", localDir, err)
	}
	known := s.knownKeys(localDir)

	var pending []remote.Entry
	for _, e := range matched {
		key := s.src.RemoteKey(e.Name)
		if known[key] || (s.downloads != nil && s.downloads.Contains(key)) {
			continue
		}
		pending = append(pending, e)
	}
	res.Known = len(matched) - len(pending)
	s.update(func(st *State) { st.FilesSkipped += res.Known })

	if len(pending) == 0 {
		s.log.Info("Period up to date", map[string]interface{}{
			"period":  s.src.Step.Label(t),
			"matched": len(matched),
		})
		return res, nil
	}

	s.log.Info("Downloading new files", map[string]interface{}{
		"period": s.src.Step.Label(t),
		"count":  len(pending),
		"remote": remoteDir,
	})

	for i, e := range pending {
		if i > 0 {
			if err := s.clock.Sleep(ctx, s.src.FileDelay); err != nil {
				return res, err
			}
		}
		ok, err := s.fetch(ctx, remoteDir, localDir, e)
		if err != nil {
			return res, err
		}
		if ok {
			res.Downloaded++
		} else {
			res.Failed++
		}
	}
	return res, nil
}

func (s *Syncer) markMissing(t time.Time, remoteDir, reason string) {
	s.update(func(st *State) { st.PeriodsMissing++ })
	s.log.Info("Remote period not available", map[string]interface{}{
		"period": s.src.Step.Label(t),
		"remote": remoteDir,
		"reason": reason,
	})
	if s.src.Gap != GapTrack {
		return
	}
	if err := s.missing.Record(t, remoteDir, reason); err != nil {
		s.log.Warn("Could not write to missing data log", map[string]interface{}{"error": err.Error()})
	}
}

// knownKeys returns the keys of the files already present in dir. Partial
// downloads never count.
func (s *Syncer) knownKeys(dir string) map[string]bool {
	known := make(map[string]bool)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("Error reading local directory", map[string]interface{}{"dir": dir, "error": err.Error()})
		}
		return known
	}
	for _, e := range entries {
		if e.IsDir() || storage.IsPartial(e.Name()) {
			continue
		}
		if s.src.RequireNonEmpty {
			info, err := e.Info()
			if err != nil || info.Size() == 0 {
				continue
			}
		}
		known[s.src.LocalKey(e.Name())] = true
	}
	return known
}

func (s *Syncer) list(ctx context.Context, dir string) ([]remote.Entry, error) {
	var entries []remote.Entry
	err := s.src.ListRetry.Do(ctx, func(attempt int) error {
		client, err := s.session(ctx)
		if err != nil {
			return retry.Permanent(err)
		}
		entries, err = client.List(ctx, dir)
		if err == nil {
			return nil
		}
		if errors.Is(err, remote.ErrNotFound) || ctx.Err() != nil {
			return retry.Permanent(err)
		}
		s.log.Warn("Listing failed", map[string]interface{}{
			"dir":     dir,
			"attempt": attempt,
			"error":   err.Error(),
		})
		s.dropSession()
		return err
	})
	return entries, err
}

// fetch downloads, mirrors, processes and records one file. It reports whether
// the file ended up recorded; the error is non-nil only on cancellation.
func (s *Syncer) fetch(ctx context.Context, remoteDir, localDir string, e remote.Entry) (bool, error) {
	localPath := filepath.Join(localDir, e.Name)
	fields := map[string]interface{}{"file": e.Name}

	err := s.src.DownloadRetry.Do(ctx, func(attempt int) error {
		client, err := s.session(ctx)
		if err != nil {
			return retry.Permanent(err)
		}
		err = storage.AtomicWrite(localPath, func(w io.Writer) error {
			return client.Retrieve(ctx, remoteDir, e.Name, w)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, remote.ErrNotFound) || ctx.Err() != nil {
			return retry.Permanent(err)
		}
		s.log.Warn("Download attempt failed", map[string]interface{}{
			"file":    e.Name,
			"attempt": attempt,
			"error":   err.Error(),
		})
		s.dropSession()
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		s.update(func(st *State) {
			st.FilesFailed++
			st.LastError = err.Error()
		})
		s.log.Error("Failed to download file, skipping", err, fields)
		return false, nil
	}
	if s.sess != nil {
		s.sess.files++
	}
	s.update(func(st *State) { st.FilesDownloaded++ })
	s.log.Info("Downloaded file", fields)

	s.mirrorFile(ctx, remoteDir, e.Name, localPath)

	if s.src.Processor != nil {
		err := s.src.Processor.Run(ctx, localPath)
		switch {
		case err == nil:
		case errors.Is(err, processor.ErrTimeout):
			s.update(func(st *State) { st.ProcessorTimeouts++ })
			s.log.Error("Processing timed out, keeping downloaded file", err, fields)
		case ctx.Err() != nil:
			return false, ctx.Err()
		default:
			s.update(func(st *State) {
				st.ProcessorFailures++
				st.LastError = err.Error()
			})
			s.log.Error("Processing failed, removing downloaded file", err, fields)
			if rmErr := os.Remove(localPath); rmErr != nil && !os.IsNotExist(rmErr) {
				s.log.Warn("Could not remove file", map[string]interface{}{"file": localPath, "error": rmErr.Error()})
			}
			return false, nil
		}
	}

	if s.downloads != nil {
		if _, err := s.downloads.Add(s.src.RemoteKey(e.Name)); err != nil {
			s.log.Warn("Could not update download log", map[string]interface{}{"error": err.Error()})
		}
	}
	return true, nil
}

func (s *Syncer) mirrorFile(ctx context.Context, remoteDir, name, localPath string) {
	if s.mirror == nil {
		return
	}
	objectPath := storage.JoinObjectPath(s.src.Name, remoteDir, name)
	fields := map[string]interface{}{"object": objectPath, "mirror": s.mirror.Describe()}

	exists, err := s.mirror.FileExists(ctx, objectPath)
	if err != nil {
		s.log.Warn("Mirror check failed", map[string]interface{}{"object": objectPath, "error": err.Error()})
	}
	if exists {
		s.log.Debug("Already mirrored", fields)
		return
	}
	if err := s.mirror.StoreFile(ctx, objectPath, localPath); err != nil {
		s.log.Error("Failed to mirror file", err, fields)
		return
	}
	s.log.Debug("Mirrored file", fields)
}
