package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"satsync/internal/missinglog"
	"satsync/internal/syncer"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("Failed to encode response", map[string]interface{}{"error": err.Error()})
	}
}

// HandleHealth provides health check endpoint
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.StartedAt).Round(time.Second).String(),
		"version":   s.Version,
		"sources":   len(s.Sources),
	})
}

// HandleStatus returns a snapshot of every loop.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshots := make([]syncer.Snapshot, 0, len(s.Sources))
	for _, src := range s.Sources {
		snapshots = append(snapshots, src.Snapshot())
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"sources":   snapshots,
		"count":     len(snapshots),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleSourceStatus serves /status/{source} and /status/{source}/missing.
func (s *Server) HandleSourceStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/status/"), "/"), "/")
	src, ok := s.source(parts[0])
	if !ok {
		http.Error(w, "Unknown source", http.StatusNotFound)
		return
	}

	switch {
	case len(parts) == 1:
		s.writeJSON(w, http.StatusOK, src.Snapshot())
	case len(parts) == 2 && parts[1] == "missing":
		s.handleMissing(w, r, src.Name())
	default:
		http.NotFound(w, r)
	}
}

// handleMissing returns the most recent missing-data entries, newest first.
func (s *Server) handleMissing(w http.ResponseWriter, r *http.Request, name string) {
	path, ok := s.MissingLogs[name]
	if !ok || path == "" {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"source": name, "entries": []missinglog.Entry{}, "count": 0})
		return
	}

	entries, err := missinglog.ReadEntries(path)
	if err != nil {
		s.log.Error("Failed to read missing-data log", err, map[string]interface{}{"source": name})
		http.Error(w, "Failed to read missing-data log", http.StatusInternalServerError)
		return
	}

	limit := parseLimit(r)
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	newest := make([]missinglog.Entry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		newest = append(newest, entries[i])
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"source":  name,
		"entries": newest,
		"count":   len(newest),
	})
}

// HandleMirrorList lists mirrored objects under ?prefix=.
func (s *Server) HandleMirrorList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.Mirror == nil {
		http.Error(w, "No mirror configured", http.StatusNotFound)
		return
	}

	prefix := r.URL.Query().Get("prefix")
	if strings.Contains(prefix, "..") {
		http.Error(w, "Invalid prefix", http.StatusBadRequest)
		return
	}

	objects, err := s.Mirror.List(r.Context(), prefix)
	if err != nil {
		s.log.Error("Failed to list mirror", err, map[string]interface{}{"prefix": prefix})
		http.Error(w, "Failed to list mirror: "+err.Error(), http.StatusInternalServerError)
		return
	}
	limit := parseLimit(r)
	if len(objects) > limit {
		objects = objects[:limit]
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"mirror":  s.Mirror.Describe(),
		"objects": objects,
		"count":   len(objects),
	})
}

// parseLimit reads ?limit=, capped at maxLimit.
func parseLimit(r *http.Request) int {
	limit := defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit
}
