package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"satsync/internal/missinglog"
	"satsync/internal/storage"
	"satsync/internal/syncer"
)

type stubSource struct {
	snap syncer.Snapshot
}

func (s stubSource) Name() string              { return s.snap.Source }
func (s stubSource) Snapshot() syncer.Snapshot { return s.snap }

func testServer(t *testing.T, mirror storage.StorageClient) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	missingPath := filepath.Join(dir, "missing.log")
	ml := missinglog.New(missingPath)
	for i := 0; i < 3; i++ {
		period := time.Date(2024, 1, 1, i, 0, 0, 0, time.UTC)
		if err := ml.Record(period, period.Format("/pub/himawari/L2/ARP/031/200601/02/15/"), ""); err != nil {
			t.Fatal(err)
		}
	}

	sources := []StatusSource{
		stubSource{syncer.Snapshot{Source: "modis", Mode: syncer.ModeRealtime}},
		stubSource{syncer.Snapshot{Source: "himawari", Mode: syncer.ModeHistorical, ConsecutiveMissing: 3}},
	}
	return NewServer(sources, map[string]string{"himawari": missingPath}, mirror, "test"), dir
}

func get(t *testing.T, srv *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rr := httptest.NewRecorder()
	srv.SetupRoutes().ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := testServer(t, nil)

	rr := get(t, srv, "/health")
	if status := rr.Code; status != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
	}
	if !strings.Contains(rr.Body.String(), `"status":"healthy"`) {
		t.Errorf("handler returned unexpected body: got %v", rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("unexpected content type %q", ct)
	}

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	rr = httptest.NewRecorder()
	srv.HandleHealth(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /health: got %v want %v", rr.Code, http.StatusMethodNotAllowed)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := testServer(t, nil)

	rr := get(t, srv, "/status")
	if rr.Code != http.StatusOK {
		t.Fatalf("got status %v", rr.Code)
	}

	var body struct {
		Sources []syncer.Snapshot `json:"sources"`
		Count   int               `json:"count"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Count != 2 || len(body.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", body.Count)
	}
	if body.Sources[0].Source != "himawari" || body.Sources[1].Source != "modis" {
		t.Errorf("sources not sorted by name: %s, %s", body.Sources[0].Source, body.Sources[1].Source)
	}
	if body.Sources[0].ConsecutiveMissing != 3 {
		t.Errorf("expected 3 consecutive misses, got %d", body.Sources[0].ConsecutiveMissing)
	}
}

func TestSourceStatusEndpoint(t *testing.T) {
	srv, _ := testServer(t, nil)

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantBody   string
	}{
		{"single source", "/status/modis", http.StatusOK, `"mode":"realtime"`},
		{"unknown source", "/status/goes", http.StatusNotFound, "Unknown source"},
		{"unknown subresource", "/status/modis/files", http.StatusNotFound, ""},
		{"missing entries", "/status/himawari/missing", http.StatusOK, `"count":3`},
		{"missing entries limited", "/status/himawari/missing?limit=1", http.StatusOK, `02:00`},
		{"no missing log", "/status/modis/missing", http.StatusOK, `"count":0`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := get(t, srv, tt.target)
			if rr.Code != tt.wantStatus {
				t.Errorf("got status %v want %v", rr.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && !strings.Contains(rr.Body.String(), tt.wantBody) {
				t.Errorf("body %q does not contain %q", rr.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestMissingEntriesNewestFirst(t *testing.T) {
	srv, _ := testServer(t, nil)

	rr := get(t, srv, "/status/himawari/missing?limit=2")
	var body struct {
		Entries []missinglog.Entry `json:"entries"`
		Count   int                `json:"count"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Count != 2 {
		t.Fatalf("expected 2 entries, got %d", body.Count)
	}
	if want := time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC); !body.Entries[0].Period.Equal(want) {
		t.Errorf("first entry %v, want %v", body.Entries[0].Period, want)
	}
}

func TestMirrorListEndpoint(t *testing.T) {
	srv, _ := testServer(t, nil)
	if rr := get(t, srv, "/mirror"); rr.Code != http.StatusNotFound {
		t.Errorf("without mirror: got %v want %v", rr.Code, http.StatusNotFound)
	}

	dir := t.TempDir()
	mirror, err := storage.NewLocalStorageClient(dir)
	if err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(dir, "src.nc")
	if err := os.WriteFile(src, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for _, obj := range []string{"himawari/pub/a.nc", "himawari/pub/b.nc", "imerg/gpmdata/c.zip"} {
		if err := mirror.StoreFile(ctx, obj, src); err != nil {
			t.Fatal(err)
		}
	}

	srv, _ = testServer(t, mirror)
	rr := get(t, srv, "/mirror?prefix=himawari")
	if rr.Code != http.StatusOK {
		t.Fatalf("got status %v: %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Objects []string `json:"objects"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(body.Objects) != 2 {
		t.Errorf("expected 2 himawari objects, got %v", body.Objects)
	}

	if rr := get(t, srv, "/mirror?prefix=../etc"); rr.Code != http.StatusBadRequest {
		t.Errorf("traversal prefix: got %v want %v", rr.Code, http.StatusBadRequest)
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	srv, _ := testServer(t, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("got status %v", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
