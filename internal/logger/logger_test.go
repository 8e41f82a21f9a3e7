package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for i, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("Line %d is not valid JSON: %v", i+1, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer

	logger := New(Config{
		Level:     DEBUG,
		Format:    JSONFormat,
		Output:    &buf,
		Component: "test",
	})

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message", nil)

	entries := decodeLines(t, &buf)
	if len(entries) != 4 {
		t.Fatalf("Expected 4 log lines, got %d", len(entries))
	}

	wantLevels := []string{"debug", "info", "warn", "error"}
	for i, want := range wantLevels {
		if entries[i]["level"] != want {
			t.Errorf("Line %d: expected level %s, got %v", i+1, want, entries[i]["level"])
		}
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	logger := New(Config{
		Level:     WARN,
		Format:    JSONFormat,
		Output:    &buf,
		Component: "test",
	})

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message", nil)

	if entries := decodeLines(t, &buf); len(entries) != 2 {
		t.Errorf("Expected 2 log lines with WARN level, got %d", len(entries))
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer

	logger := New(Config{
		Level:     INFO,
		Format:    JSONFormat,
		Output:    &buf,
		Component: "test-component",
	})

	logger.Info("test message", map[string]interface{}{
		"key1": "value1",
		"key2": 42,
	})

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 log line, got %d", len(entries))
	}
	entry := entries[0]

	if entry["message"] != "test message" {
		t.Errorf("Expected message 'test message', got %v", entry["message"])
	}
	if entry["component"] != "test-component" {
		t.Errorf("Expected component 'test-component', got %v", entry["component"])
	}
	if entry["key1"] != "value1" {
		t.Errorf("Expected field key1='value1', got %v", entry["key1"])
	}
	if entry["key2"] != float64(42) {
		t.Errorf("Expected field key2=42, got %v", entry["key2"])
	}
	if _, ok := entry["time"]; !ok {
		t.Error("Expected a timestamp field")
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer

	logger := New(Config{
		Level:     INFO,
		Format:    TextFormat,
		Output:    &buf,
		Component: "test-component",
	})

	logger.Info("test message", map[string]interface{}{
		"key1": "value1",
	})

	output := buf.String()
	for _, want := range []string{"INF", "test message", "component=test-component", "key1=value1"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %q, got %q", want, output)
		}
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer

	baseLogger := New(Config{
		Level:     INFO,
		Format:    JSONFormat,
		Output:    &buf,
		Component: "base",
	})

	componentLogger := baseLogger.WithComponent("himawari")
	componentLogger.Info("test message")

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 log line, got %d", len(entries))
	}
	if entries[0]["component"] != "himawari" {
		t.Errorf("Expected component 'himawari', got %v", entries[0]["component"])
	}
	if componentLogger.Component() != "himawari" {
		t.Errorf("Expected Component() to return 'himawari', got %s", componentLogger.Component())
	}
}

func TestErrorLogging(t *testing.T) {
	var buf bytes.Buffer

	logger := New(Config{
		Level:  ERROR,
		Format: JSONFormat,
		Output: &buf,
	})

	testErr := &testError{msg: "test error"}
	logger.Error("download failed", testErr, map[string]interface{}{
		"file": "NC_H09_20231204_0000.nc",
	})

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 log line, got %d", len(entries))
	}
	if entries[0]["error"] != "test error" {
		t.Errorf("Expected error 'test error', got %v", entries[0]["error"])
	}
	if entries[0]["file"] != "NC_H09_20231204_0000.nc" {
		t.Errorf("Expected file field, got %v", entries[0]["file"])
	}
}

func TestSetLevelAfterCreation(t *testing.T) {
	var buf bytes.Buffer

	logger := New(Config{Level: INFO, Format: JSONFormat, Output: &buf})
	logger.Debug("hidden")
	logger.SetLevel(DEBUG)
	logger.Debug("visible")

	entries := decodeLines(t, &buf)
	if len(entries) != 1 || entries[0]["message"] != "visible" {
		t.Errorf("Expected only the debug message logged after SetLevel, got %v", entries)
	}
}

func TestGlobalLogger(t *testing.T) {
	var buf bytes.Buffer

	originalLogger := Default()
	defer SetDefault(originalLogger)

	SetDefault(New(Config{
		Level:     INFO,
		Format:    JSONFormat,
		Output:    &buf,
		Component: "global-test",
	}))

	Info("global info message")
	Warn("global warn message")

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 log lines, got %d", len(entries))
	}
	if entries[0]["level"] != "info" || entries[0]["message"] != "global info message" {
		t.Errorf("First line incorrect: %v", entries[0])
	}
	if entries[1]["level"] != "warn" || entries[1]["message"] != "global warn message" {
		t.Errorf("Second line incorrect: %v", entries[1])
	}
}

func TestFormattedLogging(t *testing.T) {
	var buf bytes.Buffer

	logger := New(Config{
		Level:  INFO,
		Format: JSONFormat,
		Output: &buf,
	})

	logger.Infof("Downloaded %d files for %s", 12, "2023-12-04 00:00")

	entries := decodeLines(t, &buf)
	expected := "Downloaded 12 files for 2023-12-04 00:00"
	if len(entries) != 1 || entries[0]["message"] != expected {
		t.Errorf("Expected message '%s', got %v", expected, entries)
	}
}

func TestParseSettings(t *testing.T) {
	levels := []struct {
		in   string
		want LogLevel
		ok   bool
	}{
		{"debug", DEBUG, true},
		{"INFO", INFO, true},
		{"warning", WARN, true},
		{"warn", WARN, true},
		{"error", ERROR, true},
		{"verbose", 0, false},
		{"", 0, false},
		{"trace", 0, false},
	}
	for _, tt := range levels {
		got, ok := ParseLevel(tt.in)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
	if format, ok := ParseFormat("JSON"); !ok || format != JSONFormat {
		t.Errorf("Expected JSONFormat for uppercase 'JSON', got %v", format)
	}
	if format, ok := ParseFormat("console"); !ok || format != TextFormat {
		t.Errorf("Expected TextFormat, got %v", format)
	}
	if _, ok := ParseFormat("xml"); ok {
		t.Error("Expected xml to be rejected")
	}
}

func TestConfigureDefault(t *testing.T) {
	var buf bytes.Buffer

	originalLogger := Default()
	defer SetDefault(originalLogger)
	SetDefault(New(Config{Level: INFO, Format: JSONFormat, Output: &buf}))

	Configure("debug", "")
	Debug("now visible")
	Configure("verbose", "yaml")
	Debug("still visible")

	if entries := decodeLines(t, &buf); len(entries) != 2 {
		t.Errorf("Expected 2 debug lines, got %d", len(entries))
	}
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{DEBUG, "DEBUG"},
		{INFO, "INFO"},
		{WARN, "WARN"},
		{ERROR, "ERROR"},
		{FATAL, "FATAL"},
		{LogLevel(42), "UNKNOWN"},
	}

	for _, test := range tests {
		if test.level.String() != test.expected {
			t.Errorf("Expected %s, got %s", test.expected, test.level.String())
		}
	}
}

type testError struct {
	msg string
}

func (e *testError) Error() string {
	return e.msg
}

func BenchmarkJSONLogging(b *testing.B) {
	var buf bytes.Buffer
	logger := New(Config{
		Level:  INFO,
		Format: JSONFormat,
		Output: &buf,
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("benchmark message", map[string]interface{}{
			"iteration": i,
		})
	}
}

func BenchmarkLevelFiltering(b *testing.B) {
	var buf bytes.Buffer
	logger := New(Config{
		Level:  WARN,
		Format: JSONFormat,
		Output: &buf,
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Debug("debug message that should be filtered")
	}
}
