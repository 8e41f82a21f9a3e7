package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGetVersion(t *testing.T) {
	tests := []struct {
		name           string
		envVersion     string
		expectContains string
		expectMinLen   int
	}{
		{
			name:           "version from environment variable",
			envVersion:     "1.2.3",
			expectContains: "1.2.3",
			expectMinLen:   5,
		},
		{
			name:           "version from environment with build number",
			envVersion:     "2.0.0-beta.1",
			expectContains: "2.0.0-beta.1",
			expectMinLen:   10,
		},
		{
			name:         "version from git (no env var)",
			envVersion:   "",
			expectMinLen: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("APP_VERSION", tt.envVersion)

			version := GetVersion()

			if len(version) < tt.expectMinLen {
				t.Errorf("Expected version length >= %d, got %d (version: %s)", tt.expectMinLen, len(version), version)
			}
			if tt.expectContains != "" && !strings.Contains(version, tt.expectContains) {
				t.Errorf("Expected version to contain '%s', got '%s'", tt.expectContains, version)
			}
		})
	}
}

func TestGetVersionPrefersBuildVersion(t *testing.T) {
	original := BuildVersion
	defer func() { BuildVersion = original }()

	BuildVersion = "9.9.9"
	t.Setenv("APP_VERSION", "1.0.0")

	if v := GetVersion(); v != "9.9.9" {
		t.Errorf("Expected linked build version, got '%s'", v)
	}
}

func TestGetBaseVersionFromParent(t *testing.T) {
	tempDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tempDir, "VERSION"), []byte("1.5.0\n"), 0644); err != nil {
		t.Fatalf("Failed to create test VERSION file: %v", err)
	}

	originalDir, _ := os.Getwd()
	defer os.Chdir(originalDir)

	subDir := filepath.Join(tempDir, "cmd")
	os.MkdirAll(subDir, 0755)
	os.Chdir(subDir)

	if version := getBaseVersion(); version != "1.5.0" {
		t.Errorf("Expected version '1.5.0' from parent VERSION file, got '%s'", version)
	}
}

func TestGetBaseVersionFallback(t *testing.T) {
	tempDir := t.TempDir()
	originalDir, _ := os.Getwd()
	defer os.Chdir(originalDir)

	os.Chdir(tempDir)

	if version := getBaseVersion(); version != "0.1.0" {
		t.Errorf("Expected fallback version '0.1.0', got '%s'", version)
	}
}
