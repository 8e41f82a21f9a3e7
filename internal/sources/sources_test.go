package sources

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satsync/internal/config"
	"satsync/internal/layout"
	"satsync/internal/processor"
	"satsync/internal/remote"
	"satsync/internal/syncer"
)

func loadConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFrom(context.Background(), envconfig.MapLookuper(env))
	require.NoError(t, err)
	return cfg
}

func TestHimawariKeys(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		local  string
	}{
		{"raw netcdf", "H09_20231204_0000_1HARP031_FLDK.02401_02401.nc", "H09_20231204_0000_1HARP031_FLDK.02401_02401.nc"},
		{"processed tif", "H09_20231204_0000_1HARP031_FLDK.02401_02401.nc", "aod_vietnam_H09_20231204_0000_1HARP031_FLDK.02401_02401.tif"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, HimawariRemoteKey(tt.remote), HimawariLocalKey(tt.local))
		})
	}
	assert.NotEqual(t, HimawariRemoteKey("a.nc"), HimawariLocalKey("b.tif"))
}

func TestBuildHimawari(t *testing.T) {
	cfg := loadConfig(t, map[string]string{
		"HIMAWARI_FTP_USER":          "user",
		"HIMAWARI_FTP_PASS":          "secret",
		"HIMAWARI_PROCESSOR_PROGRAM": "python3",
		"HIMAWARI_PROCESSOR_ARGS":    "process.py,{file}",
	})

	def, err := Build("himawari", cfg)
	require.NoError(t, err)

	src := def.Source
	assert.Equal(t, HimawariName, src.Name)
	assert.Equal(t, layout.Hourly, src.Step)
	assert.Equal(t, time.Date(2023, 12, 4, 0, 0, 0, 0, time.UTC), src.Start)
	assert.Equal(t, syncer.GapTrack, src.Gap)
	assert.Equal(t, 24, src.MaxMissing)
	assert.Equal(t, 2*time.Hour, src.Lag)
	assert.Equal(t, 2, src.RealtimeWindow)
	assert.Equal(t, 1, src.Session.MaxPeriods)
	assert.Equal(t, 3, src.DownloadRetry.MaxAttempts)
	assert.Equal(t, "./data/himawari/missing_data.log", def.MissingLog)

	dialer, ok := src.Dialer.(*remote.FTPDialer)
	require.True(t, ok)
	assert.False(t, dialer.ExplicitTLS)
	assert.Equal(t, "ftp.ptree.jaxa.jp:21", dialer.Addr)

	cmd, ok := src.Processor.(processor.Command)
	require.True(t, ok)
	assert.Equal(t, "python3", cmd.Program)
	assert.Equal(t, []string{"process.py", "/tmp/x.nc"}, cmd.Argv("/tmp/x.nc"))
	assert.Equal(t, 5*time.Minute, cmd.Timeout)

	assert.True(t, src.Filter.Match("H09_20231204_0000.nc"))
	assert.False(t, src.Filter.Match("H09_20231204_0000.nc.md5"))
}

func TestBuildIMERG(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"IMERG_USERNAME": "someone@example.com"})

	def, err := Build("IMERG", cfg)
	require.NoError(t, err)

	src := def.Source
	assert.Equal(t, layout.Daily, src.Step)
	assert.Equal(t, syncer.EndOfData, src.Gap)
	assert.True(t, src.EmptyIsMissing)
	assert.Equal(t, 1, src.Rescan)
	assert.Equal(t, syncer.SessionPolicy{MaxPeriods: 30, Probe: true}, src.Session)
	assert.Nil(t, src.Processor)
	assert.Empty(t, def.MissingLog)

	dialer := src.Dialer.(*remote.FTPDialer)
	assert.True(t, dialer.ExplicitTLS)
	assert.Equal(t, "someone@example.com", dialer.Password)

	entries := []remote.Entry{
		{Name: "3B-HHR-GIS.MS.MRG.3IMERG.20230316-S233000-E235959.1410.V07B.zip"},
		{Name: "3B-DAY-GIS.MS.MRG.3IMERG.20230316.V07B.tif"},
		{Name: "3b-hhr-gis.20230316-S000000.ZIP"},
		{Name: "3B-HHR-GIS.20230316-S000000.tif"},
		{Name: "README.txt"},
	}
	got := src.Filter.Apply(entries)
	require.Len(t, got, 2)
	assert.Equal(t, "3B-HHR-GIS.MS.MRG.3IMERG.20230316-S233000-E235959.1410.V07B.zip", got[0].Name)
	assert.Equal(t, "3b-hhr-gis.20230316-S000000.ZIP", got[1].Name)
}

func TestBuildMODIS(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"MODIS_TOKEN": "token"})

	def, err := Build("modis", cfg)
	require.NoError(t, err)

	src := def.Source
	assert.True(t, src.RequireNonEmpty)
	assert.Equal(t, 500*time.Millisecond, src.FileDelay)
	assert.Equal(t, 0, src.Rescan)
	assert.Equal(t, time.Date(2025, 11, 7, 0, 0, 0, 0, time.UTC), src.Start)
	assert.Equal(t, "/archive/allData/61/MOD11A1/2025/311", src.RemoteDir.Format(src.Start))

	dialer := src.Dialer.(*remote.ArchiveDialer)
	assert.Equal(t, "token", dialer.Token)
	assert.Equal(t, remote.ListingCSV, dialer.Format)

	assert.True(t, src.Filter.Match("MOD11A1.A2025311.h28v07.061.2025313043125.hdf"))
	assert.False(t, src.Filter.Match("MOD11A1.A2025311.h10v05.061.2025313043125.hdf"))
	assert.False(t, src.Filter.Match("MOD11A1.A2025311.h28v07.061.2025313043125.hdf.xml"))
}

func TestBuildErrors(t *testing.T) {
	cfg := loadConfig(t, map[string]string{})

	tests := []struct {
		name   string
		source string
		env    map[string]string
	}{
		{"unknown source", "goes", nil},
		{"himawari without credentials", "himawari", nil},
		{"imerg without user", "imerg", nil},
		{"modis without token", "modis", nil},
		{"bad start", "himawari", map[string]string{"HIMAWARI_FTP_USER": "u", "HIMAWARI_FTP_PASS": "p", "HIMAWARI_START": "yesterday"}},
		{"bad pattern", "imerg", map[string]string{"IMERG_USERNAME": "u", "IMERG_PATTERN": "HHR(["}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := cfg
			if tt.env != nil {
				c = loadConfig(t, tt.env)
			}
			_, err := Build(tt.source, c)
			assert.Error(t, err)
		})
	}
}

func TestDefinitionOptions(t *testing.T) {
	dir := t.TempDir()
	def := Definition{
		Source:      syncer.Source{Name: "test"},
		DownloadLog: filepath.Join(dir, "downloaded.log"),
		MissingLog:  filepath.Join(dir, "missing.log"),
	}
	opts, err := def.Options()
	require.NoError(t, err)
	assert.Len(t, opts, 2)

	opts, err = Definition{Source: syncer.Source{Name: "test"}}.Options()
	require.NoError(t, err)
	assert.Empty(t, opts)
}
