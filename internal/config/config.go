package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// DefaultIMERGPattern selects the half-hourly GIS archives.
const DefaultIMERGPattern = `(?i)HHR.*[.]zip`

// DefaultMODISTiles are the MOD11A1 tiles covering Vietnam.
var DefaultMODISTiles = []string{"h27v06", "h28v06", "h27v07", "h28v07", "h28v08"}

// Config holds all configuration for the satellite sync service
type Config struct {
	// Service configuration
	Environment string `env:"ENVIRONMENT, default=development"`
	LogLevel    string `env:"LOG_LEVEL, default=info"`
	LogFormat   string `env:"LOG_FORMAT, default=json"`

	// Status endpoint; empty disables it
	StatusPort string `env:"STATUS_PORT"`

	// SQLite file holding sync cursors; empty disables checkpoints
	CheckpointDB string `env:"CHECKPOINT_DB, default=./data/satsync.db"`

	Himawari HimawariConfig `env:", prefix=HIMAWARI_"`
	IMERG    IMERGConfig    `env:", prefix=IMERG_"`
	MODIS    MODISConfig    `env:", prefix=MODIS_"`
	GESDISC  GESDISCConfig  `env:", prefix=GESDISC_"`
	Mirror   MirrorConfig   `env:", prefix=MIRROR_"`
}

// ProcessorConfig describes the external post-processing command for a source.
type ProcessorConfig struct {
	Program string        `env:"PROGRAM"`
	Args    []string      `env:"ARGS"`
	Timeout time.Duration `env:"TIMEOUT, default=5m"`
}

// HimawariConfig configures the hourly Himawari AOD sync over plain FTP.
type HimawariConfig struct {
	Host     string `env:"HOST, default=ftp.ptree.jaxa.jp:21"`
	User     string `env:"FTP_USER"`
	Password string `env:"FTP_PASS"`

	RemoteTemplate string `env:"REMOTE_TEMPLATE, default=/pub/himawari/L2/ARP/031/%Y%m/%d/%H/"`
	LocalTemplate  string `env:"LOCAL_TEMPLATE, default=./data/himawari/%Y%m/%d/%H"`
	Start          string `env:"START, default=2023-12-04T00"`
	DownloadLog    string `env:"DOWNLOAD_LOG, default=./data/himawari/downloaded.log"`
	MissingLog     string `env:"MISSING_LOG, default=./data/himawari/missing_data.log"`

	MaxMissing       int           `env:"MAX_CONSECUTIVE_MISSING, default=24"`
	Lag              time.Duration `env:"LAG, default=2h"`
	RealtimeWindow   int           `env:"REALTIME_WINDOW, default=2"`
	PollInterval     time.Duration `env:"POLL_INTERVAL, default=10m"`
	DownloadAttempts int           `env:"DOWNLOAD_ATTEMPTS, default=3"`
	RetryDelay       time.Duration `env:"RETRY_DELAY, default=5s"`
	Timeout          time.Duration `env:"TIMEOUT, default=30s"`

	Processor ProcessorConfig `env:", prefix=PROCESSOR_"`
}

// IMERGConfig configures the daily GPM IMERG GIS sync over explicit FTPS.
type IMERGConfig struct {
	Host     string `env:"HOST, default=arthurhouftps.pps.eosdis.nasa.gov:21"`
	User     string `env:"USERNAME"`
	Password string `env:"PASSWORD"`

	RemoteTemplate string `env:"REMOTE_TEMPLATE, default=/gpmdata/%Y/%m/%d/gis/"`
	LocalTemplate  string `env:"LOCAL_TEMPLATE, default=./data/imerg/%Y/%m/%d"`
	Pattern        string `env:"PATTERN, default=(?i)HHR.*[.]zip"`
	Start          string `env:"START, default=2023-03-16"`
	DownloadLog    string `env:"DOWNLOAD_LOG"`

	PollInterval     time.Duration `env:"POLL_INTERVAL, default=6h"`
	Rescan           int           `env:"RESCAN_DAYS, default=1"`
	SessionPeriods   int           `env:"RECONNECT_DAYS, default=30"`
	DownloadAttempts int           `env:"DOWNLOAD_ATTEMPTS, default=3"`
	RetryDelay       time.Duration `env:"RETRY_DELAY, default=5s"`
	Timeout          time.Duration `env:"TIMEOUT, default=60s"`

	Processor ProcessorConfig `env:", prefix=PROCESSOR_"`
}

// MODISConfig configures the daily MOD11A1 sync from the LAADS archive.
type MODISConfig struct {
	BaseURL       string   `env:"BASE_URL, default=https://ladsweb.modaps.eosdis.nasa.gov"`
	Token         string   `env:"TOKEN"`
	ListingFormat string   `env:"LISTING_FORMAT, default=csv"`
	Tiles         []string `env:"TILES"`

	RemoteTemplate string `env:"REMOTE_TEMPLATE, default=/archive/allData/61/MOD11A1/%Y/%j"`
	LocalTemplate  string `env:"LOCAL_TEMPLATE, default=./data/modis/%Y/%j"`
	Start          string `env:"START, default=2025-11-07"`
	DownloadLog    string `env:"DOWNLOAD_LOG"`

	PollInterval     time.Duration `env:"POLL_INTERVAL, default=24h"`
	FileDelay        time.Duration `env:"FILE_DELAY, default=500ms"`
	Rescan           int           `env:"RESCAN_DAYS, default=0"`
	DownloadAttempts int           `env:"DOWNLOAD_ATTEMPTS, default=3"`
	RetryDelay       time.Duration `env:"RETRY_DELAY, default=5s"`
	Timeout          time.Duration `env:"TIMEOUT, default=5m"`

	Processor ProcessorConfig `env:", prefix=PROCESSOR_"`
}

// GESDISCConfig configures the Earthdata URL-list downloader.
type GESDISCConfig struct {
	User       string        `env:"USERNAME"`
	Password   string        `env:"PASSWORD"`
	URSHost    string        `env:"URS_HOST, default=urs.earthdata.nasa.gov"`
	CookieFile string        `env:"COOKIE_FILE, default=./.urs_cookies"`
	Attempts   int           `env:"ATTEMPTS, default=3"`
	RetryDelay time.Duration `env:"RETRY_DELAY, default=5s"`
	Timeout    time.Duration `env:"TIMEOUT, default=10m"`
}

// MirrorConfig configures the optional copy of downloaded files to object storage.
type MirrorConfig struct {
	Mode      string `env:"MODE, default=none"`
	LocalDir  string `env:"LOCAL_DIR, default=./mirror"`
	Bucket    string `env:"BUCKET"`
	Prefix    string `env:"PREFIX"`
	Region    string `env:"REGION"`
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	UseSSL    bool   `env:"USE_SSL, default=true"`
	PathStyle bool   `env:"PATH_STYLE, default=false"`
}

// Load loads configuration from a .env file (when present) and environment variables
func Load(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom loads configuration using the given lookuper
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if len(cfg.MODIS.Tiles) == 0 {
		cfg.MODIS.Tiles = append([]string(nil), DefaultMODISTiles...)
	}
	if cfg.IMERG.Password == "" {
		// PPS accounts use the registered email as both user and password.
		cfg.IMERG.Password = cfg.IMERG.User
	}
	return &cfg, nil
}

// Validate checks the Himawari credentials
func (c HimawariConfig) Validate() error {
	if c.User == "" || c.Password == "" {
		return errors.New("HIMAWARI_FTP_USER and HIMAWARI_FTP_PASS are required")
	}
	if c.MaxMissing <= 0 {
		return errors.New("HIMAWARI_MAX_CONSECUTIVE_MISSING must be positive")
	}
	return nil
}

// Validate checks the IMERG credentials
func (c IMERGConfig) Validate() error {
	if c.User == "" {
		return errors.New("IMERG_USERNAME is required")
	}
	return nil
}

// Validate checks the MODIS token and listing format
func (c MODISConfig) Validate() error {
	if c.Token == "" {
		return errors.New("MODIS_TOKEN is required")
	}
	switch strings.ToLower(c.ListingFormat) {
	case "csv", "json":
	default:
		return fmt.Errorf("unsupported MODIS_LISTING_FORMAT %q", c.ListingFormat)
	}
	return nil
}

// Validate checks the Earthdata credentials
func (c GESDISCConfig) Validate() error {
	if c.User == "" || c.Password == "" {
		return errors.New("GESDISC_USERNAME and GESDISC_PASSWORD are required")
	}
	return nil
}

// Validate checks that the selected mirror backend has what it needs
func (c MirrorConfig) Validate() error {
	switch c.Mode {
	case "", "none", "local":
		return nil
	case "gcs", "s3":
		if c.Bucket == "" {
			return fmt.Errorf("MIRROR_BUCKET is required for mirror mode %s", c.Mode)
		}
	case "minio":
		if c.Bucket == "" || c.Endpoint == "" {
			return errors.New("MIRROR_BUCKET and MIRROR_ENDPOINT are required for mirror mode minio")
		}
	default:
		return fmt.Errorf("unsupported mirror mode: %s", c.Mode)
	}
	return nil
}

// ValidateSources validates the configuration of every named source
func (c *Config) ValidateSources(names []string) error {
	var errs []error
	for _, name := range names {
		if err := c.ValidateSource(name); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if err := c.Mirror.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("mirror: %w", err))
	}
	return errors.Join(errs...)
}

// ValidateSource checks the settings of a single source.
func (c *Config) ValidateSource(name string) error {
	switch name {
	case "himawari":
		return c.Himawari.Validate()
	case "imerg":
		return c.IMERG.Validate()
	case "modis":
		return c.MODIS.Validate()
	default:
		return fmt.Errorf("unknown source %q", name)
	}
}

