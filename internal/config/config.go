package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL     = "https://gwdu.ptit.edu.vn"
	DefaultClientID    = "ptit-connect"
	DefaultRedirectURL = "http://localhost:8765/callback"
	DefaultHTTPTimeout = 30 * time.Second
)

// TransportConfig controls the HTTP client shared by discovery, the session
// and the event sources.
type TransportConfig struct {
	// Timeout bounds each request. Zero means no timeout.
	Timeout time.Duration `yaml:"timeout"`
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// TokenStoreConfig selects where the refresh token is kept.
type TokenStoreConfig struct {
	// Backend is one of "keyring" (default), "file", "redis" or "aws".
	Backend string `yaml:"backend"`
	// File is the token file path for the "file" backend.
	File string `yaml:"file"`
	// Passphrase, when set, encrypts values in the token file.
	Passphrase string `yaml:"passphrase"`
	// RedisURL is a redis:// URL for the "redis" backend.
	RedisURL string `yaml:"redis_url"`
	// AWSRegion and AWSPrefix configure the "aws" Secrets Manager backend.
	AWSRegion string `yaml:"aws_region"`
	AWSPrefix string `yaml:"aws_prefix"`
}

// CalDAVConfig describes the CalDAV publish target.
type CalDAVConfig struct {
	Endpoint string `yaml:"endpoint"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Calendar string `yaml:"calendar"`
}

// Enabled reports whether enough is configured to publish to CalDAV.
func (c CalDAVConfig) Enabled() bool {
	return c.Endpoint != "" && c.Calendar != ""
}

// GoogleConfig describes the Google Calendar publish target.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	TokenFile    string `yaml:"token_file"`
	CalendarID   string `yaml:"calendar_id"`
	RedirectURL  string `yaml:"redirect_url"`
}

// Enabled reports whether a Google calendar is configured.
func (c GoogleConfig) Enabled() bool {
	return c.CalendarID != ""
}

// SyncConfig controls the sync command.
type SyncConfig struct {
	StateFile string `yaml:"state_file"`
	// Schedule is a cron expression used by `sync` when --schedule is not given.
	Schedule string `yaml:"schedule"`
	// Days is the size of the fetch window starting today.
	Days int `yaml:"days"`
	// Timezone is the IANA zone used for dates without an offset.
	Timezone string       `yaml:"timezone"`
	CalDAV   CalDAVConfig `yaml:"caldav"`
	Google   GoogleConfig `yaml:"google"`
}

// Config is the top-level application configuration.
type Config struct {
	BaseURL      string           `yaml:"base_url"`
	DiscoveryURL string           `yaml:"discovery_url"`
	ClientID     string           `yaml:"client_id"`
	RedirectURL  string           `yaml:"redirect_url"`
	PKCE         *bool            `yaml:"pkce"`
	ExpiryMargin time.Duration    `yaml:"expiry_margin"`
	LogLevel     string           `yaml:"log_level"`
	Transport    TransportConfig  `yaml:"transport"`
	TokenStore   TokenStoreConfig `yaml:"token_store"`
	Sync         SyncConfig       `yaml:"sync"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	cfg := &Config{Transport: TransportConfig{Timeout: DefaultHTTPTimeout}}
	cfg.Normalize()
	return cfg
}

// UsePKCE reports whether authorization requests carry a PKCE challenge.
func (c *Config) UsePKCE() bool {
	return c.PKCE == nil || *c.PKCE
}

// Location resolves Sync.Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Sync.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone '%s': %w", c.Sync.Timezone, err)
	}
	return loc, nil
}

// Normalize fills in missing values with defaults.
func (c *Config) Normalize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.DiscoveryURL == "" {
		c.DiscoveryURL = c.BaseURL + "/sso/realms/ptit/.well-known/openid-configuration"
	}
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.RedirectURL == "" {
		c.RedirectURL = DefaultRedirectURL
	}
	if c.ExpiryMargin <= 0 {
		c.ExpiryMargin = 30 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Transport.Timeout < 0 {
		c.Transport.Timeout = 0
	}

	// Unknown backends are left for tokenstore.Open to reject.
	c.TokenStore.Backend = strings.ToLower(strings.TrimSpace(c.TokenStore.Backend))
	if c.TokenStore.Backend == "" {
		c.TokenStore.Backend = "keyring"
	}
	if c.TokenStore.File == "" {
		c.TokenStore.File = filepath.Join(defaultDataDir(), "tokens.json")
	}
	if c.TokenStore.AWSPrefix == "" {
		c.TokenStore.AWSPrefix = "ptitcal/"
	}

	if c.Sync.StateFile == "" {
		c.Sync.StateFile = filepath.Join(defaultDataDir(), "sync-state.json")
	}
	if c.Sync.Schedule == "" {
		c.Sync.Schedule = "*/30 * * * *"
	}
	if c.Sync.Days <= 0 {
		c.Sync.Days = 7
	}
	if c.Sync.Timezone == "" {
		c.Sync.Timezone = "Asia/Ho_Chi_Minh"
	}
	if c.Sync.Google.TokenFile == "" {
		c.Sync.Google.TokenFile = filepath.Join(defaultDataDir(), "google-token.json")
	}
	if c.Sync.Google.RedirectURL == "" {
		c.Sync.Google.RedirectURL = "http://localhost:8766/callback"
	}
}

// DefaultPath returns the config file used when none is given.
func DefaultPath() string {
	if p := os.Getenv("PTITCAL_CONFIG"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "ptitcal.yaml"
	}
	return filepath.Join(dir, "ptitcal", "config.yaml")
}

// Load reads configuration from the given YAML path, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	// Zero is a valid timeout ("none"), so the default is set before decoding.
	cfg := Config{Transport: TransportConfig{Timeout: DefaultHTTPTimeout}}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.Normalize()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.BaseURL, "PTITCAL_BASE_URL")
	setString(&c.DiscoveryURL, "PTITCAL_DISCOVERY_URL")
	setString(&c.ClientID, "PTITCAL_CLIENT_ID")
	setString(&c.RedirectURL, "PTITCAL_REDIRECT_URL")
	setString(&c.LogLevel, "LOG_LEVEL")
	c.ExpiryMargin = parseDurationEnv("PTITCAL_EXPIRY_MARGIN", c.ExpiryMargin)
	if v, ok := parseBoolEnv("PTITCAL_PKCE"); ok {
		c.PKCE = &v
	}

	c.Transport.Timeout = parseDurationEnv("PTITCAL_HTTP_TIMEOUT", c.Transport.Timeout)
	if v, ok := parseBoolEnv("PTITCAL_INSECURE_SKIP_VERIFY"); ok {
		c.Transport.InsecureSkipVerify = v
	}

	setString(&c.TokenStore.Backend, "PTITCAL_TOKEN_STORE")
	setString(&c.TokenStore.File, "PTITCAL_TOKEN_FILE")
	setString(&c.TokenStore.Passphrase, "PTITCAL_TOKEN_PASSPHRASE")
	setString(&c.TokenStore.RedisURL, "REDIS_URL")
	setString(&c.TokenStore.AWSRegion, "PTITCAL_AWS_REGION")
	setString(&c.TokenStore.AWSPrefix, "PTITCAL_AWS_PREFIX")

	setString(&c.Sync.StateFile, "PTITCAL_SYNC_STATE_FILE")
	setString(&c.Sync.Schedule, "PTITCAL_SYNC_SCHEDULE")
	setString(&c.Sync.Timezone, "PRIMARY_TIMEZONE")
	if v := strings.TrimSpace(os.Getenv("PTITCAL_SYNC_DAYS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Sync.Days = n
		}
	}
	setString(&c.Sync.CalDAV.Endpoint, "CALDAV_ENDPOINT")
	setString(&c.Sync.CalDAV.Username, "CALDAV_USERNAME")
	setString(&c.Sync.CalDAV.Password, "CALDAV_PASSWORD")
	setString(&c.Sync.CalDAV.Calendar, "CALDAV_CALENDAR_NAME")
	setString(&c.Sync.Google.ClientID, "GOOGLE_CLIENT_ID")
	setString(&c.Sync.Google.ClientSecret, "GOOGLE_CLIENT_SECRET")
	setString(&c.Sync.Google.TokenFile, "GOOGLE_TOKEN_FILE")
	setString(&c.Sync.Google.CalendarID, "GOOGLE_CALENDAR_ID")
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "ptitcal")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func parseDurationEnv(key string, fallback time.Duration) time.Duration {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if dur, err := time.ParseDuration(val); err == nil {
			return dur
		}
	}
	return fallback
}

func parseBoolEnv(key string) (bool, bool) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return false, false
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, false
	}
	return b, true
}
