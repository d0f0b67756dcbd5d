package config

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Defaults applied by Normalize and the loader.
const (
	DefaultHost         = "0.0.0.0"
	DefaultPort         = 3000
	DefaultCacheTTL     = 15 * time.Minute
	DefaultFetchTimeout = 15 * time.Second
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "json"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the calendar endpoint.
type BasicAuthConfig struct {
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
}

// LogConfig selects the log level and encoder.
type LogConfig struct {
	// Level is one of "debug", "info", "error".
	Level string `mapstructure:"level" yaml:"level"`
	// Format is "json" or "console".
	Format string `mapstructure:"format" yaml:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	// URLs are the subscribed ICS feeds, merged in this order.
	URLs []string `mapstructure:"urls" yaml:"urls"`

	// TZOffsets are per-feed hour shifts. A feed without its own entry uses
	// the last one.
	TZOffsets []int64 `mapstructure:"tz_offsets" yaml:"tz_offsets"`

	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`

	// HideDetails replaces every event by a Blocked/Tentative/Cancelled placeholder.
	HideDetails bool `mapstructure:"hide_details" yaml:"hide_details"`

	// MergeOverlapping folds overlapping events into single blocks. It
	// requires HideDetails.
	MergeOverlapping bool `mapstructure:"merge_overlapping_events" yaml:"merge_overlapping_events"`

	// FutureDaysLimit drops events starting more than N days from today.
	// Nil disables the filter.
	FutureDaysLimit *int `mapstructure:"future_days_limit" yaml:"future_days_limit,omitempty"`

	// StrictPrivacy shrinks the recurring-event lookback to one day.
	StrictPrivacy bool `mapstructure:"strict_privacy" yaml:"strict_privacy"`

	// Timezone is the IANA zone floating and zoned times are read in.
	// Empty means the process local zone.
	Timezone string `mapstructure:"timezone" yaml:"timezone"`

	CacheTTL     time.Duration `mapstructure:"cache_ttl" yaml:"-"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" yaml:"-"`

	// RefreshCron is an optional cron schedule (e.g. "*/10 * * * *") that
	// rebuilds the calendar in the background so requests hit a warm cache.
	RefreshCron string `mapstructure:"refresh" yaml:"refresh"`

	Log LogConfig `mapstructure:"log" yaml:"log"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `mapstructure:"basic_auth" yaml:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		URLs:         []string{},
		TZOffsets:    []int64{},
		Host:         DefaultHost,
		Port:         DefaultPort,
		HideDetails:  true,
		CacheTTL:     DefaultCacheTTL,
		FetchTimeout: DefaultFetchTimeout,
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults and trims
// the URL list.
func (c *Config) Normalize() {
	urls := make([]string, 0, len(c.URLs))
	for _, u := range c.URLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	c.URLs = urls

	if c.TZOffsets == nil {
		c.TZOffsets = []int64{}
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	c.RefreshCron = strings.TrimSpace(c.RefreshCron)
	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
}

// ValidationError reports an inconsistent or unusable setting.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Validate checks c before any build is attempted.
func (c *Config) Validate() error {
	if len(c.URLs) == 0 {
		return &ValidationError{Field: "urls", Reason: "at least one calendar URL is required"}
	}
	if c.MergeOverlapping && !c.HideDetails {
		return &ValidationError{Field: "merge_overlapping_events", Reason: "requires hide_details"}
	}
	if c.FutureDaysLimit != nil && *c.FutureDaysLimit < 0 {
		return &ValidationError{Field: "future_days_limit", Reason: "must not be negative"}
	}
	if c.Port < 1 || c.Port > 65535 {
		return &ValidationError{Field: "port", Reason: fmt.Sprintf("invalid port %d", c.Port)}
	}
	if _, err := c.Location(); err != nil {
		return &ValidationError{Field: "timezone", Reason: err.Error()}
	}
	if c.RefreshCron != "" {
		if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
			return &ValidationError{Field: "refresh", Reason: err.Error()}
		}
	}
	if c.BasicAuth != nil && (c.BasicAuth.Username == "" || c.BasicAuth.Password == "") {
		return &ValidationError{Field: "basic_auth", Reason: "username and password are both required"}
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, errors.New("unknown timezone " + strconv.Quote(c.Timezone))
	}
	return loc, nil
}

// Listen returns the host:port the HTTP server binds to.
func (c *Config) Listen() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Fingerprint is a stable digest of every setting that changes the merged
// output. It keys the cache gate.
func (c *Config) Fingerprint() string {
	h := sha256.New()
	for _, u := range c.URLs {
		fmt.Fprintf(h, "url=%s\n", u)
	}
	for _, o := range c.TZOffsets {
		fmt.Fprintf(h, "offset=%d\n", o)
	}
	fmt.Fprintf(h, "hide=%t\nmerge=%t\nstrict=%t\ntz=%s\n",
		c.HideDetails, c.MergeOverlapping, c.StrictPrivacy, c.Timezone)
	if c.FutureDaysLimit != nil {
		fmt.Fprintf(h, "days=%d\n", *c.FutureDaysLimit)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
