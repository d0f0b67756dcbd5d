package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	appLog "icalmerge/internal/log"
)

// envBindings maps config keys to their environment variables.
var envBindings = map[string]string{
	"urls":                     "URLS",
	"tz_offsets":               "TZ_OFFSETS",
	"host":                     "HOST",
	"port":                     "PORT",
	"hide_details":             "HIDE_DETAILS",
	"merge_overlapping_events": "MERGE_OVERLAPPING_EVENTS",
	"future_days_limit":        "FUTURE_DAYS_LIMIT",
	"strict_privacy":           "STRICT_PRIVACY",
	"timezone":                 "TIMEZONE",
	"cache_ttl":                "CACHE_TTL",
	"fetch_timeout":            "FETCH_TIMEOUT",
	"refresh":                  "REFRESH",
	"log.level":                "LOG_LEVEL",
	"log.format":               "LOG_FORMAT",
	"basic_auth.username":      "BASIC_AUTH_USERNAME",
	"basic_auth.password":      "BASIC_AUTH_PASSWORD",
}

// Loader reads configuration from defaults, an optional YAML file and the
// environment, in increasing precedence.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
	return &Loader{v: v}
}

// Load loads configuration from path and the environment.
//
// Behavior:
//   - If path is empty, only defaults and environment are used.
//   - If the file does not exist, a default config is written there with
//     0600 perms and then read back.
//   - The result is normalized and validated.
func (l *Loader) Load(path string) (*Config, error) {
	l.setDefaults()

	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			appLog.Info("config file not found, writing defaults", "path", path)
			if err := Save(path, DefaultConfig()); err != nil {
				return nil, fmt.Errorf("write default config: %w", err)
			}
		}
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		commaListHook,
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := l.v.Unmarshal(&cfg, hooks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *Loader) setDefaults() {
	d := DefaultConfig()
	l.v.SetDefault("host", d.Host)
	l.v.SetDefault("port", d.Port)
	l.v.SetDefault("hide_details", d.HideDetails)
	l.v.SetDefault("merge_overlapping_events", false)
	l.v.SetDefault("strict_privacy", false)
	l.v.SetDefault("cache_ttl", d.CacheTTL)
	l.v.SetDefault("fetch_timeout", d.FetchTimeout)
	l.v.SetDefault("log.level", d.Log.Level)
	l.v.SetDefault("log.format", d.Log.Format)
}

// commaListHook splits "a, b" environment values into slices.
func commaListHook(f reflect.Type, t reflect.Type, data any) (any, error) {
	if f.Kind() != reflect.String || t.Kind() != reflect.Slice {
		return data, nil
	}
	s := strings.TrimSpace(data.(string))
	if s == "" {
		return []string{}, nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, nil
}

// MarshalYAML writes durations in their string form ("15m").
func (c Config) MarshalYAML() (any, error) {
	type plain Config
	return struct {
		plain        `yaml:",inline"`
		CacheTTL     string `yaml:"cache_ttl"`
		FetchTimeout string `yaml:"fetch_timeout"`
	}{
		plain:        plain(c),
		CacheTTL:     c.CacheTTL.String(),
		FetchTimeout: c.FetchTimeout.String(),
	}, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".icalmerge-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
