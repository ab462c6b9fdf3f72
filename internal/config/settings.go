package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	koanfenv "github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/koustreak/sqlgate/internal/errs"
	"github.com/koustreak/sqlgate/internal/filestore"
	"github.com/koustreak/sqlgate/internal/logger"
	"github.com/spf13/pflag"
)

const (
	// EnvPrefix prefixes every environment override: SQLGATE_QUERY_TIMEOUT,
	// SQLGATE_LOG_LEVEL, SQLGATE_OBJECT_STORE_ENDPOINT, ...
	EnvPrefix = "SQLGATE_"

	// DefaultSource is the registry location when none is configured.
	DefaultSource = "sqlgate.yaml"
)

// nestedGroups are the dotted sections whose env and flag spellings use
// '_' or '-' as the separator.
var nestedGroups = []string{"log", "object_store"}

// Settings are the process-level knobs, as opposed to the per-database
// entries in the Registry.
type Settings struct {
	// Config is the registry location: a path or s3://bucket/key.
	Config string `koanf:"config"`

	DefaultLimit   int           `koanf:"default_limit"`
	MaxLimit       int           `koanf:"max_limit"` // 0 = uncapped
	QueryTimeout   time.Duration `koanf:"query_timeout"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`

	// Listen is the HTTP adapter's address for `sqlgate serve`.
	Listen string `koanf:"listen"`

	Log         LogSettings         `koanf:"log"`
	ObjectStore ObjectStoreSettings `koanf:"object_store"`
}

type LogSettings struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type ObjectStoreSettings struct {
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	UseSSL    bool   `koanf:"use_ssl"`
	Region    string `koanf:"region"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"config":                  DefaultSource,
		"default_limit":           1000,
		"max_limit":               0,
		"query_timeout":           "30s",
		"connect_timeout":         "10s",
		"listen":                  "127.0.0.1:8080",
		"log.level":               "info",
		"log.format":              "json",
		"object_store.endpoint":   "",
		"object_store.access_key": "",
		"object_store.secret_key": "",
		"object_store.use_ssl":    true,
		"object_store.region":     "",
	}
}

// LoadSettings builds Settings from, lowest to highest precedence:
// defaults, the settings file, SQLGATE_* environment variables and flags
// that were explicitly set. settingsFile may be empty, in which case
// $SQLGATE_SETTINGS is used if set. flags may be nil.
func LoadSettings(settingsFile string, flags *pflag.FlagSet) (*Settings, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Settings file
	if settingsFile == "" {
		settingsFile = os.Getenv(EnvPrefix + "SETTINGS")
	}
	if settingsFile != "" {
		if err := k.Load(file.Provider(settingsFile), kyaml.Parser()); err != nil {
			return nil, errs.Wrap(errs.ErrKindConfigParse, "cannot read settings file "+settingsFile, err)
		}
	}

	// 3. Environment: SQLGATE_LOG_LEVEL -> log.level
	if err := k.Load(koanfenv.Provider(EnvPrefix, ".", func(s string) string {
		return settingKey(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags, only those explicitly set and only known keys
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := settingKey(f.Name)
			if !k.Exists(key) {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return nil, errs.Wrap(errs.ErrKindConfigParse, "invalid settings", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// settingKey maps an env or flag spelling to a koanf key:
// "LOG_LEVEL" and "log-level" both become "log.level".
func settingKey(s string) string {
	s = strings.ReplaceAll(strings.ToLower(s), "-", "_")
	for _, group := range nestedGroups {
		if strings.HasPrefix(s, group+"_") {
			return group + "." + strings.TrimPrefix(s, group+"_")
		}
	}
	return s
}

func (s *Settings) validate() error {
	switch {
	case s.DefaultLimit <= 0:
		return errs.Newf(errs.ErrKindConfigParse, "default_limit must be positive, got %d", s.DefaultLimit)
	case s.MaxLimit < 0:
		return errs.Newf(errs.ErrKindConfigParse, "max_limit must not be negative, got %d", s.MaxLimit)
	case s.MaxLimit > 0 && s.DefaultLimit > s.MaxLimit:
		return errs.Newf(errs.ErrKindConfigParse, "default_limit %d exceeds max_limit %d", s.DefaultLimit, s.MaxLimit)
	case s.QueryTimeout <= 0:
		return errs.Newf(errs.ErrKindConfigParse, "query_timeout must be positive, got %s", s.QueryTimeout)
	case s.ConnectTimeout <= 0:
		return errs.Newf(errs.ErrKindConfigParse, "connect_timeout must be positive, got %s", s.ConnectTimeout)
	}
	switch s.Log.Format {
	case "json", "console":
	default:
		return errs.Newf(errs.ErrKindConfigParse, "log.format must be json or console, got %q", s.Log.Format)
	}
	return nil
}

// LoggerConfig returns the logger configuration these settings describe.
func (s *Settings) LoggerConfig() *logger.Config {
	cfg := logger.DefaultConfig()
	cfg.Level = s.Log.Level
	cfg.Format = s.Log.Format
	return cfg
}

// ObjectStoreConfig returns the object store to read s3:// sources from.
// The result is not Enabled when no endpoint is set.
func (s *Settings) ObjectStoreConfig() *filestore.Config {
	return &filestore.Config{
		Endpoint:  s.ObjectStore.Endpoint,
		AccessKey: s.ObjectStore.AccessKey,
		SecretKey: s.ObjectStore.SecretKey,
		UseSSL:    s.ObjectStore.UseSSL,
		Region:    s.ObjectStore.Region,
	}
}
