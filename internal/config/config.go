// Package config loads cellbook's runtime configuration from defaults, an
// optional YAML file, a .env file and CELLBOOK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/iksnae/cellbook/internal"
	"github.com/iksnae/cellbook/internal/destination"
)

const envPrefix = "CELLBOOK"

const (
	TransportPipe   = "pipe"
	TransportStream = "stream"
)

// Config is the resolved configuration
type Config struct {
	SettingsPath  string        `mapstructure:"settings_path"`
	OutputDir     string        `mapstructure:"output_dir"`
	ChunkSize     int           `mapstructure:"chunk_size"`
	ChunkInterval time.Duration `mapstructure:"chunk_interval"`
	GraceDelay    time.Duration `mapstructure:"grace_delay"`
	MetricsAddr   string        `mapstructure:"metrics_addr"`
	Verbose       bool          `mapstructure:"verbose"`
	LogLevel      string        `mapstructure:"log_level"`
	// Transport joins host and notebook: "pipe" (in memory) or "stream"
	// (JSON lines over OS-style pipes).
	Transport string      `mapstructure:"transport"`
	Minio     MinioConfig `mapstructure:"minio"`
}

// MinioConfig enables s3:// export destinations when Endpoint is set
type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// Enabled reports whether an object store is configured
func (m MinioConfig) Enabled() bool {
	return m.Endpoint != ""
}

// Store converts the configuration for the destination package
func (m MinioConfig) Store() destination.MinioConfig {
	return destination.MinioConfig{
		Endpoint:        m.Endpoint,
		AccessKeyID:     m.AccessKey,
		SecretAccessKey: m.SecretKey,
		UseSSL:          m.UseSSL,
	}
}

// DefaultSettingsPath returns ~/.cellbook/settings.yaml
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".cellbook", "settings.yaml")
	}
	return filepath.Join(home, ".cellbook", "settings.yaml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("settings_path", DefaultSettingsPath())
	v.SetDefault("output_dir", ".")
	v.SetDefault("chunk_size", 1<<20)
	v.SetDefault("chunk_interval", "5ms")
	v.SetDefault("grace_delay", "500ms")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("verbose", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("transport", TransportPipe)
	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.use_ssl", true)
}

// New returns a viper instance with defaults and environment binding, ready
// for flags to be bound to it.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads .env and the config file into v and decodes the result. An
// empty cfgFile looks for cellbook.yaml in the working directory and in
// ~/.cellbook; a missing file there is not an error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	// a missing .env is normal
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		internal.LogWarn("config: .env: %v", err)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("cellbook")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".cellbook"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		internal.LogDebug("config: using %s", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkInterval < 0 {
		return fmt.Errorf("chunk_interval must not be negative")
	}
	if c.GraceDelay < 0 {
		return fmt.Errorf("grace_delay must not be negative")
	}
	if c.Transport != TransportPipe && c.Transport != TransportStream {
		return fmt.Errorf("transport must be %q or %q, got %q", TransportPipe, TransportStream, c.Transport)
	}
	if c.SettingsPath == "" {
		return fmt.Errorf("settings_path must not be empty")
	}
	if c.Minio.Enabled() && (c.Minio.AccessKey == "" || c.Minio.SecretKey == "") {
		return fmt.Errorf("minio.endpoint is set but credentials are missing")
	}
	return nil
}
