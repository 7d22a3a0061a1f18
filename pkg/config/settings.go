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

	"github.com/censor-ci/censor/pkg/types"
)

// EnvPrefix prefixes every environment override, e.g. CENSOR_STORE_DSN
const EnvPrefix = "CENSOR"

// Settings is the application configuration of censor itself
type Settings struct {
	Log           LogSettings          `mapstructure:"log"`
	Workspace     WorkspaceSettings    `mapstructure:"workspace"`
	Store         StoreSettings        `mapstructure:"store"`
	Worker        WorkerSettings       `mapstructure:"worker"`
	Metrics       MetricsSettings      `mapstructure:"metrics"`
	Command       CommandSettings      `mapstructure:"command"`
	Notifications NotificationSettings `mapstructure:"notifications"`
	Projects      []types.Project      `mapstructure:"projects"`
}

// LogSettings configures the process logger
type LogSettings struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// WorkspaceSettings configures where checkouts live
type WorkspaceSettings struct {
	Dir   string `mapstructure:"dir"`
	Keep  bool   `mapstructure:"keep"`
	Depth int    `mapstructure:"depth"`
}

// StoreSettings selects the build store
type StoreSettings struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// WorkerSettings configures the spool worker
type WorkerSettings struct {
	Concurrency int    `mapstructure:"concurrency"`
	Spool       string `mapstructure:"spool"`
}

// MetricsSettings configures the Prometheus endpoint
type MetricsSettings struct {
	Addr string `mapstructure:"addr"`
}

// CommandSettings bounds external commands
type CommandSettings struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// NotificationSettings toggles desktop notifications
type NotificationSettings struct {
	Enabled bool `mapstructure:"enabled"`
	Sound   bool `mapstructure:"sound"`
}

// Project returns the configured project with id
func (s *Settings) Project(id int64) (types.Project, bool) {
	for _, p := range s.Projects {
		if p.ID == id {
			return p, true
		}
	}
	return types.Project{}, false
}

// Validate checks the settings for values censor cannot work with
func (s *Settings) Validate() error {
	switch s.Store.Driver {
	case "sqlite", "file":
	default:
		return fmt.Errorf("unsupported store driver %q (want sqlite or file)", s.Store.Driver)
	}
	if s.Worker.Concurrency < 1 {
		return fmt.Errorf("worker.concurrency must be at least 1")
	}
	seen := make(map[int64]bool, len(s.Projects))
	for _, p := range s.Projects {
		if p.ID <= 0 {
			return fmt.Errorf("project %q has no positive id", p.Title)
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate project id %d", p.ID)
		}
		seen[p.ID] = true
		if p.Reference == "" {
			return fmt.Errorf("project %d has no reference", p.ID)
		}
	}
	return nil
}

// SetDefaults registers the default for every settings key
func SetDefaults(v *viper.Viper) {
	dataDir := filepath.Join(".censor")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("workspace.dir", filepath.Join(os.TempDir(), "censor", "builds"))
	v.SetDefault("workspace.keep", false)
	v.SetDefault("workspace.depth", 0)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", filepath.Join(dataDir, "censor.db"))
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.spool", filepath.Join(dataDir, "spool"))
	v.SetDefault("metrics.addr", "")
	v.SetDefault("command.timeout", "30m")
	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.sound", false)
}

// NewViper creates a viper instance with defaults, environment binding and
// the optional config file. An explicit configFile must exist; otherwise
// censor.yaml is searched in the working directory and ~/.censor.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("censor")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".censor"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read settings: %w", err)
		}
	}
	return v, nil
}

// LoadDotEnv loads KEY=value pairs from the given files into the process
// environment. Missing files are ignored; variables already set win.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// LoadSettings decodes and validates settings from v
func LoadSettings(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
