package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/auto-dns/docker-fleet-updater/internal/domain"
	"github.com/spf13/viper"
)

// AppConfig holds application-specific configuration.
type AppConfig struct {
	ListenAddr         string        `mapstructure:"listen_addr"`
	LabelPrefix        string        `mapstructure:"label_prefix"`
	Schedule           string        `mapstructure:"schedule"`
	ScheduleUpdate     string        `mapstructure:"schedule_update"`
	ProgressTTL        time.Duration `mapstructure:"progress_ttl"`
	ProgressSize       int           `mapstructure:"progress_size"`
	HealthPollInterval time.Duration `mapstructure:"health_poll_interval"`
	MaxParallelHosts   int           `mapstructure:"max_parallel_hosts"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig holds the logging-related configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"log_level"`
	Format string `mapstructure:"format"`
}

const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// AgentConfig holds settings shared by every agent client.
type AgentConfig struct {
	LongTimeout time.Duration `mapstructure:"long_timeout"`
}

// StoreConfig selects the persistence backend: "memory" or "etcd".
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
}

// EtcdConfig holds etcd-related configuration.
type EtcdConfig struct {
	Endpoints     []string      `mapstructure:"endpoints"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
	PathPrefix    string        `mapstructure:"path_prefix"`
	TxnRetries    int           `mapstructure:"txn_retries"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// NotifyConfig holds the notification settings. They are read again at send time, so
// the values here are only the startup snapshot.
type NotifyConfig struct {
	URLs         []string `mapstructure:"urls"`
	Title        string   `mapstructure:"title"`
	BodyTemplate string   `mapstructure:"body_template"`
}

// HostSeed is a host created at startup when no host of the same name is stored.
type HostSeed struct {
	Name               string `mapstructure:"name"`
	Enabled            bool   `mapstructure:"enabled"`
	Prune              bool   `mapstructure:"prune"`
	PruneAll           bool   `mapstructure:"prune_all"`
	URL                string `mapstructure:"url"`
	Secret             string `mapstructure:"secret"`
	Timeout            int    `mapstructure:"timeout"`
	ContainerHCTimeout int    `mapstructure:"container_hc_timeout"`
}

func (s HostSeed) Host() domain.Host {
	return domain.Host{
		Name:               s.Name,
		Enabled:            s.Enabled,
		Prune:              s.Prune,
		PruneAll:           s.PruneAll,
		URL:                s.URL,
		Secret:             s.Secret,
		Timeout:            s.Timeout,
		ContainerHCTimeout: s.ContainerHCTimeout,
	}
}

// Config is the top-level configuration struct.
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Logging LoggingConfig `mapstructure:"log"`
	Agent   AgentConfig   `mapstructure:"agent"`
	Store   StoreConfig   `mapstructure:"store"`
	Etcd    EtcdConfig    `mapstructure:"etcd"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Hosts   []HostSeed    `mapstructure:"hosts"`
}

// InitConfig performs the initial configuration: setting defaults, specifying the config file, and reading it.
// An empty path looks for config.yaml in the working directory.
func InitConfig(path string) error {
	SetDefaults()

	// Specify the config file details.
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config") // Looks for config.yaml
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".") // current directory
	}

	// Read the config file if available.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// If the file is not found, just continue with defaults and env vars.
	}

	// Enable automatic environment variable binding.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return nil
}

// SetDefaults registers the default of every key.
func SetDefaults() {
	viper.SetDefault("app.listen_addr", ":8000")
	viper.SetDefault("app.label_prefix", "dev.fleet-updater")
	viper.SetDefault("app.schedule", "0 */6 * * *")
	viper.SetDefault("app.schedule_update", "")
	viper.SetDefault("app.progress_ttl", 10*time.Minute)
	viper.SetDefault("app.progress_size", 100)
	viper.SetDefault("app.health_poll_interval", 2*time.Second)
	viper.SetDefault("app.max_parallel_hosts", 0)
	viper.SetDefault("app.shutdown_timeout", 10*time.Second)
	viper.SetDefault("log.log_level", "INFO")
	viper.SetDefault("log.format", LogFormatConsole)
	viper.SetDefault("agent.long_timeout", 5*time.Minute)
	viper.SetDefault("store.backend", "memory")
	viper.SetDefault("etcd.endpoints", []string{"localhost:2379"})
	viper.SetDefault("etcd.dial_timeout", 2*time.Second)
	viper.SetDefault("etcd.path_prefix", "/docker-fleet-updater")
	viper.SetDefault("etcd.txn_retries", 5)
	viper.SetDefault("etcd.retry_interval", 100*time.Millisecond)
	viper.SetDefault("notify.urls", []string{})
	viper.SetDefault("notify.title", "Container updates")
	viper.SetDefault("notify.body_template", "")
}

// Load unmarshals the configuration into the Config struct.
func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings the application cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "etcd":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "etcd" && len(c.Etcd.Endpoints) == 0 {
		return fmt.Errorf("etcd store needs at least one endpoint")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", LogFormatConsole, LogFormatJSON:
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	for i, h := range c.Hosts {
		if h.Name == "" || h.URL == "" {
			return fmt.Errorf("hosts[%d]: name and url are required", i)
		}
	}
	return nil
}
