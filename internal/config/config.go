package config

import (
	"os"
	"path/filepath"
	"strings"

	"codeberg.org/mutker/vehicled/internal/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultLogLevel is used when neither config file nor flags set one.
const DefaultLogLevel = "info"

const configName = "vehicled.conf"

// Config holds the full daemon configuration.
type Config struct {
	LogLevel string `mapstructure:"log_level"`
	Debug    bool   `mapstructure:"debug"`
	Verbose  bool   `mapstructure:"verbose"`

	Simulator Simulator `mapstructure:"simulator"`
	Server    Server    `mapstructure:"server"`
	Feed      Feed      `mapstructure:"feed"`
	Telemetry Telemetry `mapstructure:"telemetry"`
	Broker    Broker    `mapstructure:"broker"`
	Mirror    Mirror    `mapstructure:"mirror"`
}

// Simulator configures the signal generator.
type Simulator struct {
	Interval  int    `mapstructure:"interval"`
	Variant   string `mapstructure:"variant"`
	AutoStart bool   `mapstructure:"auto_start"`
}

// Server configures the HTTP/WebSocket listener.
type Server struct {
	Listen    string `mapstructure:"listen"`
	Advertise bool   `mapstructure:"advertise"`
}

// Feed configures the UDP telemetry ingest.
type Feed struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// Telemetry configures durable snapshot/alert persistence.
type Telemetry struct {
	Enabled       bool   `mapstructure:"enabled"`
	Driver        string `mapstructure:"driver"`
	Database      string `mapstructure:"database"`
	DSN           string `mapstructure:"dsn"`
	BatchSize     int    `mapstructure:"batch_size"`
	FlushInterval int    `mapstructure:"flush_interval"`
}

// Broker configures the MQTT publisher.
type Broker struct {
	Enabled     bool   `mapstructure:"enabled"`
	URL         string `mapstructure:"url"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	QoS         int    `mapstructure:"qos"`
}

// Mirror configures the Redis live-state mirror.
type Mirror struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// flagKeys maps command line flag names to viper keys.
var flagKeys = map[string]string{
	"log-level": "log_level",
	"debug":     "debug",
	"verbose":   "verbose",
	"interval":  "simulator.interval",
	"variant":   "simulator.variant",
	"listen":    "server.listen",
}

func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: "VEHICLED"}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	fs := pflag.NewFlagSet("vehicled", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.String("log-level", "", "Log level (debug, info, warning, error)")
	fs.Bool("debug", false, "Enable debugging mode")
	fs.Bool("verbose", false, "Enable verbose logging")
	fs.Int("interval", 0, "Seconds between simulator ticks")
	fs.String("variant", "", "Vehicle variant (EV, Hybrid, ICE)")
	fs.String("listen", "", "HTTP listen address")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	setDefaults(v)

	if path := configPath(o); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
		if configDir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(configDir, "vehicled"))
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	// Command line flags override config file values
	fs.Visit(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			v.Set(key, f.Value.String())
		}
	})

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if config.Debug {
		config.LogLevel = string(LogLevelDebug)
	} else if config.Verbose && config.LogLevel != string(LogLevelDebug) {
		config.LogLevel = string(LogLevelInfo)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	ApplyLogLevel(config.LogLevel)

	return config, nil
}

// configPath resolves an explicit config file path, if any. The
// VEHICLED_CONFIG environment variable takes precedence over options.
func configPath(o *options) string {
	if path := os.Getenv(o.envPrefix + "_CONFIG"); path != "" {
		return path
	}

	return o.configPath
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("debug", false)
	v.SetDefault("verbose", false)

	v.SetDefault("simulator.interval", 1)
	v.SetDefault("simulator.variant", "EV")
	v.SetDefault("simulator.auto_start", true)

	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.advertise", false)

	v.SetDefault("feed.enabled", true)
	v.SetDefault("feed.listen", ":9000")

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.driver", "sqlite")
	v.SetDefault("telemetry.database", "/var/lib/vehicled/telemetry.db")
	v.SetDefault("telemetry.dsn", "")
	v.SetDefault("telemetry.batch_size", 32)
	v.SetDefault("telemetry.flush_interval", 5)

	v.SetDefault("broker.enabled", false)
	v.SetDefault("broker.url", "tcp://localhost:1883")
	v.SetDefault("broker.client_id", "vehicled")
	v.SetDefault("broker.topic_prefix", "vehicled")
	v.SetDefault("broker.qos", 1)

	v.SetDefault("mirror.enabled", false)
	v.SetDefault("mirror.address", "localhost:6379")
	v.SetDefault("mirror.password", "")
	v.SetDefault("mirror.db", 0)
	v.SetDefault("mirror.prefix", "vehicled")
}

func (c *Config) validate() error {
	errFactory := errors.New()

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	if c.Simulator.Interval < 1 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Simulator.Interval)
	}

	switch c.Telemetry.Driver {
	case "sqlite", "postgres":
	default:
		return errFactory.WithData(errors.ErrInvalidConfig, "unknown telemetry driver: "+c.Telemetry.Driver)
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.BatchSize < 1 {
			return errFactory.WithData(errors.ErrInvalidConfig, "telemetry batch_size must be positive")
		}
		if c.Telemetry.FlushInterval < 1 {
			return errFactory.WithData(errors.ErrInvalidConfig, "telemetry flush_interval must be positive")
		}
	}

	if c.Broker.Enabled && (c.Broker.QoS < 0 || c.Broker.QoS > 2) {
		return errFactory.WithData(errors.ErrInvalidConfig, "broker qos must be 0, 1 or 2")
	}

	return nil
}

// ApplyLogLevel sets the global zerolog level. logger.Init resets the
// level, so callers reapply the configured one after initializing.
func ApplyLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	}
}
