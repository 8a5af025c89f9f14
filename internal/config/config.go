package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix prefixes every environment override, e.g. DUPREPORT_DATABASE_DSN.
const EnvPrefix = "DUPREPORT"

// Config represents the application configuration
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Inbound  []ServerConfig `mapstructure:"inbound"`
	Outbound OutboundConfig `mapstructure:"outbound"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Status   StatusConfig   `mapstructure:"status"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	Timezone string `mapstructure:"timezone"`
	// DateFormat and TimeFormat name layouts such as "MM/DD/YYYY" and "HH:MM:SS".
	DateFormat     string `mapstructure:"date_format"`
	TimeFormat     string `mapstructure:"time_format"`
	Hour24         bool   `mapstructure:"hour24"`
	ApplyUTCOffset bool   `mapstructure:"apply_utc_offset"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// IngestConfig drives message selection.
type IngestConfig struct {
	SubjectRegex     string `mapstructure:"subject_regex"`
	SourceRegex      string `mapstructure:"source_regex"`
	DestinationRegex string `mapstructure:"destination_regex"`
	Delimiter        string `mapstructure:"delimiter"`
	WarnOnCollect    bool   `mapstructure:"warn_on_collect"`
}

// ServerConfig describes one mail server.
type ServerConfig struct {
	Name       string        `mapstructure:"name"`
	Protocol   string        `mapstructure:"protocol"`
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	Encryption string        `mapstructure:"encryption"`
	Username   string        `mapstructure:"username"`
	Password   string        `mapstructure:"password"`
	Folder     string        `mapstructure:"folder"`
	UnreadOnly bool          `mapstructure:"unread_only"`
	MarkRead   bool          `mapstructure:"mark_read"`
	KeepAlive  bool          `mapstructure:"keep_alive"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type OutboundConfig struct {
	Enabled bool         `mapstructure:"enabled"`
	Server  ServerConfig `mapstructure:"server"`
	From    string       `mapstructure:"from"`
	To      []string     `mapstructure:"to"`
}

type ScheduleConfig struct {
	Cron    string        `mapstructure:"cron"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

// StatusConfig points at the Redis instance receiving per-server poll status.
type StatusConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "dupreport")
	v.SetDefault("app.env", "production")
	v.SetDefault("app.timezone", "Local")
	v.SetDefault("app.date_format", "MM/DD/YYYY")
	v.SetDefault("app.time_format", "HH:MM:SS")
	v.SetDefault("app.hour24", true)
	v.SetDefault("app.apply_utc_offset", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 4)

	v.SetDefault("ingest.subject_regex", "^Duplicati")
	v.SetDefault("ingest.source_regex", `\w*`)
	v.SetDefault("ingest.destination_regex", `\w*`)
	v.SetDefault("ingest.delimiter", "-")
	v.SetDefault("ingest.warn_on_collect", false)

	v.SetDefault("schedule.cron", "*/15 * * * *")
	v.SetDefault("schedule.timeout", 10*time.Minute)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9464")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("status.enabled", false)
	v.SetDefault("status.host", "localhost")
	v.SetDefault("status.port", 6379)
	v.SetDefault("status.prefix", "dupreport:poll")
	v.SetDefault("status.ttl", 24*time.Hour)
}

// Loader owns one viper instance and the config decoded from it.
type Loader struct {
	v       *viper.Viper
	mu      sync.RWMutex
	current *Config
	logger  *zap.Logger
}

// NewLoader reads configFile (or dupreport.yaml from the working directory or
// /etc/dupreport when empty), applies DUPREPORT_ environment overrides and a
// local .env file, then validates the result.
func NewLoader(configFile string, logger *zap.Logger) (*Loader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("dupreport")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/dupreport")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logger.Info("no config file found, using defaults and environment")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	return &Loader{v: v, current: cfg, logger: logger}, nil
}

// Load is a convenience wrapper returning the decoded config only.
func Load(configFile string) (*Config, error) {
	l, err := NewLoader(configFile, nil)
	if err != nil {
		return nil, err
	}
	return l.Get(), nil
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Get returns the current configuration (thread-safe)
func (l *Loader) Get() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Watch reloads the file on change. Invalid edits are logged and ignored so the
// previous configuration stays in force.
func (l *Loader) Watch(onChange func(*Config)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		newCfg, err := decode(l.v)
		if err != nil {
			l.logger.Warn("config reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		l.mu.Lock()
		l.current = newCfg
		l.mu.Unlock()
		l.logger.Info("configuration reloaded", zap.String("file", e.Name))
		if onChange != nil {
			onChange(newCfg)
		}
	})
	l.v.WatchConfig()
}

// DataSource returns the driver-specific connection string.
func (c *DatabaseConfig) DataSource() string {
	if c.DSN != "" {
		return c.DSN
	}
	switch c.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
		)
	case "mysql":
		mc := mysql.NewConfig()
		mc.User = c.User
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
		mc.DBName = c.Name
		mc.ParseTime = true
		return mc.FormatDSN()
	default:
		return "dupreport.db"
	}
}

// Addr returns the Redis server address
func (c *StatusConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Location resolves the configured timezone, falling back to Local.
func (c *AppConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// IsDevelopment returns true if running in development mode
func (c *AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}
