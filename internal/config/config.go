package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Conf holds the application configuration, making it accessible globally.
var Conf *Config

var (
	hooksMu sync.Mutex
	hooks   []func(*Config)
)

// OnChange registers fn to run after the watched config file was reloaded.
func OnChange(fn func(*Config)) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	hooks = append(hooks, fn)
}

func runHooks(c *Config) {
	hooksMu.Lock()
	fns := append([]func(*Config){}, hooks...)
	hooksMu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

// Config struct is the top-level configuration structure.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Data     DataConfig     `mapstructure:"data"`
	Sessions SessionsConfig `mapstructure:"sessions"`
	// Experiment holds raw experiment option overrides, merged over the
	// built-in defaults when a session starts.
	Experiment map[string]any `mapstructure:"experiment"`
}

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Port          string `mapstructure:"port"`
	SessionSecret string `mapstructure:"session_secret"`
	// Production enables HSTS and secure cookies.
	Production bool `mapstructure:"production"`
	// RateLimit is the number of sessions a client may start per minute.
	RateLimit uint `mapstructure:"rate_limit"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	// LogLevel is one of silent, error, warn, info.
	LogLevel string `mapstructure:"log_level"`
}

// DSN is the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		d.Host, d.User, d.Password, d.DBName, d.Port)
}

// LoggingConfig holds settings for the logger.
type LoggingConfig struct {
	Directory  string `mapstructure:"directory"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// AdminConfig protects the results endpoints.
type AdminConfig struct {
	Username string `mapstructure:"username"`
	// PasswordHash is a bcrypt hash, see the hash-password command.
	PasswordHash string `mapstructure:"password_hash"`
}

// DataConfig locates the stimuli and trial lists.
type DataConfig struct {
	StimuliDir       string   `mapstructure:"stimuli_dir"`
	StimuliURL       string   `mapstructure:"stimuli_url"`
	TrialsFile       string   `mapstructure:"trials_file"`
	PracticeFile     string   `mapstructure:"practice_file"`
	TranslationsFile string   `mapstructure:"translations_file"`
	ShuffleFields    []string `mapstructure:"shuffle_fields"`
	// GroupField splits the trial list into counterbalancing groups; one group
	// is drawn per session.
	GroupField string `mapstructure:"group_field"`
	// InitialCalibration calibrates once before the practice block.
	InitialCalibration bool `mapstructure:"initial_calibration"`
}

// SessionsConfig controls participant session lifetimes.
type SessionsConfig struct {
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	ReapEvery   time.Duration `mapstructure:"reap_every"`
}

// setDefaults sets the default values for the configuration.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "5050")
	v.SetDefault("server.session_secret", "change-me")
	v.SetDefault("server.production", false)
	v.SetDefault("server.rate_limit", 10)

	// Database defaults
	v.SetDefault("database.host", "db")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "user")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.dbname", "eyetrack-db")
	v.SetDefault("database.log_level", "warn")

	// Logging defaults
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.max_size", 10)   // 10 MB
	v.SetDefault("logging.max_backups", 3) // Keep 3 backups
	v.SetDefault("logging.max_age", 7)     // 7 days
	v.SetDefault("logging.compress", true) // Compress old logs

	// Admin defaults
	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.password_hash", "")

	// Data defaults
	v.SetDefault("data.stimuli_dir", "stimuli")
	v.SetDefault("data.stimuli_url", "/stimuli/")
	v.SetDefault("data.trials_file", "stimuli/trials.csv")
	v.SetDefault("data.practice_file", "stimuli/practice.csv")
	v.SetDefault("data.translations_file", "")
	v.SetDefault("data.shuffle_fields", []string{})
	v.SetDefault("data.group_field", "")
	v.SetDefault("data.initial_calibration", true)

	// Sessions defaults
	v.SetDefault("sessions.idle_timeout", 10*time.Minute)
	v.SetDefault("sessions.poll_timeout", 25*time.Second)
	v.SetDefault("sessions.reap_every", time.Minute)
}

// Init initializes the configuration with Viper.
func Init(projectRoot string, log *zap.Logger) error {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// --- File Configuration ---
	v.AddConfigPath(filepath.Join(projectRoot, "config"))
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// --- Environment Variable Binding ---
	v.SetEnvPrefix("EYETRACK") // e.g., EYETRACK_SERVER_PORT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read the initial configuration from the file.
	// It's okay if the file doesn't exist; defaults and env vars will be used.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(&Conf); err != nil {
		return fmt.Errorf("unable to decode config into struct: %w", err)
	}

	// Hot-reload applies to sessions started after the change.
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info("Configuration file changed, reloading.", zap.String("file", e.Name))
		if err := v.Unmarshal(&Conf); err != nil {
			log.Error("Error reloading configuration", zap.Error(err))
			return
		}
		runHooks(Conf)
	})

	log.Info("Configuration loaded successfully")
	return nil
}

// Load reads the configuration without watching it, for one-shot commands.
func Load(projectRoot string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AddConfigPath(filepath.Join(projectRoot, "config"))
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("EYETRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	return &c, nil
}
