// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Variables VariablesConfig `mapstructure:"variables"`
	Fast      FastConfig      `mapstructure:"fast"`
	App       AppConfig       `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Host           string        `mapstructure:"host"`
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// VariablesConfig controls the machine variable store
type VariablesConfig struct {
	Persist bool   `mapstructure:"persist"`
	DBPath  string `mapstructure:"db_path"`
}

// FastConfig holds the FAST controller connections
type FastConfig struct {
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	SettleTime     time.Duration `mapstructure:"settle_time"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
	ReadSize       int           `mapstructure:"read_size"`
	Net            PortConfig    `mapstructure:"net"`
	Exp            ExpConfig     `mapstructure:"exp"`
}

// PortConfig describes one serial connection to a FAST processor.
// Port is a device path or socket://host:port.
type PortConfig struct {
	Port        string `mapstructure:"port"`
	Baud        int    `mapstructure:"baud"`
	Debug       bool   `mapstructure:"debug"`
	MinFirmware string `mapstructure:"min_firmware"`
}

// Enabled reports whether a port was configured
func (p PortConfig) Enabled() bool {
	return p.Port != ""
}

// ExpConfig is the expansion bus connection plus the boards on it
type ExpConfig struct {
	PortConfig `mapstructure:",squash"`
	Boards     []ExpBoardConfig `mapstructure:"boards"`
}

// ExpBoardConfig describes one expansion board. Boards are kept as a list so
// discovery follows declaration order.
type ExpBoardConfig struct {
	Name        string           `mapstructure:"name"`
	Model       string           `mapstructure:"model"`
	ID          string           `mapstructure:"id"`
	LEDFadeTime int              `mapstructure:"led_fade_time"`
	LEDHz       float64          `mapstructure:"led_hz"`
	Breakouts   []BreakoutConfig `mapstructure:"breakouts"`
}

// BreakoutConfig describes a breakout attached to a remote expansion port
type BreakoutConfig struct {
	Port  string `mapstructure:"port"`
	Model string `mapstructure:"model"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Production  bool   `mapstructure:"production"`
	Debug       bool   `mapstructure:"debug"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/fastbus")

	return load(v)
}

// LoadFromFile loads configuration from an explicit file path
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	// Environment variable support
	v.SetEnvPrefix("FASTBUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, fmt.Errorf("config file not found: %w", err)
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", "8086")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// Variable store defaults
	v.SetDefault("variables.persist", false)
	v.SetDefault("variables.db_path", "./data/variables.db")

	// FAST defaults
	v.SetDefault("fast.retry_delay", "100ms")
	v.SetDefault("fast.settle_time", "500ms")
	v.SetDefault("fast.confirm_timeout", "1s")
	v.SetDefault("fast.read_size", 128)
	v.SetDefault("fast.net.port", "")
	v.SetDefault("fast.net.baud", 921600)
	v.SetDefault("fast.net.min_firmware", "0.00")
	v.SetDefault("fast.exp.port", "")
	v.SetDefault("fast.exp.baud", 921600)
	v.SetDefault("fast.exp.min_firmware", "0.7")

	// App defaults
	v.SetDefault("app.name", "fastbus-service")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.production", false)
	v.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Enabled && config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}

	if !config.Fast.Net.Enabled() && !config.Fast.Exp.Enabled() {
		return fmt.Errorf("at least one of fast.net.port or fast.exp.port is required")
	}

	if config.Fast.ConfirmTimeout <= 0 {
		return fmt.Errorf("fast.confirm_timeout must be positive")
	}
	if config.Fast.ReadSize <= 0 {
		return fmt.Errorf("fast.read_size must be positive")
	}

	for _, port := range []PortConfig{config.Fast.Net, config.Fast.Exp.PortConfig} {
		if port.Enabled() && port.Baud <= 0 {
			return fmt.Errorf("invalid baud rate %d for %s", port.Baud, port.Port)
		}
	}

	seen := make(map[string]bool)
	for i, board := range config.Fast.Exp.Boards {
		if board.Name == "" {
			return fmt.Errorf("fast.exp.boards[%d].name is required", i)
		}
		if seen[board.Name] {
			return fmt.Errorf("duplicate expansion board name: %s", board.Name)
		}
		seen[board.Name] = true
		if board.Model == "" {
			return fmt.Errorf("fast.exp.boards[%d].model is required", i)
		}
		if board.ID == "" {
			config.Fast.Exp.Boards[i].ID = "0"
		}
	}

	// Validate environment
	validEnvs := []string{"development", "staging", "production", "test"}
	isValidEnv := false
	for _, env := range validEnvs {
		if config.App.Environment == env {
			isValidEnv = true
			break
		}
	}
	if !isValidEnv {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	// Validate logging level
	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	isValidLevel := false
	for _, level := range validLevels {
		if config.Logging.Level == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	return nil
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction reports whether connection failures should be retried
// instead of aborting startup.
func (c *Config) IsProduction() bool {
	return c.App.Production || c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}
