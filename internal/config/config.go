// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Signup  SignupConfig  `mapstructure:"signup" yaml:"signup"`
	Captcha CaptchaConfig `mapstructure:"captcha" yaml:"captcha"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ServerConfig tunes the operator dashboard API.
type ServerConfig struct {
	Listen          string        `mapstructure:"listen" yaml:"listen"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	ShutdownGrace   time.Duration `mapstructure:"shutdown_grace" yaml:"shutdown_grace"`
	ScreenshotRate  time.Duration `mapstructure:"screenshot_rate" yaml:"screenshot_rate"`
	ScreenshotBurst int           `mapstructure:"screenshot_burst" yaml:"screenshot_burst"`
}

// BrowserConfig holds settings for the headless browser instances.
type BrowserConfig struct {
	Headless    bool     `mapstructure:"headless" yaml:"headless"`
	Concurrency int      `mapstructure:"concurrency" yaml:"concurrency"`
	Width       int      `mapstructure:"width" yaml:"width"`
	Height      int      `mapstructure:"height" yaml:"height"`
	Args        []string `mapstructure:"args" yaml:"args"`
	// FieldWait bounds how long a single locator strategy may wait for its
	// element before the next strategy is tried.
	FieldWait time.Duration `mapstructure:"field_wait" yaml:"field_wait"`
}

// SignupConfig drives the per-bot signup workflow.
type SignupConfig struct {
	URL         string   `mapstructure:"url" yaml:"url"`
	EmailDomain string   `mapstructure:"email_domain" yaml:"email_domain"`
	Proxies     []string `mapstructure:"proxies" yaml:"proxies"`
	// NavigateSettle is the pause after the signup page loads.
	NavigateSettle time.Duration `mapstructure:"navigate_settle" yaml:"navigate_settle"`
	// StepPause is the pause between consecutive form steps.
	StepPause time.Duration `mapstructure:"step_pause" yaml:"step_pause"`
	// SubmitSettle is the pause after activating the final submit control,
	// before the page is inspected for CAPTCHA indicators.
	SubmitSettle time.Duration `mapstructure:"submit_settle" yaml:"submit_settle"`
}

// CaptchaConfig bounds the auto-solve pipeline and the manual escalation.
type CaptchaConfig struct {
	// SettleWait is the pause after a checkbox click before the challenge
	// frame is re-checked.
	SettleWait time.Duration `mapstructure:"settle_wait" yaml:"settle_wait"`
	// RecheckWait is the interval between passive re-checks (stage C).
	RecheckWait     time.Duration `mapstructure:"recheck_wait" yaml:"recheck_wait"`
	PassiveAttempts int           `mapstructure:"passive_attempts" yaml:"passive_attempts"`
	// ManualTimeout is the ceiling on the human-in-the-loop wait. A bot in
	// manual escalation fails its attempt when it elapses.
	ManualTimeout time.Duration `mapstructure:"manual_timeout" yaml:"manual_timeout"`
}

// StoreConfig locates the durable account store.
type StoreConfig struct {
	// Path is the line-oriented account file. A leading ~ is expanded.
	Path string `mapstructure:"path" yaml:"path"`
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "accountsmith")
	v.SetDefault("logger.log_file", "accountsmith.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Server --
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.request_timeout", "120s")
	v.SetDefault("server.shutdown_grace", "15s")
	v.SetDefault("server.screenshot_rate", "250ms")
	v.SetDefault("server.screenshot_burst", 2)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.concurrency", 4)
	v.SetDefault("browser.width", 1920)
	v.SetDefault("browser.height", 1080)
	v.SetDefault("browser.field_wait", "15s")

	// -- Signup --
	v.SetDefault("signup.url", "https://www.spotify.com/signup")
	v.SetDefault("signup.email_domain", "tempmail.com")
	v.SetDefault("signup.navigate_settle", "3s")
	v.SetDefault("signup.step_pause", "2s")
	v.SetDefault("signup.submit_settle", "8s")

	// -- Captcha --
	v.SetDefault("captcha.settle_wait", "2s")
	v.SetDefault("captcha.recheck_wait", "3s")
	v.SetDefault("captcha.passive_attempts", 3)
	v.SetDefault("captcha.manual_timeout", "5m")

	// -- Store --
	v.SetDefault("store.path", "~/accountsmith_accounts.txt")
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Browser.Concurrency <= 0 {
		return fmt.Errorf("browser.concurrency must be a positive integer")
	}
	if c.Browser.Width <= 0 || c.Browser.Height <= 0 {
		return fmt.Errorf("browser.width and browser.height must be positive")
	}
	if c.Signup.URL == "" {
		return fmt.Errorf("signup.url is a required configuration field")
	}
	if c.Captcha.ManualTimeout <= 0 {
		return fmt.Errorf("captcha.manual_timeout must be a positive duration")
	}
	if c.Captcha.PassiveAttempts < 0 {
		return fmt.Errorf("captcha.passive_attempts must not be negative")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is a required configuration field")
	}
	return nil
}
