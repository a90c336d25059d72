package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Waf       WafConfig       `mapstructure:"waf"`
	Notifiers NotifiersConfig `mapstructure:"notifiers"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type WafConfig struct {
	Mode            string `mapstructure:"mode"`
	BlockThreshold  int    `mapstructure:"block_threshold"`
	VerifySignature bool   `mapstructure:"verify_signature"`
	JwtSecret       string `mapstructure:"jwt_secret"`
	FailurePolicy   string `mapstructure:"failure_policy"`
	// Store selects the backend: "memory" (default) or "redis".
	Store         string `mapstructure:"store"`
	SweepInterval string `mapstructure:"sweep_interval"`
	// AnalysisTimeout bounds one analysis, e.g. "5s". Empty keeps the 5s
	// default; "0" disables the deadline.
	AnalysisTimeout string `mapstructure:"analysis_timeout"`
	// Rules carries optional per-rule overrides keyed by rule name; see
	// BuildRules.
	Rules map[string]map[string]interface{} `mapstructure:"rules"`
}

type NotifiersConfig struct {
	WebhookURL     string            `mapstructure:"webhook_url"`
	WebhookHeaders map[string]string `mapstructure:"webhook_headers"`
	Console        bool              `mapstructure:"console"`
}

var globalConfig Config

// Load reads config.yaml from configPath with environment overrides.
func Load(configPath string) error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := viper.Unmarshal(&globalConfig); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	setDefaultValues()

	return nil
}

func setDefaultValues() {
	if globalConfig.Server.Port == 0 {
		globalConfig.Server.Port = 8080
	}
	if globalConfig.Waf.Mode == "" {
		globalConfig.Waf.Mode = "block"
	}
	if globalConfig.Waf.BlockThreshold == 0 {
		globalConfig.Waf.BlockThreshold = 80
	}
	if globalConfig.Waf.Store == "" {
		globalConfig.Waf.Store = "memory"
	}
}

func GetConfig() *Config {
	return &globalConfig
}

// SweepInterval parses the configured sweep interval, defaulting to 30s.
func (c *WafConfig) ParsedSweepInterval() (time.Duration, error) {
	if c.SweepInterval == "" {
		return 30 * time.Second, nil
	}
	d, err := time.ParseDuration(c.SweepInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid sweep_interval: %w", err)
	}
	return d, nil
}

// ParsedAnalysisTimeout parses the configured analysis timeout, defaulting
// to 5s.
func (c *WafConfig) ParsedAnalysisTimeout() (time.Duration, error) {
	if c.AnalysisTimeout == "" {
		return 5 * time.Second, nil
	}
	d, err := time.ParseDuration(c.AnalysisTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid analysis_timeout: %w", err)
	}
	return d, nil
}
