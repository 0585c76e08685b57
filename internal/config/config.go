package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
)

type (
	Config struct {
		Gateway   GatewayConfig   `yaml:"gateway"`
		Logging   LoggingConfig   `yaml:"logging"`
		Scheduler SchedulerConfig `yaml:"scheduler"`
		Notify    NotifyConfig    `yaml:"notify"`
		Settings  SettingsConfig  `yaml:"settings"`
	}

	GatewayConfig struct {
		Bind           string `yaml:"bind"`
		RequestTimeout int    `yaml:"request_timeout"`
	}

	LoggingConfig struct {
		Level      string `yaml:"level"`  // debug, info, warn, error
		Format     string `yaml:"format"` // json, text
		Output     string `yaml:"output"` // stdout, file, both
		File       string `yaml:"file"`
		MaxSize    int    `yaml:"max_size"` // MB
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"` // days
	}

	// SchedulerConfig tunes the dispatch loop and its storage/sender
	// collaborators. DefaultToleranceMinutes is applied by the `job create`
	// CLI command when --tolerance is not given; jobs created over HTTP do
	// not receive it.
	SchedulerConfig struct {
		Enabled                 *bool  `yaml:"enabled"`
		DBPath                  string `yaml:"db_path"`
		TickIntervalSec         int    `yaml:"tick_interval_sec"`
		SendTimeoutSec          int    `yaml:"send_timeout_sec"`
		DefaultToleranceMinutes *int   `yaml:"default_tolerance_minutes"`
		SenderUserDataDir       string `yaml:"sender_user_data_dir"`
		SenderHeadless          bool   `yaml:"sender_headless"`
		SenderTargetURL         string `yaml:"sender_target_url"`
	}

	// NotifyConfig configures the push-notification fan-out targets. Each
	// is optional; a blank token/appID disables that target.
	NotifyConfig struct {
		TelegramToken  string `yaml:"telegram_token"`
		TelegramChatID int64  `yaml:"telegram_chat_id"`
		LarkAppID      string `yaml:"lark_app_id"`
		LarkAppSecret  string `yaml:"lark_app_secret"`
		LarkChatID     string `yaml:"lark_chat_id"`
	}

	// SettingsConfig is the small k/v-shaped settings block. Timezone is
	// checked to be a valid IANA name when the config is loaded; nothing in
	// the scheduler core reads either field at runtime.
	SettingsConfig struct {
		Timezone     string          `yaml:"timezone"`
		FeatureFlags map[string]bool `yaml:"feature_flags,omitempty"`
	}
)

func (c *Config) UpdateByName(name string, value any) error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	normalizedName := strings.ToLower(strings.TrimSpace(name))
	if normalizedName == "" {
		return fmt.Errorf("name is required")
	}

	switch normalizedName {
	case "config":
		typed, ok := value.(*Config)
		if !ok || typed == nil {
			return fmt.Errorf("name 'config' requires *Config")
		}
		*c = *typed
	case "gateway":
		typed, ok := value.(*GatewayConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'gateway' requires *GatewayConfig")
		}
		c.Gateway = *typed
	case "logging":
		typed, ok := value.(*LoggingConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'logging' requires *LoggingConfig")
		}
		c.Logging = *typed
	case "scheduler":
		typed, ok := value.(*SchedulerConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'scheduler' requires *SchedulerConfig")
		}
		c.Scheduler = *typed
	case "notify":
		typed, ok := value.(*NotifyConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'notify' requires *NotifyConfig")
		}
		c.Notify = *typed
	case "settings":
		typed, ok := value.(*SettingsConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'settings' requires *SettingsConfig")
		}
		c.Settings = *typed
	default:
		return fmt.Errorf("unsupported config name: %s", name)
	}

	return nil
}

func (c *Config) Clone() (*Config, error) {
	if c == nil {
		return nil, fmt.Errorf("config is nil")
	}

	raw, err := sonic.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	var cloned Config
	if err := sonic.Unmarshal(raw, &cloned); err != nil {
		return nil, fmt.Errorf("unmarshal config clone: %w", err)
	}

	return &cloned, nil
}

func (c *Config) Hash() string {
	json := sonic.Config{SortMapKeys: true, UseNumber: true}.Froze()
	raw, _ := json.Marshal(c)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
