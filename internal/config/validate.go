package config

import (
	"errors"
	"strings"
	"time"

	"github.com/abdatta/wappflow/internal/consts"
)

const (
	defaultBind            = ":8787"
	defaultTickIntervalSec = 60
	defaultSendTimeoutSec  = 30
)

// Validate fills in defaults and rejects structurally invalid configuration.
// It does not validate individual Jobs — that is Job.Validate's job.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config cannot be nil")
	}

	c.Gateway.Bind = strings.TrimSpace(c.Gateway.Bind)
	if c.Gateway.Bind == "" {
		c.Gateway.Bind = defaultBind
	}
	if c.Gateway.RequestTimeout <= 0 {
		c.Gateway.RequestTimeout = 30
	}

	c.Logging.Level = strings.TrimSpace(c.Logging.Level)
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	c.Logging.Format = strings.TrimSpace(c.Logging.Format)
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	c.Logging.Output = strings.TrimSpace(c.Logging.Output)
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}

	if c.Scheduler.Enabled == nil {
		enabled := true
		c.Scheduler.Enabled = &enabled
	}
	c.Scheduler.DBPath = strings.TrimSpace(c.Scheduler.DBPath)
	if c.Scheduler.DBPath == "" {
		c.Scheduler.DBPath = consts.DefaultDBPath()
	}
	if c.Scheduler.TickIntervalSec <= 0 {
		c.Scheduler.TickIntervalSec = defaultTickIntervalSec
	}
	if c.Scheduler.SendTimeoutSec <= 0 {
		c.Scheduler.SendTimeoutSec = defaultSendTimeoutSec
	}

	c.Settings.Timezone = strings.TrimSpace(c.Settings.Timezone)
	if c.Settings.Timezone == "" {
		c.Settings.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(c.Settings.Timezone); err != nil {
		return errors.New("settings.timezone is not a valid IANA timezone: " + c.Settings.Timezone)
	}

	return nil
}
