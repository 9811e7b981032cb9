package app

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coreconfig "github.com/m3rciful/groupbot/core/config"
	coredatabase "github.com/m3rciful/groupbot/core/database"
	corecmd "github.com/m3rciful/groupbot/core/cmd"
)

// Config is the application configuration: the shared core sections plus the
// database, reminder, and group-policy sections this bot adds.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database  coredatabase.Config `yaml:"database"`
	Reminders RemindersConfig     `yaml:"reminders"`
	Groups    GroupsConfig        `yaml:"groups"`
}

// RemindersConfig controls the daily deadline reminder job.
type RemindersConfig struct {
	// Hour is the local hour (0-23) the job fires at.
	Hour int `yaml:"hour" envconfig:"REMINDERS_HOUR"`
	// Timezone is an IANA zone name; empty means the process-local zone.
	Timezone string `yaml:"timezone" envconfig:"REMINDERS_TIMEZONE"`
}

// GroupsConfig controls group creation policy.
type GroupsConfig struct {
	// ApprovalRequired routes new groups through the admin request pipeline
	// instead of self-service creation.
	ApprovalRequired bool `yaml:"approval_required" envconfig:"GROUPS_APPROVAL_REQUIRED"`
}

// CoreConfig satisfies the runner's ConfigCarrier.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Config
}

// Location resolves the reminder timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Reminders.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Reminders.Timezone)
	if err != nil {
		return nil, fmt.Errorf("reminders.timezone: %w", err)
	}
	return loc, nil
}

// LoadConfig reads YAML configuration plus env overrides.
func LoadConfig(path string) (corecmd.ConfigCarrier, error) {
	var cfg Config
	cfg.Reminders.Hour = 9

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, err
	}
	if cfg.Reminders.Hour < 0 || cfg.Reminders.Hour > 23 {
		return nil, fmt.Errorf("reminders.hour must be in [0, 23], got %d", cfg.Reminders.Hour)
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
