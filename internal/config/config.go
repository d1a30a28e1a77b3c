package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
)

const EnvPrefix = "TASKD_"

type Config struct {
	DBPath        string             `koanf:"db_path"`
	TemplatesFile string             `koanf:"templates_file"`
	Log           LogConfig          `koanf:"log"`
	Scheduler     SchedulerConfig    `koanf:"scheduler"`
	Notify        NotifyConfig       `koanf:"notify"`
	WorkingHours  WorkingHoursConfig `koanf:"working_hours"`
}

type LogConfig struct {
	Level   string `koanf:"level"`
	Console bool   `koanf:"console"`
	File    string `koanf:"file"`
}

type SchedulerConfig struct {
	Sweep          string `koanf:"sweep"`           // cron spec for generation and overdue sweeps
	GenerateCount  int    `koanf:"generate_count"`  // per template per sweep; 0 = everything in the horizon
	HorizonDays    int    `koanf:"horizon_days"`    // how far ahead instances are generated
	AvoidConflicts bool   `koanf:"avoid_conflicts"` // drop generated instances overlapping active ones
	WatchTemplates bool   `koanf:"watch_templates"`
	Buffer         int    `koanf:"buffer"`
}

type NotifyConfig struct {
	Desktop    bool    `koanf:"desktop"`
	Command    string  `koanf:"command"`
	RatePerSec float64 `koanf:"rate_per_sec"`
	Burst      int     `koanf:"burst"`
}

type WorkingHoursConfig struct {
	Start int `koanf:"start"`
	End   int `koanf:"end"`
}

// Load layers defaults, the YAML file at configPath (if it exists) and
// TASKD_* environment variables, in that order. A double underscore in a
// variable name separates nested keys: TASKD_SCHEDULER__SWEEP.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(NewDefaultProvider(), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		configPath = expandPath(configPath)

		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.DBPath = expandPath(cfg.DBPath)
	cfg.TemplatesFile = expandPath(cfg.TemplatesFile)
	cfg.Log.File = expandPath(cfg.Log.File)
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("db_path is required")
	}
	if _, err := cron.ParseStandard(c.Scheduler.Sweep); err != nil {
		return fmt.Errorf("scheduler.sweep %q: %w", c.Scheduler.Sweep, err)
	}
	if c.Scheduler.GenerateCount < 0 {
		return fmt.Errorf("scheduler.generate_count must be >= 0")
	}
	if c.Scheduler.HorizonDays <= 0 {
		return fmt.Errorf("scheduler.horizon_days must be positive")
	}
	if c.Notify.RatePerSec < 0 {
		return fmt.Errorf("notify.rate_per_sec must be >= 0")
	}
	if c.Notify.Desktop && strings.TrimSpace(c.Notify.Command) == "" {
		return fmt.Errorf("notify.command is required when notify.desktop is on")
	}
	wh := c.WorkingHours
	if wh.Start < 0 || wh.End > 24 || wh.Start >= wh.End {
		return fmt.Errorf("working_hours must satisfy 0 <= start < end <= 24, got %d-%d", wh.Start, wh.End)
	}
	return nil
}

func expandPath(path string) string {
	if path == "" {
		return path
	}

	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}

	return path
}
