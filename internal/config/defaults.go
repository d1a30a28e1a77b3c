package config

import (
	"github.com/knadh/koanf/providers/confmap"
)

func DefaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"db_path":        "~/.local/share/taskd/taskd.db",
		"templates_file": "~/.config/taskd/templates.yaml",
		"log": map[string]interface{}{
			"level":   "info",
			"console": true,
			"file":    "",
		},
		"scheduler": map[string]interface{}{
			"sweep":           "@every 5m",
			"generate_count":  0,
			"horizon_days":    14,
			"avoid_conflicts": false,
			"watch_templates": true,
			"buffer":          256,
		},
		"notify": map[string]interface{}{
			"desktop":      false,
			"command":      "notify-send",
			"rate_per_sec": 1.0,
			"burst":        3,
		},
		"working_hours": map[string]interface{}{
			"start": 9,
			"end":   18,
		},
	}
}

func NewDefaultProvider() *confmap.Confmap {
	return confmap.Provider(DefaultConfig(), ".")
}

func GetDefaultConfigPath() string {
	return "~/.config/taskd/config.yaml"
}
