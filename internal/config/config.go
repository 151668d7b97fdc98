package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the web server configuration, read from an optional YAML file
// with environment variable overrides.
type Config struct {
	Env        string     `yaml:"env" env:"SWBATCH_ENV" env-default:"local"`
	HTTPServer HTTPServer `yaml:"http-server"`
	Converter  Converter  `yaml:"converter"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env:"SWBATCH_ADDR" env-default:":8080"`
	Timeout     time.Duration `yaml:"timeout" env:"SWBATCH_TIMEOUT" env-default:"60s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"SWBATCH_IDLE_TIMEOUT" env-default:"120s"`
}

type Converter struct {
	// Visible shows the SolidWorks window while converting.
	Visible      bool   `yaml:"visible" env:"SWBATCH_VISIBLE" env-default:"false"`
	SettingsPath string `yaml:"settings_path" env:"SWBATCH_SETTINGS" env-default:"config/settings.json"`
	HistoryPath  string `yaml:"history_path" env:"SWBATCH_HISTORY" env-default:"config/history.db"`
}

// Load reads configuration from path when the file exists, falling back
// to environment variables and defaults otherwise.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
