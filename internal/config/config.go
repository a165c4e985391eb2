package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Target  string        `yaml:"target"`
	Display DisplayConfig `yaml:"display"`
	Session SessionConfig `yaml:"session"`
	PPS     PPSConfig     `yaml:"pps"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

type DisplayConfig struct {
	// NoCurses selects line-mode output instead of the full-screen display.
	NoCurses bool `yaml:"nocurses"`
}

type SessionConfig struct {
	// NMEA asks gpsd for NMEA instead of raw device output.
	NMEA bool `yaml:"nmea"`
	// Type forces a driver by name prefix at startup.
	Type string `yaml:"type"`
	// Logfile is the transcript path, truncated at startup.
	Logfile string `yaml:"logfile"`

	WaitTimeout time.Duration `yaml:"wait_timeout"`
	SettleDelay time.Duration `yaml:"settle_delay"`
}

type PPSConfig struct {
	Enable bool `yaml:"enable"`
	// Chip is the GPIO character device, e.g. gpiochip0.
	Chip string `yaml:"chip"`
	// Line is the GPIO line name (GPIO18) or offset the PPS signal is wired to.
	Line string `yaml:"line"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	// Debug is the diagnostic verbosity; 0 logs warnings only.
	Debug int `yaml:"debug"`
}

// Load reads a YAML config. An empty path yields the defaults.
func Load(path string) (Config, error) {
	var cfg Config
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			if strings.Contains(err.Error(), "not found in type") {
				return Config{}, fmt.Errorf("config contains unknown fields: %s", unknownFieldDetail(err))
			}
			return Config{}, err
		}
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func unknownFieldDetail(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, "field "); i >= 0 {
		return msg[i:]
	}
	return msg
}

// DefaultAndValidate fills unset fields and rejects inconsistent settings.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	cfg.Target = strings.TrimSpace(cfg.Target)
	cfg.Session.Type = strings.TrimSpace(cfg.Session.Type)

	if cfg.Session.WaitTimeout == 0 {
		cfg.Session.WaitTimeout = 2 * time.Second
	}
	if cfg.Session.WaitTimeout < 0 {
		return fmt.Errorf("session.wait_timeout must be > 0")
	}
	if cfg.Session.SettleDelay == 0 {
		cfg.Session.SettleDelay = 50 * time.Millisecond
	}
	if cfg.Session.SettleDelay < 0 {
		return fmt.Errorf("session.settle_delay must be >= 0")
	}

	if cfg.PPS.Enable {
		if strings.TrimSpace(cfg.PPS.Line) == "" {
			return fmt.Errorf("pps.line is required when pps.enable is true")
		}
		if strings.TrimSpace(cfg.PPS.Chip) == "" {
			cfg.PPS.Chip = "gpiochip0"
		}
	}

	if cfg.Log.Debug < 0 {
		return fmt.Errorf("log.debug must be >= 0")
	}
	return nil
}
