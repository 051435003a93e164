// Package config loads the bootstrap configuration file. The file seeds the
// state store on first run; after that the persisted state is authoritative
// and the file only supplies what state cannot hold, like the API port and
// the Govee device identity.
package config

import (
	"errors"
	"fmt"
	"os"

	"statuslight/internal/state"
	"statuslight/internal/status"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the daemon looks for its config unless overridden.
const DefaultPath = "statuslight.yaml"

// ColorEntry maps a status label to a light action. Entry order matters:
// keyword matching against meeting titles tries entries top to bottom.
type ColorEntry struct {
	Status     string `yaml:"status"`
	Color      string `yaml:"color"` // "r,g,b"
	PowerOff   bool   `yaml:"power_off"`
	Brightness int    `yaml:"brightness"`
}

// Config is the statuslight.yaml structure.
type Config struct {
	APIPort   int    `yaml:"api_port"`
	StateFile string `yaml:"state_file"`

	CalendarID      string `yaml:"calendar_id"`
	RefreshInterval int    `yaml:"refresh_interval"` // seconds

	GoveeDevice string `yaml:"govee_device"`
	GoveeModel  string `yaml:"govee_model"`

	DisableCalendarSync   bool `yaml:"disable_calendar_sync"`
	DisableLightControl   bool `yaml:"disable_light_control"`
	PowerOffWhenAvailable bool `yaml:"power_off_when_available"`
	OffForUnknownStatus   bool `yaml:"off_for_unknown_status"`

	StatusColors []ColorEntry `yaml:"status_colors"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		APIPort:         8080,
		StateFile:       "statuslight_state.json",
		CalendarID:      "primary",
		RefreshInterval: state.DefaultRefreshInterval,
		StatusColors: []ColorEntry{
			{Status: status.StatusInMeeting, Color: "255,0,0"},
			{Status: "focus", Color: "0,0,255"},
			{Status: status.StatusAvailable, Color: "0,255,0"},
		},
	}
}

// Load reads the config file at path. A missing file is not an error; the
// defaults are used so a bare binary still comes up.
func Load(path string, logger *zap.Logger) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("No config file found, using defaults",
				zap.String("path", path))
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()

	logger.Info("Config loaded",
		zap.String("path", path),
		zap.String("calendar_id", cfg.CalendarID),
		zap.Int("status_colors", len(cfg.StatusColors)))
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.APIPort <= 0 {
		c.APIPort = def.APIPort
	}
	if c.StateFile == "" {
		c.StateFile = def.StateFile
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = def.RefreshInterval
	}
	if len(c.StatusColors) == 0 {
		c.StatusColors = def.StatusColors
	}
}

// Settings converts the bootstrap config into the state-store defaults used
// when no state file exists yet. Color entries that fail to parse fall back
// to white rather than losing the status label.
func (c Config) Settings() state.Settings {
	colors := status.NewColorMap()
	for _, entry := range c.StatusColors {
		if entry.Status == "" {
			continue
		}
		action := status.ColorAction{Brightness: entry.Brightness}
		if entry.PowerOff {
			action.Off = true
		} else if rgb, err := status.ParseRGB(entry.Color); err == nil {
			action.Color = rgb
		} else {
			action.Color = status.White
		}
		colors.Set(entry.Status, action)
	}

	return state.Settings{
		SelectedCalendarID:    c.CalendarID,
		RefreshInterval:       c.RefreshInterval,
		StatusColorMap:        colors,
		DisableCalendarSync:   c.DisableCalendarSync,
		DisableLightControl:   c.DisableLightControl,
		PowerOffWhenAvailable: c.PowerOffWhenAvailable,
		OffForUnknownStatus:   c.OffForUnknownStatus,
	}
}
