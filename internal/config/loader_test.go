package config

import (
	"os"
	"path/filepath"
	"testing"

	"statuslight/internal/status"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "statuslight.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.APIPort)
	assert.Equal(t, "primary", cfg.CalendarID)
	assert.Equal(t, 60, cfg.RefreshInterval)
	assert.NotEmpty(t, cfg.StatusColors)
}

func TestLoad_FullFile(t *testing.T) {
	path := writeConfig(t, `
api_port: 9090
state_file: /var/lib/statuslight/state.json
calendar_id: work@example.com
refresh_interval: 30
govee_device: "AA:BB:CC:DD:EE:FF:11:22"
govee_model: H6159
power_off_when_available: true
status_colors:
  - status: in_meeting
    color: "255,0,0"
  - status: focus
    color: "0,0,255"
    brightness: 40
  - status: lunch
    power_off: true
`)

	cfg, err := Load(path, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.APIPort)
	assert.Equal(t, "work@example.com", cfg.CalendarID)
	assert.Equal(t, 30, cfg.RefreshInterval)
	assert.Equal(t, "H6159", cfg.GoveeModel)
	assert.True(t, cfg.PowerOffWhenAvailable)
	require.Len(t, cfg.StatusColors, 3)
	assert.Equal(t, "focus", cfg.StatusColors[1].Status)
	assert.Equal(t, 40, cfg.StatusColors[1].Brightness)
	assert.True(t, cfg.StatusColors[2].PowerOff)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "calendar_id: work@example.com\n")

	cfg, err := Load(path, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "work@example.com", cfg.CalendarID)
	assert.Equal(t, 8080, cfg.APIPort)
	assert.Equal(t, 60, cfg.RefreshInterval)
	assert.NotEmpty(t, cfg.StatusColors)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "status_colors: [not: valid: yaml\n")

	_, err := Load(path, zap.NewNop())
	assert.Error(t, err)
}

func TestConfigSettings(t *testing.T) {
	cfg := Config{
		CalendarID:      "work@example.com",
		RefreshInterval: 30,
		StatusColors: []ColorEntry{
			{Status: "in_meeting", Color: "255,0,0"},
			{Status: "lunch", PowerOff: true},
			{Status: "broken", Color: "not-a-color"},
			{Status: ""},
		},
	}

	settings := cfg.Settings()

	assert.Equal(t, "work@example.com", settings.SelectedCalendarID)
	assert.Equal(t, 30, settings.RefreshInterval)

	// Declaration order survives, the empty label does not.
	require.NotNil(t, settings.StatusColorMap)
	assert.Equal(t, []string{"in_meeting", "lunch", "broken"}, settings.StatusColorMap.Keys())

	action, ok := settings.StatusColorMap.Get("lunch")
	require.True(t, ok)
	assert.True(t, action.Off)

	// A bad color string degrades to white instead of dropping the entry.
	action, ok = settings.StatusColorMap.Get("broken")
	require.True(t, ok)
	assert.Equal(t, status.White, action.Color)
}
