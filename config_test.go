package gantry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	require.Equal(t, HomingStandard, cfg.HomingStrategy)
	require.Equal(t, -5.0, cfg.SafeZHeight)
	require.Equal(t, 800.0, cfg.FeedRate)
	require.Equal(t, "grbl_settings.json", cfg.SettingsFile)
	require.Equal(t, "instrument_offsets.json", cfg.OffsetsFile)
	require.Equal(t, "info", cfg.LogLevel)
	require.NoError(t, cfg.Volume.Validate())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("GRBL_PORT", "/dev/ttyACM0")
	t.Setenv("GRBL_HOMING_STRATEGY", "limit-switch")
	t.Setenv("GRBL_SAFE_Z", "-2.5")
	t.Setenv("GRBL_FEED_RATE", "1200")
	t.Setenv("GRBL_VOLUME_Z_MIN", "-60")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()
	require.Equal(t, "/dev/ttyACM0", cfg.Port)
	require.Equal(t, HomingLimitSwitch, cfg.HomingStrategy)
	require.Equal(t, -2.5, cfg.SafeZHeight)
	require.Equal(t, 1200.0, cfg.FeedRate)
	require.Equal(t, -60.0, cfg.Volume.ZMin)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadRejectsUnknownStrategy(t *testing.T) {
	t.Setenv("GRBL_HOMING_STRATEGY", "teleport")

	cfg := Load()
	require.Equal(t, HomingStandard, cfg.HomingStrategy)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("GRBL_FEED_RATE", "fast")

	cfg := Load()
	require.Equal(t, 800.0, cfg.FeedRate)
}
