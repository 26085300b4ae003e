package gantry

import (
	"os"
	"strconv"

	"github.com/iwtcode/grblAdapter/models"
)

// Стратегии хоминга.
const (
	HomingStandard    = "standard"
	HomingLimitSwitch = "limit-switch"
)

// Config хранит модель конфигурации драйвера портала.
type Config struct {
	Port           string
	HomingStrategy string
	SafeZHeight    float64
	FeedRate       float64
	SettingsFile   string
	OffsetsFile    string
	PortCacheFile  string
	Volume         models.WorkingVolume
	LogLevel       string
}

// Load загружает конфигурацию из переменных окружения.
func Load() *Config {
	strategy := os.Getenv("GRBL_HOMING_STRATEGY")
	if strategy != HomingLimitSwitch {
		strategy = HomingStandard
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	return &Config{
		Port:           os.Getenv("GRBL_PORT"),
		HomingStrategy: strategy,
		SafeZHeight:    envFloat("GRBL_SAFE_Z", -5.0),
		FeedRate:       envFloat("GRBL_FEED_RATE", 800.0),
		SettingsFile:   envString("GRBL_SETTINGS_FILE", "grbl_settings.json"),
		OffsetsFile:    envString("GRBL_OFFSETS_FILE", "instrument_offsets.json"),
		PortCacheFile:  envString("GRBL_PORT_CACHE", ".grbl_port_cache.json"),
		Volume: models.WorkingVolume{
			XMin: envFloat("GRBL_VOLUME_X_MIN", 0),
			XMax: envFloat("GRBL_VOLUME_X_MAX", 300),
			YMin: envFloat("GRBL_VOLUME_Y_MIN", 0),
			YMax: envFloat("GRBL_VOLUME_Y_MAX", 200),
			ZMin: envFloat("GRBL_VOLUME_Z_MIN", -80),
			ZMax: envFloat("GRBL_VOLUME_Z_MAX", 0),
		},
		LogLevel: logLevel,
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return v
}
