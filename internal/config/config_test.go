package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	// 清除环境变量
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "./data", cfg.Store.DataDir)

	assert.Equal(t, "bed-1", cfg.Monitor.CameraID)
	assert.Equal(t, 0, cfg.Monitor.MaxConsecutiveSourceErrors)
	assert.Equal(t, 30*time.Second, cfg.Monitor.StatusTTL)

	assert.Equal(t, 640, cfg.Camera.FrameWidth)
	assert.Equal(t, 480, cfg.Camera.FrameHeight)

	assert.Equal(t, 0.65, cfg.Geofence.WidthFraction)
	assert.Equal(t, 0.95, cfg.Geofence.HeightFraction)
	assert.Equal(t, "pixel", cfg.Geofence.CoordinateSpace)

	assert.Equal(t, time.Duration(0), cfg.Detector.Timeout)

	assert.Equal(t, "mpg123", cfg.Audio.Player)
	assert.Equal(t, []string{"-q"}, cfg.Audio.PlayerArgs)
	assert.Equal(t, "./attention.mp3", cfg.Audio.AttentionCue)
	assert.Equal(t, "./warn.mp3", cfg.Audio.WarningCue)
	assert.Equal(t, time.Duration(0), cfg.Audio.AlertCooldown)

	assert.Equal(t, 15*time.Second, cfg.Channel.Timeout)
	assert.Equal(t, "https://script.google.com/macros/s", cfg.Channel.MailBaseURL)
	assert.Equal(t, "https://api.telegram.org", cfg.Channel.TelegramBaseURL)

	assert.False(t, cfg.RedisEnabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.False(t, cfg.DBEnabled)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.False(t, cfg.MQTTEnabled)
	assert.Equal(t, "fallguard", cfg.MQTT.TopicPrefix)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	os.Clearenv()
	defer os.Clearenv()

	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("DATA_DIR", "/var/lib/fallguard")
	os.Setenv("GEOFENCE_WIDTH", "0.5")
	os.Setenv("COORDINATE_SPACE", "normalized")
	os.Setenv("ALERT_COOLDOWN", "3s")
	os.Setenv("AUDIO_PLAYER_ARGS", "-q --no-control")
	os.Setenv("REDIS_ENABLED", "true")
	os.Setenv("DB_ENABLED", "1")
	os.Setenv("LOG_FORMAT", "console")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "/var/lib/fallguard", cfg.Store.DataDir)
	assert.Equal(t, 0.5, cfg.Geofence.WidthFraction)
	assert.Equal(t, "normalized", cfg.Geofence.CoordinateSpace)
	assert.Equal(t, 3*time.Second, cfg.Audio.AlertCooldown)
	assert.Equal(t, []string{"-q", "--no-control"}, cfg.Audio.PlayerArgs)
	assert.True(t, cfg.RedisEnabled)
	assert.True(t, cfg.DBEnabled)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoad_InvalidGeofence(t *testing.T) {
	os.Clearenv()
	defer os.Clearenv()

	os.Setenv("GEOFENCE_WIDTH", "1.5")
	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "GEOFENCE_WIDTH")
}

func TestLoad_InvalidCoordinateSpace(t *testing.T) {
	os.Clearenv()
	defer os.Clearenv()

	os.Setenv("COORDINATE_SPACE", "world")
	_, err := Load()
	assert.Error(t, err)
}

func TestGetDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=d sslmode=disable", c.GetDSN())
}

func TestGetEnv(t *testing.T) {
	os.Clearenv()
	value := getEnv("TEST_KEY", "default-value")
	assert.Equal(t, "default-value", value)

	os.Setenv("TEST_KEY", "env-value")
	value = getEnv("TEST_KEY", "default-value")
	assert.Equal(t, "env-value", value)

	os.Unsetenv("TEST_KEY")
}
