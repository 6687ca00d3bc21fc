package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DatabaseConfig 数据库配置（报警审计日志）
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	QoS         byte
	TopicPrefix string
}

// Config 床位监控服务配置（monitor 与 api 共用）
type Config struct {
	HTTP struct {
		Addr string
	}

	// 定义存储（fences / alerts）
	Store struct {
		DataDir string
	}

	// 监控循环配置
	Monitor struct {
		CameraID                   string
		MetricsAddr                string
		MaxConsecutiveSourceErrors int
		StatusTTL                  time.Duration
	}

	Camera struct {
		SnapshotURL string
		Timeout     time.Duration
		FrameWidth  int
		FrameHeight int
	}

	// 床位围栏（按画面宽高比例居中）
	Geofence struct {
		WidthFraction   float64
		HeightFraction  float64
		CoordinateSpace string // "pixel" 或 "normalized"
	}

	Detector struct {
		URL     string
		Timeout time.Duration // 0 表示不设超时
	}

	Audio struct {
		Player        string
		PlayerArgs    []string
		AttentionCue  string
		WarningCue    string
		AlertCooldown time.Duration
	}

	// 远程通知通道
	Channel struct {
		Timeout         time.Duration
		MailBaseURL     string
		TelegramBaseURL string
	}

	RedisEnabled bool
	Redis        RedisConfig

	DBEnabled bool
	Database  DatabaseConfig

	MQTTEnabled bool
	MQTT        MQTTConfig

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")
	cfg.Store.DataDir = getEnv("DATA_DIR", "./data")

	cfg.Monitor.CameraID = getEnv("CAMERA_ID", "bed-1")
	cfg.Monitor.MetricsAddr = getEnv("MONITOR_METRICS_ADDR", ":9100")
	cfg.Monitor.MaxConsecutiveSourceErrors = parseInt(getEnv("MAX_CONSECUTIVE_SOURCE_ERRORS", "0"), 0)
	cfg.Monitor.StatusTTL = parseDuration(getEnv("STATUS_TTL", "30s"), 30*time.Second)

	cfg.Camera.SnapshotURL = getEnv("CAMERA_SNAPSHOT_URL", "http://localhost:8554/snapshot.jpg")
	cfg.Camera.Timeout = parseDuration(getEnv("CAMERA_TIMEOUT", "5s"), 5*time.Second)
	cfg.Camera.FrameWidth = parseInt(getEnv("FRAME_WIDTH", "640"), 640)
	cfg.Camera.FrameHeight = parseInt(getEnv("FRAME_HEIGHT", "480"), 480)

	cfg.Geofence.WidthFraction = parseFloat(getEnv("GEOFENCE_WIDTH", "0.65"), 0.65)
	cfg.Geofence.HeightFraction = parseFloat(getEnv("GEOFENCE_HEIGHT", "0.95"), 0.95)
	cfg.Geofence.CoordinateSpace = getEnv("COORDINATE_SPACE", "pixel")

	cfg.Detector.URL = getEnv("DETECTOR_URL", "http://localhost:8081")
	cfg.Detector.Timeout = parseDuration(getEnv("DETECTOR_TIMEOUT", "0s"), 0)

	cfg.Audio.Player = getEnv("AUDIO_PLAYER", "mpg123")
	cfg.Audio.PlayerArgs = strings.Fields(getEnv("AUDIO_PLAYER_ARGS", "-q"))
	cfg.Audio.AttentionCue = getEnv("AUDIO_ATTENTION_CUE", "./attention.mp3")
	cfg.Audio.WarningCue = getEnv("AUDIO_WARNING_CUE", "./warn.mp3")
	cfg.Audio.AlertCooldown = parseDuration(getEnv("ALERT_COOLDOWN", "0s"), 0)

	cfg.Channel.Timeout = parseDuration(getEnv("CHANNEL_TIMEOUT", "15s"), 15*time.Second)
	cfg.Channel.MailBaseURL = getEnv("MAIL_RELAY_BASE_URL", "https://script.google.com/macros/s")
	cfg.Channel.TelegramBaseURL = getEnv("TELEGRAM_BASE_URL", "https://api.telegram.org")

	cfg.RedisEnabled = parseBool(getEnv("REDIS_ENABLED", "false"))
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	cfg.DBEnabled = parseBool(getEnv("DB_ENABLED", "false"))
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "fallguard")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "5"), 5)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "2"), 2)

	cfg.MQTTEnabled = parseBool(getEnv("MQTT_ENABLED", "false"))
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "fallguard-monitor")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = byte(parseInt(getEnv("MQTT_QOS", "1"), 1))
	cfg.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "fallguard")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate 校验配置
func (c *Config) validate() error {
	if c.Geofence.WidthFraction <= 0 || c.Geofence.WidthFraction > 1 {
		return fmt.Errorf("GEOFENCE_WIDTH must be in (0,1], got %v", c.Geofence.WidthFraction)
	}
	if c.Geofence.HeightFraction <= 0 || c.Geofence.HeightFraction > 1 {
		return fmt.Errorf("GEOFENCE_HEIGHT must be in (0,1], got %v", c.Geofence.HeightFraction)
	}
	switch c.Geofence.CoordinateSpace {
	case "pixel", "normalized":
	default:
		return fmt.Errorf("COORDINATE_SPACE must be pixel or normalized, got %q", c.Geofence.CoordinateSpace)
	}
	if c.Camera.FrameWidth <= 0 || c.Camera.FrameHeight <= 0 {
		return fmt.Errorf("FRAME_WIDTH and FRAME_HEIGHT must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseFloat(s string, def float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
