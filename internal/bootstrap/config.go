package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config 存储从环境变量或 .env 文件加载的配置。
type Config struct {
	ServerPort      string
	LogLevel        string
	AppEnv          string // development/production
	CORSOrigin      string
	RoomIDLength    int
	ReapAfter       time.Duration // 空房间自创建起多久后可被回收
	SweepInterval   time.Duration // 周期性扫描间隔
	RateLimitMax    int
	RateLimitWindow time.Duration
}

// LoadConfig 从环境变量加载配置。
func LoadConfig() (*Config, error) {
	// 优先加载 .env 文件 (如果存在)，忽略错误，允许只使用环境变量
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort: os.Getenv("SERVER_PORT"),
		LogLevel:   os.Getenv("LOG_LEVEL"),
		AppEnv:     os.Getenv("APP_ENV"),
		CORSOrigin: os.Getenv("CORS_ALLOWED_ORIGIN"),
		// --- 默认值 ---
		RoomIDLength:    8,
		ReapAfter:       5 * time.Minute,
		SweepInterval:   1 * time.Minute,
		RateLimitMax:    100,
		RateLimitWindow: 1 * time.Second,
	}

	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "http://localhost:3000" // 开发默认
	}

	if v := os.Getenv("ROOM_ID_LENGTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid ROOM_ID_LENGTH %q", v)
		}
		cfg.RoomIDLength = n
	}
	if v := os.Getenv("ROOM_REAP_AFTER"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid ROOM_REAP_AFTER %q", v)
		}
		cfg.ReapAfter = d
	}
	if v := os.Getenv("REAP_SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid REAP_SWEEP_INTERVAL %q", v)
		}
		cfg.SweepInterval = d
	}
	if v := os.Getenv("RATE_LIMIT_MAX"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid RATE_LIMIT_MAX %q", v)
		}
		cfg.RateLimitMax = n
	}
	if v := os.Getenv("RATE_LIMIT_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid RATE_LIMIT_WINDOW %q", v)
		}
		cfg.RateLimitWindow = d
	}

	// 验证日志级别
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}

	return cfg, nil
}
