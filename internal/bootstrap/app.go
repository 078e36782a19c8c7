package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	// --- 内部包 ---
	httpHandler "whiteboard-relay/internal/handler/http"
	wsHandler "whiteboard-relay/internal/handler/websocket"
	"whiteboard-relay/internal/hub"
	"whiteboard-relay/internal/middleware"
	"whiteboard-relay/internal/reaper"
	"whiteboard-relay/internal/room"
)

// App 包含应用的所有组件和配置。
type App struct {
	Config     *Config
	Log        *logrus.Logger
	Registry   *room.Registry
	Hub        *hub.Hub
	Reaper     *reaper.Scheduler
	HttpServer *http.Server
}

// NewApp 创建并初始化应用的所有组件。
func NewApp() (*App, error) {
	// 1. 加载配置
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	// 2. 初始化 Logger
	log := logrus.StandardLogger()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel) // cfg.LogLevel 已被 LoadConfig 验证
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
	log.Infof("Logger initialized (Level: %s)", logLevel.String())

	// 3. 初始化核心组件：注册表 -> 回收器 -> Hub
	router := hub.NewRouter()
	registry := room.NewRegistry(router, cfg.RoomIDLength)
	reapScheduler := reaper.NewScheduler(registry, cfg.ReapAfter, cfg.SweepInterval)
	hubInstance := hub.NewHub(registry, reapScheduler)
	log.Info("Core components initialized")

	// 4. 初始化 Handlers
	roomHandler := httpHandler.NewRoomHandler(registry)
	websocketHandler := wsHandler.NewHandler(hubInstance)

	// 5. 初始化 Gin Engine 和路由
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(LoggerMiddleware(log))
	engine.Use(corsMiddleware(cfg.CORSOrigin))
	engine.Use(middleware.RateLimit(cfg.RateLimitMax, cfg.RateLimitWindow))

	api := engine.Group("/api")
	{
		api.POST("/rooms", roomHandler.CreateRoom)
	}
	engine.GET("/ws", websocketHandler.HandleConnection)
	engine.GET("/healthz", roomHandler.Health)
	log.Info("Router setup complete")

	// 6. 初始化 HTTP Server
	httpServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: engine,
	}

	return &App{
		Config:     cfg,
		Log:        log,
		Registry:   registry,
		Hub:        hubInstance,
		Reaper:     reapScheduler,
		HttpServer: httpServer,
	}, nil
}

// Start 启动后台 goroutine 和 HTTP 服务器。
func (a *App) Start() {
	go a.Reaper.Run()
	a.Log.Info("Reaper scheduler routine started")

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

// Shutdown 优雅地关闭应用。
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	// 1. 停止回收器
	if a.Reaper != nil {
		a.Reaper.Stop()
	}

	// 2. 优雅关闭 HTTP 服务器（同时终止升级入口，存量连接随进程退出）
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	a.Log.Info("Application shutdown complete.")
}

// corsMiddleware 设置跨域响应头。
func corsMiddleware(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Requested-With")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志。
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})

		if statusCode >= 500 {
			entry.Error("Server error")
		} else if statusCode >= 400 {
			entry.Warn("Client error")
		} else {
			entry.Info("Request handled")
		}
	}
}
