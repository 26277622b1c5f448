// Package main runs the payment tracker: chat websocket, conversation engine and HTTP API.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/creatorpay/tracker/config"
	"github.com/creatorpay/tracker/internal/auth"
	"github.com/creatorpay/tracker/internal/chat"
	"github.com/creatorpay/tracker/internal/conversation"
	"github.com/creatorpay/tracker/internal/guard"
	"github.com/creatorpay/tracker/internal/middleware"
	"github.com/creatorpay/tracker/internal/models"
	"github.com/creatorpay/tracker/internal/payments"
	"github.com/creatorpay/tracker/internal/reports"
	"github.com/creatorpay/tracker/internal/resolver"
	"github.com/creatorpay/tracker/internal/session"
	"github.com/creatorpay/tracker/pkg/awsconfig"
	"github.com/creatorpay/tracker/pkg/paramstore"
	"github.com/creatorpay/tracker/pkg/queue"
	"github.com/creatorpay/tracker/pkg/redis"
	"github.com/creatorpay/tracker/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	if err := loadSecrets(ctx, cfg, logger); err != nil {
		logger.Fatal("load secrets", zap.Error(err))
	}

	store, closeStore, err := payments.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("payment store", zap.Error(err))
	}
	defer closeStore()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	ids, err := snowflake.NewNode(cfg.Chat.NodeID)
	if err != nil {
		logger.Fatal("snowflake node", zap.Error(err))
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	directory, err := auth.NewDirectory(cfg.Operators)
	if err != nil {
		logger.Fatal("operators", zap.Error(err))
	}
	if directory.Len() == 0 {
		logger.Warn("no operators configured: HTTP API logins will fail")
	}
	authHandler := auth.NewHandler(directory, jwtService, logger)

	// Chat transport
	redisPubSub := chat.NewRedisPubSub(rdb.Client, cfg.Chat.PubSubChannel, logger)
	hub := chat.NewHub(logger, ids, cfg.Chat.BotUserID, redisPubSub, redisPubSub)

	// Conversation engine
	jobQueue := queue.NewQueue(rdb.Client, logger)
	sessions := session.NewRegistry(cfg.Bot.MaxSessions)
	reportSvc := reports.NewService(store)
	engine, err := conversation.NewEngine(conversation.Deps{
		Messenger: hub,
		Resolver: resolver.New(
			resolver.WithTimeout(cfg.Bot.ResolveTimeout()),
			resolver.WithLogger(logger),
		),
		Guard:    guard.New(store, logger),
		Store:    store,
		Reports:  reportSvc,
		Jobs:     jobQueue,
		Sessions: sessions,
		Logger:   logger,
	}, conversation.OptionsFromConfig(cfg.Bot))
	if err != nil {
		logger.Fatal("conversation engine", zap.Error(err))
	}

	paymentHandler := payments.NewHandler(store, logger)
	reportHandler := reports.NewHandler(reportSvc, sessions, jobQueue, logger)

	jwtValidate := func(token string) (userID, role string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", "", err
		}
		return claims.Operator(), claims.Role, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	router.POST("/auth/login", authHandler.Login)

	// Protected API (JWT required)
	admin := string(models.RoleAdmin)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/payments", paymentHandler.List)
		api.GET("/payments/:videoId", paymentHandler.Get)
		api.PATCH("/payments/:videoId", paymentHandler.Update)
		api.DELETE("/payments/:videoId", middleware.RequireRole(admin), paymentHandler.Delete)

		api.GET("/stats", reportHandler.Stats)
		api.GET("/stats/monthly", reportHandler.Monthly)
		api.GET("/creators/:name", reportHandler.Creator)
		api.POST("/exports", reportHandler.Export)

		api.GET("/sessions", middleware.RequireRole(admin), reportHandler.Sessions)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", chat.ServeWs(hub, logger, jwtValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	botCtx, botCancel := context.WithCancel(context.Background())
	defer botCancel()
	go hub.Run(botCtx)
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := engine.Run(botCtx, hub.Events()); err != nil && botCtx.Err() == nil {
			logger.Error("conversation engine stopped", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("store", cfg.Store.Backend))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	botCancel()
	select {
	case <-engineDone:
	case <-shutdownCtx.Done():
		logger.Warn("conversation engine did not stop in time")
	}
	logger.Info("server stopped", zap.Int("open_sessions", sessions.Len()))
}

// loadSecrets replaces the JWT secret with its Parameter Store value when JWT_SECRET_PARAM is set.
func loadSecrets(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.JWT.SecretParam == "" {
		return nil
	}
	awsCfg, err := awsconfig.Load(ctx, awsconfig.Options{
		Region:          cfg.AWS.Region,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
	}, logger)
	if err != nil {
		return err
	}
	if err := paramstore.Overlay(ctx, paramstore.NewFromConfig(awsCfg), cfg.JWT.SecretParam, &cfg.JWT.Secret); err != nil {
		return err
	}
	logger.Info("JWT secret loaded from parameter store", zap.String("param", cfg.JWT.SecretParam))
	return nil
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
