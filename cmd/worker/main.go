// Package main runs the background job worker (CSV exports, payment announcements).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/creatorpay/tracker/config"
	"github.com/creatorpay/tracker/internal/chat"
	"github.com/creatorpay/tracker/internal/payments"
	"github.com/creatorpay/tracker/internal/worker"
	"github.com/creatorpay/tracker/pkg/queue"
	"github.com/creatorpay/tracker/pkg/redis"
	"github.com/creatorpay/tracker/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
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

	// Worker ids must not collide with the server's message ids.
	ids, err := snowflake.NewNode(cfg.Chat.NodeID + 1)
	if err != nil {
		logger.Fatal("snowflake node", zap.Error(err))
	}
	publisher := chat.NewPublisher(chat.NewRedisPubSub(rdb.Client, cfg.Chat.PubSubChannel, logger), ids, cfg.Chat.BotUserID)

	var objects worker.ObjectStore
	if cfg.AWS.ExportsBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ExportsBucket:        cfg.AWS.ExportsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			objects = s3Client
		}
	}

	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewProcessor(store, objects, publisher, jobQueue, cfg.Chat.LogChannel, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		processor.Run(workerCtx)
	}()
	logger.Info("worker started", zap.Bool("exports", objects != nil), zap.String("log_channel", cfg.Chat.LogChannel))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	<-done
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
