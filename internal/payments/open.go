package payments

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"github.com/creatorpay/tracker/config"
	"github.com/creatorpay/tracker/pkg/awsconfig"
	"github.com/creatorpay/tracker/pkg/database"
)

// Open builds the store selected by cfg.Store.Backend. The returned func releases it.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Store.Backend {
	case "postgres", "":
		pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
		if err != nil {
			return nil, nil, err
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return NewRepository(pool), pool.Close, nil
	case "sqlite":
		s, err := OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("SQLite payment store opened", zap.String("path", cfg.Store.SQLitePath))
		return s, func() { _ = s.Close() }, nil
	case "dynamodb":
		awsCfg, err := awsconfig.Load(ctx, awsconfig.Options{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		s, err := NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.Store.DynamoTable)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("DynamoDB payment store configured", zap.String("table", cfg.Store.DynamoTable))
		return s, func() {}, nil
	case "memory":
		logger.Warn("memory payment store: records are lost on restart")
		return NewMemoryStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
