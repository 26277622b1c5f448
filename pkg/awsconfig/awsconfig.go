// Package awsconfig builds the shared AWS SDK configuration.
package awsconfig

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"go.uber.org/zap"
)

// Options holds the region and optional static credentials.
type Options struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// Load returns an AWS config using static credentials when given (or set in
// AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY), otherwise the default chain.
func Load(ctx context.Context, opts Options, logger *zap.Logger) (aws.Config, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	accessKey := opts.AccessKeyID
	secretKey := opts.SecretAccessKey
	if accessKey == "" || secretKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}
	if accessKey != "" && secretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey, secretKey, "",
		)))
		logger.Info("AWS client using static credentials", zap.String("region", opts.Region))
	} else {
		logger.Info("AWS client using default credential chain", zap.String("region", opts.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}
