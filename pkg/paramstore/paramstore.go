// Package paramstore reads secrets from AWS Systems Manager Parameter Store.
package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// API is the part of *ssm.Client the store uses.
type API interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Getter fetches a decrypted parameter value by name.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Client wraps the SSM API.
type Client struct {
	api API
}

// New creates a Client.
func New(api API) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api}, nil
}

// NewFromConfig creates a Client backed by the SSM service.
func NewFromConfig(cfg aws.Config) *Client {
	return &Client{api: ssm.NewFromConfig(cfg)}
}

// GetParameter returns the value of name, decrypting SecureStrings.
func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("paramstore: parameter %q missing value", name)
	}
	return *out.Parameter.Value, nil
}

// Overlay replaces *dst with the value of name. An empty name leaves dst alone.
func Overlay(ctx context.Context, g Getter, name string, dst *string) error {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	v, err := g.GetParameter(ctx, name)
	if err != nil {
		return err
	}
	if v == "" {
		return fmt.Errorf("paramstore: parameter %q is empty", name)
	}
	*dst = v
	return nil
}
