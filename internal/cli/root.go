// Package cli implements trackerctl, the operator command line.
package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/creatorpay/tracker/config"
	"github.com/creatorpay/tracker/internal/models"
	"github.com/creatorpay/tracker/internal/payments"
)

// ValidFormats are the accepted values of --format.
var ValidFormats = []string{"text", "json"}

// Resolver turns a link into a video reference.
type Resolver interface {
	Resolve(ctx context.Context, text string) (models.VideoReference, error)
}

// Env supplies the collaborators commands need. Tests swap them for fakes.
type Env struct {
	Config    *config.Config
	OpenStore func(ctx context.Context) (payments.Store, func(), error)
	Migrate   func(ctx context.Context) error
	Resolver  Resolver
}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string
}

// NewRootCommand creates the trackerctl root command.
func NewRootCommand(env *Env) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "trackerctl",
		Short:         "Operate the TikTok payment tracker",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newResolveCommand(env, opts))
	cmd.AddCommand(newLookupCommand(env, opts))
	cmd.AddCommand(newExportCommand(env, opts))
	cmd.AddCommand(newMigrateCommand(env, opts))
	cmd.AddCommand(newHashPasswordCommand(opts))
	cmd.AddCommand(newTokenCommand(env, opts))
	return cmd
}
