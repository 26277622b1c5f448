package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/creatorpay/tracker/internal/models"
	"github.com/creatorpay/tracker/internal/money"
	"github.com/creatorpay/tracker/internal/payments"
	"github.com/creatorpay/tracker/internal/resolver"
)

func newResolveCommand(env *Env, root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <url>",
		Short: "Resolve a TikTok link to its canonical video id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := env.Resolver.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printer{root.Format, cmd.OutOrStdout()}.print(ref, func(w io.Writer) {
				fprintf(w, "video id:  %s\n", ref.CanonicalID)
				fprintf(w, "resolved:  %t\n", ref.Resolved)
				if ref.Username != "" {
					fprintf(w, "username:  @%s\n", ref.Username)
				}
			})
		},
	}
}

func newLookupCommand(env *Env, root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <id|url>",
		Short: "Show the payment recorded for a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := env.OpenStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			id := args[0]
			if ref, ok := resolver.Parse(id); ok {
				id = ref.CanonicalID
			}
			p, err := store.Lookup(cmd.Context(), id)
			if errors.Is(err, payments.ErrNotFound) {
				return fmt.Errorf("no payment recorded for %s", models.DisplayVideoID(id))
			}
			if err != nil {
				return err
			}
			return printer{root.Format, cmd.OutOrStdout()}.print(p, func(w io.Writer) {
				fprintf(w, "video id:  %s\n", models.DisplayVideoID(p.VideoID))
				fprintf(w, "creator:   %s\n", p.CreatorName)
				fprintf(w, "amount:    %s\n", money.Format(p.Amount, p.Currency))
				fprintf(w, "date:      %s\n", p.SubmittedAt.UTC().Format("2006-01-02"))
				if p.Notes != "" {
					fprintf(w, "notes:     %s\n", p.Notes)
				}
			})
		},
	}
}

type exportOptions struct {
	out     string
	creator string
	since   string
	until   string
}

func newExportCommand(env *Env, root *RootOptions) *cobra.Command {
	opts := &exportOptions{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write payments as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := models.ListFilter{Creator: opts.creator}
			var err error
			if filter.Since, err = parseDay(opts.since); err != nil {
				return fmt.Errorf("invalid --since: %w", err)
			}
			if filter.Until, err = parseDay(opts.until); err != nil {
				return fmt.Errorf("invalid --until: %w", err)
			}
			if !filter.Until.IsZero() {
				filter.Until = filter.Until.AddDate(0, 0, 1)
			}
			return runExport(cmd.Context(), env, filter, opts.out, cmd.OutOrStdout(), root.Format)
		},
	}
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&opts.creator, "creator", "", "only this creator")
	cmd.Flags().StringVar(&opts.since, "since", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&opts.until, "until", "", "last day, YYYY-MM-DD")
	return cmd
}

func runExport(ctx context.Context, env *Env, filter models.ListFilter, out string, stdout io.Writer, format string) error {
	store, closeStore, err := env.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	list, err := store.List(ctx, filter)
	if err != nil {
		return err
	}
	if out == "" {
		return payments.WriteCSV(stdout, list)
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	if err := payments.WriteCSV(f, list); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", out, err)
	}
	summary := map[string]any{"file": out, "payments": len(list)}
	return printer{format, stdout}.print(summary, func(w io.Writer) {
		fprintf(w, "✓ Exported %d payment(s) to %s\n", len(list), out)
	})
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}

func newMigrateCommand(env *Env, root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if env.Migrate == nil {
				return errors.New("migrate is only available for the postgres backend")
			}
			if err := env.Migrate(cmd.Context()); err != nil {
				return err
			}
			return printer{root.Format, cmd.OutOrStdout()}.print(map[string]bool{"migrated": true}, func(w io.Writer) {
				fprintf(w, "✓ Schema is up to date\n")
			})
		},
	}
}
