package cli

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/creatorpay/tracker/internal/auth"
	"github.com/creatorpay/tracker/internal/models"
	"github.com/creatorpay/tracker/pkg/utils"
)

func newHashPasswordCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Hash a password for the OPERATORS setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := utils.HashPassword(args[0])
			if err != nil {
				return err
			}
			return printer{root.Format, cmd.OutOrStdout()}.print(map[string]string{"hash": hash}, func(w io.Writer) {
				fprintf(w, "%s\n", hash)
			})
		},
	}
}

func newTokenCommand(env *Env, root *RootOptions) *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "token <operator>",
		Short: "Issue an API token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if r := models.Role(role); r != models.RoleAdmin && r != models.RoleOperator {
				return errors.New("--role must be admin or operator")
			}
			svc := auth.NewJWTService(env.Config.JWT.Secret, env.Config.JWT.ExpireHours)
			token, err := svc.Generate(args[0], role)
			if err != nil {
				return err
			}
			return printer{root.Format, cmd.OutOrStdout()}.print(map[string]string{"token": token, "role": role}, func(w io.Writer) {
				fprintf(w, "%s\n", token)
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", string(models.RoleOperator), "admin or operator")
	return cmd
}
