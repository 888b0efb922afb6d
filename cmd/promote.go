package main

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/greenshop/internal/model"
	"github.com/sells-group/greenshop/internal/store"
)

var promoteEmail string

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Grant the admin role to a registered user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initApp(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		u, err := promoteUser(cmd.Context(), env.Store, promoteEmail)
		if err != nil {
			return err
		}
		zap.L().Info("user promoted to admin",
			zap.String("user_id", u.ID),
			zap.String("email", u.Email),
		)
		return nil
	},
}

func promoteUser(ctx context.Context, st store.Store, email string) (*model.User, error) {
	u, err := st.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, eris.Wrap(err, "promote")
	}
	if u.Role == model.RoleAdmin {
		return u, nil
	}
	u.Role = model.RoleAdmin
	if err := st.UpdateUser(ctx, u); err != nil {
		return nil, eris.Wrap(err, "promote")
	}
	return u, nil
}

func init() {
	promoteCmd.Flags().StringVar(&promoteEmail, "email", "", "email of the user to promote (required)")
	_ = promoteCmd.MarkFlagRequired("email")
	rootCmd.AddCommand(promoteCmd)
}
