package main

import (
	"fmt"

	"devstream/internal/core/domain"
	"devstream/internal/core/services"
	"devstream/pkg/config"
	"devstream/pkg/validation"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newTokenCmd mints a signed token against the configured secret, for
// local testing of roles and moderation.
func newTokenCmd() *cobra.Command {
	var (
		id       string
		username string
		role     string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development JWT",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id is required")
			}
			if !domain.Role(role).Valid() {
				return fmt.Errorf("unknown role %q", role)
			}
			if username != "" {
				if err := validation.ValidateUsername(username); err != nil {
					return err
				}
			}

			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}

			auth := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, zap.NewNop().Sugar())
			token, err := auth.GenerateToken(id, username, domain.Role(role))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "user id carried in the token")
	cmd.Flags().StringVar(&username, "username", "", "display name (letters, digits, _ and -)")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleUser), "role: user, vip, moderator, broadcaster, administrator, admin or bot")
	return cmd
}
