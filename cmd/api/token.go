package main

import (
	"fmt"
	"time"

	"treeadopt/internal/auth"
	"treeadopt/internal/config"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			id := uuid.New()
			if subject != "" {
				if id, err = uuid.Parse(subject); err != nil {
					return fmt.Errorf("invalid --subject: %w", err)
				}
			}

			token, err := auth.Issue(auth.Principal{ID: id, Role: auth.Role(role)}, cfg.Auth.JWTSecret, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Principal ID (random when empty)")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleBuyer), "Role: buyer, wellwisher or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
