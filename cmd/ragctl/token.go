package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"gopherai-kbqa/internal/config"
	"gopherai-kbqa/internal/pkg/jwtutil"
)

func tokenCMD() *cobra.Command {
	var subject string
	var role string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed token for the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = time.Duration(cfg.Auth.JWTExpireMinute) * time.Minute
			}
			token, err := jwtutil.GenerateToken(cfg.Auth.JWTSecret, subject, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "ops", "token subject")
	cmd.Flags().StringVar(&role, "role", jwtutil.RoleAdmin, "role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (0 = configured default)")
	return cmd
}
