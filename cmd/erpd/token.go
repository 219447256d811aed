package main

import (
	"fmt"
	"time"

	"github.com/buildcore/erp-core/internal/config"
	"github.com/buildcore/erp-core/internal/tokens"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	c := &cobra.Command{
		Use:   "token",
		Short: "Issue an HS256 service token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.JWT.ServiceTokenTTL
			}
			tok, err := tokens.GenerateServiceToken(cfg.JWT.Secret, cfg.JWT.Issuer, subject, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	c.Flags().StringVar(&subject, "subject", "erpd-cli", "token subject (sub claim)")
	c.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime; defaults to JWT_SERVICE_TOKEN_TTL")
	c.AddCommand(revokeCmd())
	return c
}

func revokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke TOKEN",
		Short: "Deny a service token until it expires (needs REDIS_HOST)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if !cfg.Redis.Enabled() {
				return fmt.Errorf("token revoke: REDIS_HOST is not set")
			}
			rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
			defer rdb.Close()

			v, err := tokens.NewVerifier(cfg.JWT.Secret, cfg.JWT.Issuer)
			if err != nil {
				return err
			}
			jti, err := v.WithRevocations(tokens.NewRevocations(rdb)).Revoke(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", jti)
			return err
		},
	}
}
