package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/simp-lee/advocatedir/internal/config"
	"github.com/simp-lee/advocatedir/internal/middleware"
)

func newTokenCmd() *cobra.Command {
	var (
		configPath string
		secret     string
		issuer     string
		subject    string
		ttl        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin bearer token",
		Long: `Token signs an admin JWT with the server's secret. The secret and issuer
are read from --config when given; --secret and --issuer override them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				cfg, err := config.Load(configPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if !cmd.Flags().Changed("secret") {
					secret = cfg.Auth.JWTSecret
				}
				if !cmd.Flags().Changed("issuer") {
					issuer = cfg.Auth.Issuer
				}
				if !cmd.Flags().Changed("ttl") {
					ttl = cfg.Auth.TokenTTL()
				}
			}
			if secret == "" {
				return errors.New("a signing secret is required: pass --secret or --config")
			}
			if ttl <= 0 {
				return errors.New("--ttl must be positive")
			}

			tok, err := middleware.MintToken(secret, issuer, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "server config file to read auth settings from")
	cmd.Flags().StringVar(&secret, "secret", "", "HMAC signing secret")
	cmd.Flags().StringVar(&issuer, "issuer", "advocatedir", "token issuer")
	cmd.Flags().StringVar(&subject, "subject", "advocatectl", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
