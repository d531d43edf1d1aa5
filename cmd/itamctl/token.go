package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"itam-api/internal/auth"
	"itam-api/internal/config"
	"itam-api/internal/models"
)

type tokenOptions struct {
	userID   int64
	orgID    int64
	roles    string
	expiry   time.Duration
	secret   string
	issuer   string
	audience string
}

func newTokenCmd() *cobra.Command {
	opts := &tokenOptions{}
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed JWT for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := mintToken(config.Load(), opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	f := cmd.Flags()
	f.Int64Var(&opts.userID, "user", 1, "user ID")
	f.Int64Var(&opts.orgID, "org", 1, "organization ID")
	f.StringVar(&opts.roles, "roles", models.RoleOrgAdmin, "comma-separated roles")
	f.DurationVar(&opts.expiry, "expiry", 24*time.Hour, "token lifetime")
	f.StringVar(&opts.secret, "secret", "", "signing secret (overrides JWT_SECRET)")
	f.StringVar(&opts.issuer, "issuer", "", "issuer (overrides JWT_ISS)")
	f.StringVar(&opts.audience, "audience", "", "audience (overrides JWT_AUD)")
	return cmd
}

func mintToken(cfg *config.Config, opts *tokenOptions) (string, error) {
	if opts.secret != "" {
		cfg.JWTSecret = opts.secret
	}
	if opts.issuer != "" {
		cfg.JWTIssuer = opts.issuer
	}
	if opts.audience != "" {
		cfg.JWTAudience = opts.audience
	}

	var roles []string
	for _, r := range strings.Split(opts.roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	if !models.ValidateRoles(roles) {
		return "", fmt.Errorf("invalid roles %q: allowed are %s", opts.roles, strings.Join(models.ValidRoles, ", "))
	}

	m := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, opts.expiry)
	if err := m.ValidateConfig(); err != nil {
		return "", err
	}
	return m.GenerateToken(opts.userID, opts.orgID, roles)
}
