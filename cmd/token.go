package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cameroncuttingedge/tictactoe-arena/auth"
	"github.com/cameroncuttingedge/tictactoe-arena/config"
)

var (
	tokenUser string
	tokenName string
	tokenTTL  time.Duration
)

// tokenCmd mints handshake tokens for local testing.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a signed handshake token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if cfg.Auth.JWTSecret == "" {
			return errors.New("auth.jwtSecret is required (TTT_AUTH_JWTSECRET)")
		}
		ttl := tokenTTL
		if ttl <= 0 {
			ttl = cfg.Auth.TokenTTL
		}
		name := tokenName
		if name == "" {
			name = tokenUser
		}

		token, err := auth.Issue(cfg.Auth.JWTSecret, tokenUser, name, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id placed in the token")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "display name (defaults to --user)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (defaults to auth.tokenTTL)")
	_ = tokenCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(tokenCmd)
}
