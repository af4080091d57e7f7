// Package cmd holds the tictactoe-arena command line.
package cmd

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "tictactoe-arena",
	Short: "Real-time multiplayer tic-tac-toe server",
	Long: `tictactoe-arena hosts tic-tac-toe rooms over WebSocket. Players create
public or private rooms, join by id or join code, play, watch and rematch.

Settings come from an optional YAML file and TTT_* environment variables.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (YAML)")
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}
