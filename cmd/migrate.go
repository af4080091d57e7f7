package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cameroncuttingedge/tictactoe-arena/config"
	"github.com/cameroncuttingedge/tictactoe-arena/logging"
	"github.com/cameroncuttingedge/tictactoe-arena/store/migrations"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|version]",
	Short:     "Manage the Postgres game history schema",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down", "version"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if cfg.Postgres.URL == "" {
			return errors.New("postgres.url is required (TTT_POSTGRES_URL)")
		}
		logger, closer, err := logging.Setup(cfg.Log)
		if err != nil {
			return err
		}
		defer closer.Close()

		m, err := migrations.New(cfg.Postgres.URL, logger)
		if err != nil {
			return err
		}
		defer m.Close()

		switch args[0] {
		case "up":
			return m.Up()
		case "down":
			return m.Down()
		default:
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
