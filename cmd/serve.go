package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cameroncuttingedge/tictactoe-arena/api"
	"github.com/cameroncuttingedge/tictactoe-arena/auth"
	"github.com/cameroncuttingedge/tictactoe-arena/config"
	"github.com/cameroncuttingedge/tictactoe-arena/joincode"
	"github.com/cameroncuttingedge/tictactoe-arena/logging"
	"github.com/cameroncuttingedge/tictactoe-arena/rematch"
	"github.com/cameroncuttingedge/tictactoe-arena/room"
	"github.com/cameroncuttingedge/tictactoe-arena/store"
	"github.com/cameroncuttingedge/tictactoe-arena/websocket"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the game server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		logger, closer, err := logging.Setup(cfg.Log)
		if err != nil {
			return err
		}
		defer closer.Close()

		return serve(cmd.Context(), cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwtSecret is required (TTT_AUTH_JWTSECRET)")
	}
	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}

	mirror, closeMirror, err := openMirror(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeMirror()
	writer := store.NewWriter(mirror, cfg.Store.QueueSize, logger.With().Str("component", "store").Logger())

	codes := joincode.New(joincode.WithLength(cfg.JoinCode.Length))
	registry := room.NewRegistry(codes, room.WithLogger(logger.With().Str("component", "rooms").Logger()))
	coordinator := rematch.NewCoordinator(registry, logger.With().Str("component", "rematch").Logger())

	gateway := websocket.NewGateway(registry, coordinator, verifier, writer, websocket.Options{
		PingInterval:   cfg.WS.PingInterval,
		PongWait:       cfg.WS.PongWait,
		WriteWait:      cfg.WS.WriteWait,
		MaxMessageSize: cfg.WS.MaxMessageSize,
		SendBuffer:     cfg.WS.SendBuffer,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, logger.With().Str("component", "gateway").Logger())

	server := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: api.NewRouter(api.Deps{
			Rooms:          registry,
			Gateway:        gateway,
			Writer:         writer,
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			Logger:         logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTP.Addr).Msg("Server started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownGrace)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown failed")
	}
	gateway.Close()
	registry.Shutdown()
	if err := writer.Close(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Persistence queue not fully drained")
	}

	logger.Info().Msg("Server stopped")
	return nil
}

// openMirror connects the configured persistence backends. With none
// configured, writes go nowhere.
func openMirror(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.Mirror, func(), error) {
	var (
		mirrors store.Multi
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Redis.Addr != "" {
		client, err := store.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, closeWith(logger, "redis", client))
		mirrors = append(mirrors, store.NewRedis(client, cfg.Redis.TTL))
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Redis mirror enabled")
	}

	if cfg.Postgres.URL != "" {
		pg, err := store.OpenPostgres(ctx, cfg.Postgres.URL)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, closeWith(logger, "postgres", pg))
		mirrors = append(mirrors, pg)
		logger.Info().Msg("Postgres history enabled")
	}

	switch len(mirrors) {
	case 0:
		logger.Info().Msg("No persistence configured")
		return store.Nop{}, closeAll, nil
	case 1:
		return mirrors[0], closeAll, nil
	default:
		return mirrors, closeAll, nil
	}
}

type closable interface{ Close() error }

func closeWith(logger zerolog.Logger, name string, c closable) func() {
	return func() {
		if err := c.Close(); err != nil {
			logger.Warn().Err(err).Str("backend", name).Msg("Close failed")
		}
	}
}
