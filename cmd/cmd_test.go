package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cameroncuttingedge/tictactoe-arena/auth"
	"github.com/cameroncuttingedge/tictactoe-arena/config"
	"github.com/cameroncuttingedge/tictactoe-arena/store"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("TTT_AUTH_JWTSECRET", "cli-secret")

	out, err := run(t, "token", "--user", "u-42", "--name", "Ada")
	require.NoError(t, err)

	v, err := auth.NewVerifier("cli-secret")
	require.NoError(t, err)
	id, err := v.Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "u-42", id.UserID)
	assert.Equal(t, "Ada", id.Username)
}

func TestTokenCommand_RequiresSecret(t *testing.T) {
	t.Setenv("TTT_AUTH_JWTSECRET", "")

	_, err := run(t, "token", "--user", "u-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwtSecret")
}

func TestServe_RequiresSecret(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	err = serve(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwtSecret")
}

func TestOpenMirror(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	t.Run("none", func(t *testing.T) {
		m, closeFn, err := openMirror(context.Background(), cfg, zerolog.Nop())
		require.NoError(t, err)
		defer closeFn()
		assert.IsType(t, store.Nop{}, m)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		withRedis := *cfg
		withRedis.Redis.Addr = mr.Addr()

		m, closeFn, err := openMirror(context.Background(), &withRedis, zerolog.Nop())
		require.NoError(t, err)
		defer closeFn()
		assert.IsType(t, &store.Redis{}, m)
	})

	t.Run("unreachable redis", func(t *testing.T) {
		bad := *cfg
		bad.Redis.Addr = "127.0.0.1:1"

		_, _, err := openMirror(context.Background(), &bad, zerolog.Nop())
		assert.Error(t, err)
	})
}
