package auth_test

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cameroncuttingedge/tictactoe-arena/auth"
)

const secret = "test-secret"

func TestIssueAndVerify(t *testing.T) {
	v, err := auth.NewVerifier(secret)
	require.NoError(t, err)

	token, err := auth.Issue(secret, "u1", "alice", time.Hour)
	require.NoError(t, err)

	id, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.Equal(t, "alice", id.Username)
	assert.NotEmpty(t, id.ConnectionID)

	again, err := v.Verify(token)
	require.NoError(t, err)
	assert.NotEqual(t, id.ConnectionID, again.ConnectionID, "each handshake gets its own connection id")
}

func TestVerify_Rejects(t *testing.T) {
	v, err := auth.NewVerifier(secret)
	require.NoError(t, err)

	wrongSecret, err := auth.Issue("other-secret", "u1", "alice", time.Hour)
	require.NoError(t, err)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.Claims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.Claims{Username: "ghost"}).SignedString([]byte(secret))
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &auth.Claims{UserID: "u1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "not-a-jwt"},
		{name: "wrong secret", token: wrongSecret},
		{name: "expired", token: expired},
		{name: "missing user id", token: noUser},
		{name: "alg none", token: unsigned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
		})
	}
}

func TestNewVerifier_RequiresSecret(t *testing.T) {
	_, err := auth.NewVerifier("")
	assert.Error(t, err)

	_, err = auth.Issue("", "u1", "", 0)
	assert.Error(t, err)
	_, err = auth.Issue(secret, "", "", 0)
	assert.Error(t, err)
}

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		query  string
		want   string
	}{
		{name: "token header", header: map[string]string{"token": "a"}, want: "a"},
		{name: "bearer", header: map[string]string{"Authorization": "Bearer b"}, want: "b"},
		{name: "query", query: "?token=c", want: "c"},
		{name: "header wins over query", header: map[string]string{"token": "a"}, query: "?token=c", want: "a"},
		{name: "non-bearer authorization ignored", header: map[string]string{"Authorization": "Basic xyz"}, want: ""},
		{name: "nothing", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws"+tt.query, nil)
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, auth.TokenFromRequest(r))
		})
	}
}
