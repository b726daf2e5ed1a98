package refundd

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func authStatus(t *testing.T, auth *Authenticator, header string) int {
	t.Helper()
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPost, "/jobs/refunds", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestAuthenticatorBearerToken(t *testing.T) {
	auth, err := NewAuthenticator(AuthConfig{BearerToken: "operator"}, nil)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, authStatus(t, auth, "Bearer operator"))
	require.Equal(t, http.StatusOK, authStatus(t, auth, "bearer operator"))
	require.Equal(t, http.StatusUnauthorized, authStatus(t, auth, "Bearer intruder"))
	require.Equal(t, http.StatusUnauthorized, authStatus(t, auth, "operator"))
	require.Equal(t, http.StatusUnauthorized, authStatus(t, auth, ""))
}

func TestAuthenticatorJWT(t *testing.T) {
	const secret = "jwt-secret"
	auth, err := NewAuthenticator(AuthConfig{JWTSecret: secret, JWTIssuer: "refundkeeper"}, nil)
	require.NoError(t, err)

	valid := signToken(t, secret, jwt.MapClaims{
		"iss": "refundkeeper",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	require.Equal(t, http.StatusOK, authStatus(t, auth, "Bearer "+valid))

	expired := signToken(t, secret, jwt.MapClaims{
		"iss": "refundkeeper",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	require.Equal(t, http.StatusUnauthorized, authStatus(t, auth, "Bearer "+expired))

	wrongIssuer := signToken(t, secret, jwt.MapClaims{
		"iss": "someone-else",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	require.Equal(t, http.StatusUnauthorized, authStatus(t, auth, "Bearer "+wrongIssuer))

	noExpiry := signToken(t, secret, jwt.MapClaims{"iss": "refundkeeper"})
	require.Equal(t, http.StatusUnauthorized, authStatus(t, auth, "Bearer "+noExpiry))

	wrongKey := signToken(t, "other", jwt.MapClaims{
		"iss": "refundkeeper",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	require.Equal(t, http.StatusUnauthorized, authStatus(t, auth, "Bearer "+wrongKey))
}

func TestNewAuthenticatorRequiresMechanism(t *testing.T) {
	_, err := NewAuthenticator(AuthConfig{}, nil)
	require.Error(t, err)
}
