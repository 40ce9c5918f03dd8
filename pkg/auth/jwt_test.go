package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mahaj/chat-relay/pkg/model"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret-for-relay")

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestVerify_ValidToken(t *testing.T) {
	req := require.New(t)
	v, err := NewVerifier(secret)
	req.NoError(err)

	alice := model.Identity{ID: "u-1", Email: "alice@example.com"}
	token, err := GenerateToken(secret, alice, time.Hour)
	req.NoError(err)

	got, err := v.Verify(token)
	req.NoError(err)
	req.Equal(alice, got)
}

func TestVerify_NoExpiry(t *testing.T) {
	req := require.New(t)
	v, err := NewVerifier(secret)
	req.NoError(err)

	token, err := GenerateToken(secret, model.Identity{ID: "u-2", Email: "b@example.com"}, 0)
	req.NoError(err)

	got, err := v.Verify(token)
	req.NoError(err)
	req.Equal("u-2", got.ID)
}

func TestVerify_Rejections(t *testing.T) {
	v, err := NewVerifier(secret)
	require.NoError(t, err)

	expired, err := GenerateToken(secret, model.Identity{ID: "u", Email: "e@x"}, -time.Minute)
	require.NoError(t, err)
	otherKey, err := GenerateToken([]byte("another-secret"), model.Identity{ID: "u", Email: "e@x"}, time.Hour)
	require.NoError(t, err)
	noEmail := sign(t, jwt.SigningMethodHS256, secret, &Claims{UserID: "u"})
	noID := sign(t, jwt.SigningMethodHS256, secret, &Claims{Email: "e@x"})
	none := sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, &Claims{UserID: "u", Email: "e@x"})

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"missing", "", ErrMissingToken},
		{"garbage", "not-a-jwt", ErrInvalidToken},
		{"expired", expired, ErrExpiredToken},
		{"wrong signature", otherKey, ErrInvalidToken},
		{"missing email", noEmail, ErrMissingClaims},
		{"missing id", noID, ErrMissingClaims},
		{"alg none", none, ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			id, err := v.Verify(tt.token)
			req.ErrorIs(err, tt.want)
			req.ErrorIs(err, ErrUnauthorized)
			req.Zero(id)
		})
	}
}

func TestNewVerifier_EmptySecret(t *testing.T) {
	_, err := NewVerifier(nil)
	require.ErrorIs(t, err, ErrEmptySecret)
}

func TestMiddleware(t *testing.T) {
	v, err := NewVerifier(secret)
	require.NoError(t, err)
	token, err := GenerateToken(secret, model.Identity{ID: "u-9", Email: "z@example.com"}, time.Hour)
	require.NoError(t, err)

	h := Middleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(id.ID))
	}))

	t.Run("bearer header", func(t *testing.T) {
		req := require.New(t)
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		req.Equal(http.StatusOK, w.Code)
		req.Equal("u-9", w.Body.String())
	})

	t.Run("query parameter", func(t *testing.T) {
		req := require.New(t)
		r := httptest.NewRequest(http.MethodGet, "/?token="+token, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		req.Equal(http.StatusOK, w.Code)
	})

	t.Run("no token", func(t *testing.T) {
		req := require.New(t)
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		req.Equal(http.StatusUnauthorized, w.Code)
	})
}
