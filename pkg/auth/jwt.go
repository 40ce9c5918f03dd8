package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mahaj/chat-relay/pkg/model"
)

var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrMissingToken  = fmt.Errorf("%w: no token provided", ErrUnauthorized)
	ErrInvalidToken  = fmt.Errorf("%w: invalid token", ErrUnauthorized)
	ErrExpiredToken  = fmt.Errorf("%w: token expired", ErrUnauthorized)
	ErrMissingClaims = fmt.Errorf("%w: required claims missing", ErrUnauthorized)
	ErrEmptySecret   = errors.New("jwt secret must not be empty")
)

var validMethods = []string{
	jwt.SigningMethodHS256.Alg(),
	jwt.SigningMethodHS384.Alg(),
	jwt.SigningMethodHS512.Alg(),
}

type Claims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier checks tokens against a secret fixed at construction.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(secret []byte) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &Verifier{
		secret: key,
		parser: jwt.NewParser(jwt.WithValidMethods(validMethods)),
	}, nil
}

// Verify validates signature and expiry and returns the identity carried by
// the token. Tokens without an exp claim do not expire.
func (v *Verifier) Verify(tokenString string) (model.Identity, error) {
	if tokenString == "" {
		return model.Identity{}, ErrMissingToken
	}

	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return model.Identity{}, ErrExpiredToken
	case err != nil:
		return model.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	case !token.Valid:
		return model.Identity{}, ErrInvalidToken
	}

	if claims.UserID == "" || claims.Email == "" {
		return model.Identity{}, ErrMissingClaims
	}

	return model.Identity{ID: claims.UserID, Email: claims.Email}, nil
}

// GenerateToken signs an HS256 token for id. A zero ttl yields a token
// without expiry.
func GenerateToken(secret []byte, id model.Identity, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", ErrEmptySecret
	}
	now := time.Now()
	claims := &Claims{
		UserID: id.ID,
		Email:  id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
