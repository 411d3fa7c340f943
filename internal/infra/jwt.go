// README: HS256 token manager; an alternative TokenVerifier for local and simulator deployments.
package infra

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"foodtrack/internal/types"
)

var ErrInvalidSigningAlgo = errors.New("unexpected signing method")

type Claims struct {
	Role types.Role `json:"role"`
	jwtlib.RegisteredClaims
}

type JWTManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewJWTManager(secret string, ttl time.Duration) (*JWTManager, error) {
	s := strings.TrimSpace(secret)
	if s == "" {
		return nil, errors.New("jwt: empty secret key")
	}
	return &JWTManager{secret: []byte(s), ttl: ttl, now: time.Now}, nil
}

// Issue signs an access token for uid with the given role.
func (m *JWTManager) Issue(uid string, role types.Role) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("invalid role: %s", role)
	}
	now := m.now().UTC()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   uid,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(m.ttl)),
		},
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(m.secret)
}

// VerifyIDToken makes JWTManager a TokenVerifier.
func (m *JWTManager) VerifyIDToken(_ context.Context, raw string) (*VerifiedToken, error) {
	parser := jwtlib.NewParser(
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithTimeFunc(m.now),
	)
	claims := &Claims{}
	token, err := parser.ParseWithClaims(raw, claims, func(t *jwtlib.Token) (any, error) {
		if t.Method != jwtlib.SigningMethodHS256 {
			return nil, ErrInvalidSigningAlgo
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	return &VerifiedToken{
		UID:    claims.Subject,
		Claims: map[string]interface{}{"role": string(claims.Role)},
	}, nil
}
