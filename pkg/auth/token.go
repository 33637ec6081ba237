package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/circulation-backend/pkg/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const clockLeeway = 30 * time.Second

var signingMethod = jwt.SigningMethodHS256

var (
	ErrTokenExpired    = errors.New("access token expired")
	ErrMemberMissing   = errors.New("access token missing member_card_id")
	ErrSubjectMismatch = errors.New("access token subject does not match member")
)

func requireKeys(cfg config.JWTConfig) error {
	if cfg.Secret == "" {
		return errors.New("jwt secret is required")
	}
	if cfg.Issuer == "" {
		return errors.New("jwt issuer is required")
	}
	return nil
}

// MintAccessToken issues a signed member token valid for ttl from now.
func MintAccessToken(cfg config.JWTConfig, now time.Time, ttl time.Duration, payload AccessTokenPayload) (string, error) {
	if err := requireKeys(cfg); err != nil {
		return "", err
	}
	switch {
	case ttl <= 0:
		return "", errors.New("jwt ttl must be positive")
	case payload.MemberCardID == uuid.Nil:
		return "", ErrMemberMissing
	}

	id := strings.TrimSpace(payload.JTI)
	if id == "" {
		id = uuid.NewString()
	}
	member := payload.MemberCardID
	token := jwt.NewWithClaims(signingMethod, AccessTokenClaims{
		MemberCardID: member,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Issuer:    cfg.Issuer,
			Subject:   member.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer and expiry, then checks that
// the member claim agrees with the subject.
func ParseAccessToken(cfg config.JWTConfig, tokenString string) (*AccessTokenClaims, error) {
	if err := requireKeys(cfg); err != nil {
		return nil, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockLeeway),
	)
	claims := &AccessTokenClaims{}
	_, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil:
		return nil, err
	case claims.MemberCardID == uuid.Nil:
		return nil, ErrMemberMissing
	case claims.Subject != "" && claims.Subject != claims.MemberCardID.String():
		return nil, ErrSubjectMismatch
	}
	return claims, nil
}
