package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	MemberCardID uuid.UUID
	JTI          string
}

// AccessTokenClaims is the JWT presented by library members. The member card
// id is the member identifier used on every loan route.
type AccessTokenClaims struct {
	MemberCardID uuid.UUID `json:"member_card_id"`
	jwt.RegisteredClaims
}
