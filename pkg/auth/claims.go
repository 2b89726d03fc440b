package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/evdms/dealer-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID       uuid.UUID
	DealerID     *uuid.UUID
	Capabilities []enums.Capability
	JTI          string
}

// AccessTokenClaims represents the typed JWT presented by clients. Tokens are
// issued by the identity service; the dealer backend only verifies them.
type AccessTokenClaims struct {
	UserID       uuid.UUID          `json:"user_id"`
	DealerID     *uuid.UUID         `json:"dealer_id,omitempty"`
	Capabilities []enums.Capability `json:"capabilities"`
	jwt.RegisteredClaims
}
