package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// JWTService issues and verifies the HS256 bearer tokens the API accepts.
type JWTService struct {
	key    jwk.Key
	issuer string
	expiry time.Duration
}

type TokenClaims struct {
	UserID uuid.UUID `json:"user_id"`
}

func NewJWTService(signingKey []byte, issuer string, expiry time.Duration) (*JWTService, error) {
	key, err := jwk.FromRaw(signingKey)
	if err != nil {
		return nil, fmt.Errorf("building signing key: %w", err)
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.HS256); err != nil {
		return nil, fmt.Errorf("setting key algorithm: %w", err)
	}

	return &JWTService{key: key, issuer: issuer, expiry: expiry}, nil
}

// GenerateToken signs a token for userID, carried both as the subject
// and as an explicit user_id claim.
func (s *JWTService) GenerateToken(ctx context.Context, userID uuid.UUID) (string, error) {
	now := time.Now()

	tok, err := jwt.NewBuilder().
		Issuer(s.issuer).
		Subject(userID.String()).
		IssuedAt(now).
		Expiration(now.Add(s.expiry)).
		Claim("user_id", userID.String()).
		Build()
	if err != nil {
		return "", fmt.Errorf("building token: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, s.key))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return string(signed), nil
}

// ValidateToken checks the signature, issuer and expiry, and extracts
// the user_id claim.
func (s *JWTService) ValidateToken(ctx context.Context, tokenString string) (*TokenClaims, error) {
	tok, err := jwt.Parse([]byte(tokenString), jwt.WithKey(jwa.HS256, s.key), jwt.WithIssuer(s.issuer))
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	if err := jwt.Validate(tok); err != nil {
		return nil, fmt.Errorf("validating token: %w", err)
	}

	raw, ok := tok.Get("user_id")
	if !ok {
		return nil, fmt.Errorf("token has no user_id claim")
	}
	claim, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("user_id claim is not a string")
	}
	userID, err := uuid.Parse(claim)
	if err != nil {
		return nil, fmt.Errorf("malformed user_id claim: %w", err)
	}

	return &TokenClaims{UserID: userID}, nil
}
