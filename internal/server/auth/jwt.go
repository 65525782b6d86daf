// Package auth implements the token authority and access control for the
// user API: salt generation, password hashing, signed token issuance and
// verification, and role checks against a decoded token.
package auth

import (
	"time"

	"github.com/dmitrijs2005/userapi/internal/common"
	"github.com/dmitrijs2005/userapi/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// TokenPayload is the user snapshot embedded in every issued token. It
// carries enough state (including role codes) for authorization checks
// without a store round-trip. Role or active changes after issuance do
// not retroactively invalidate a token; staleness is bounded by the
// token validity configured on the server.
type TokenPayload struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email"`
	Name   string   `json:"name"`
	Active bool     `json:"active"`
	Roles  []string `json:"roles,omitempty"`
}

// PayloadFromUser snapshots a user record into a token payload.
func PayloadFromUser(u *models.User) TokenPayload {
	return TokenPayload{
		UserID: u.ID,
		Email:  u.Email,
		Name:   u.Name,
		Active: u.Active,
		Roles:  u.RoleCodes(),
	}
}

// Claims combines the registered JWT claims with the user payload.
type Claims struct {
	jwt.RegisteredClaims
	User TokenPayload `json:"user"`
}

// GenerateToken serializes the payload into an HS256-signed JWT with the
// given validity. The token is unforgeable without the secret.
func GenerateToken(payload TokenPayload, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		User: payload,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetTokenData verifies signature and expiry and returns the embedded
// payload. Malformed, tampered, and expired tokens all collapse into
// common.ErrInvalidToken; callers never need to tell them apart.
func GetTokenData(tokenString string, secretKey []byte) (*TokenPayload, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, common.ErrInvalidToken
	}

	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	return &claims.User, nil
}

// IsTokenValid is the non-erroring variant of GetTokenData.
func IsTokenValid(tokenString string, secretKey []byte) bool {
	_, err := GetTokenData(tokenString, secretKey)
	return err == nil
}
