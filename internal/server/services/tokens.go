package services

import "github.com/dmitrijs2005/userapi/internal/server/auth"

// Token operations are pure computations over the process-held secret;
// they never touch the store, which keeps them cheap enough to run on
// every request. They are exposed on the facade so the transport adapter
// depends on the service alone.

// GetTokenData verifies the token and returns the embedded payload.
func (s *AccountService) GetTokenData(token string) (*auth.TokenPayload, error) {
	return auth.GetTokenData(token, s.jwtSecret)
}

// IsTokenValid reports whether the token verifies and has not expired.
func (s *AccountService) IsTokenValid(token string) bool {
	return auth.IsTokenValid(token, s.jwtSecret)
}

// TokenHasRoles checks the token payload against the required role codes.
func (s *AccountService) TokenHasRoles(token string, requiredRoles []string) (bool, error) {
	return auth.TokenHasRoles(token, s.jwtSecret, requiredRoles)
}
