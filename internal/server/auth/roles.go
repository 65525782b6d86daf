package auth

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/userapi/internal/common"
)

// TokenHasRoles decodes the token and checks that its payload carries
// every required role code. Authorization is all-or-nothing: a single
// missing role fails the whole call with common.ErrorForbidden, and the
// error names every missing role in the order they were required.
// Decoding failures propagate as common.ErrInvalidToken.
func TokenHasRoles(tokenString string, secretKey []byte, requiredRoles []string) (bool, error) {
	payload, err := GetTokenData(tokenString, secretKey)
	if err != nil {
		return false, err
	}

	held := make(map[string]struct{}, len(payload.Roles))
	for _, code := range payload.Roles {
		held[code] = struct{}{}
	}

	var missing []string
	for _, code := range requiredRoles {
		if _, ok := held[code]; !ok {
			missing = append(missing, code)
		}
	}

	if len(missing) > 0 {
		return false, fmt.Errorf("%w: missing roles %s", common.ErrorForbidden, strings.Join(missing, ", "))
	}

	return true, nil
}
