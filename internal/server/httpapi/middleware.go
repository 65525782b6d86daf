package httpapi

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/dmitrijs2005/userapi/internal/common"
	"github.com/dmitrijs2005/userapi/internal/server/auth"
)

const adminRole = "admin"

type ctxKey int

const (
	ctxKeyPayload ctxKey = iota
	ctxKeyToken
)

// authMiddleware verifies the bearer token and stashes the decoded
// payload plus the raw token in the request context. Requests without a
// verifiable token never reach a handler.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.writeError(w, r, common.ErrInvalidToken)
			return
		}

		payload, err := s.service.GetTokenData(token)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyPayload, payload)
		ctx = context.WithValue(ctx, ctxKeyToken, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRoles re-checks the raw token against required role codes.
// Must run after authMiddleware.
func (s *Server) requireRoles(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, _ := r.Context().Value(ctxKeyToken).(string)

			ok, err := s.service.TokenHasRoles(token, roles)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			if !ok {
				s.writeError(w, r, common.ErrorForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}

// tokenPayload returns the payload stored by authMiddleware. Handlers
// behind the middleware can rely on it being present.
func tokenPayload(r *http.Request) *auth.TokenPayload {
	payload, _ := r.Context().Value(ctxKeyPayload).(*auth.TokenPayload)
	return payload
}

func hasRole(payload *auth.TokenPayload, code string) bool {
	return payload != nil && slices.Contains(payload.Roles, code)
}
