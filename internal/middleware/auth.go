package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Luckybob666/wa-bot-sub000/internal/audit"
	apperrors "github.com/Luckybob666/wa-bot-sub000/internal/errors"
	"github.com/Luckybob666/wa-bot-sub000/internal/httputil"
)

// AuthMiddleware guards the operator API with the static admin token.
// Comparison is constant time.
type AuthMiddleware struct {
	adminToken string
}

func NewAuthMiddleware(adminToken string) *AuthMiddleware {
	return &AuthMiddleware{adminToken: adminToken}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			httputil.WriteError(w, apperrors.Unauthorized("Missing authentication token"))
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(m.adminToken)) != 1 {
			log.Warn().Str("path", r.URL.Path).Msg("invalid token attempt")
			audit.LogFromRequest(r, audit.Event{Type: audit.EventAuthFailure})
			httputil.WriteError(w, apperrors.InvalidToken("Invalid token"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractToken accepts the Authorization bearer header and, for SSE clients
// that cannot set headers, a token query parameter.
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
