package gateway

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"yieldwallet/observability/logging"
)

var errBearerRequired = errors.New("gateway: bearer token required")

// requireJWT guards mutating routes with an HMAC-signed bearer token. When no
// secret is configured the guard is disabled, which is the local development
// mode.
func requireJWT(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(secret) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeJSONError(w, http.StatusUnauthorized, errBearerRequired)
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			token, err := jwt.Parse(raw, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.New("gateway: unexpected signing method")
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				slog.Default().LogAttrs(r.Context(), slog.LevelWarn, "rejected bearer token",
					slog.String("path", r.URL.Path),
					logging.MaskField("token", raw),
				)
				writeJSONError(w, http.StatusUnauthorized, errors.New("gateway: invalid token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
