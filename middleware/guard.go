package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/relaychat/authcore"
)

type accountIDContextKey struct{}

// AccountIDFromContext returns the account id Guard attached after a
// successful access-token check.
func AccountIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(accountIDContextKey{}).(string)
	return id, ok
}

// Guard rejects requests without a valid bearer access token and puts
// the token's account id on the request context. Verification is
// stateless: signature and expiry only, no store round-trip.
func Guard(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			accessToken, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			accountID, err := engine.VerifyAccess(accessToken)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), accountIDContextKey{}, accountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	accessToken := value[len(bearer):]
	if accessToken == "" {
		return "", false
	}

	return accessToken, true
}
