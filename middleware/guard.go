package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/vantorre/authcore"
)

type identityContextKey struct{}

// IdentityFromContext returns the identity injected by a guard, if the
// request passed one.
func IdentityFromContext(ctx context.Context) (*authcore.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(*authcore.Identity)
	return identity, ok
}

// Guard verifies the bearer access token on every request and injects the
// resulting identity into the request context. Requests without a valid,
// unrevoked token are rejected with 401.
func Guard(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			identity, err := engine.Verify(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey{}, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
