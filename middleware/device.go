package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/vantorre/authcore"
)

// FingerprintHeader is where RequireDevice reads the device fingerprint hash
// from when the request context does not already carry one.
const FingerprintHeader = "X-Device-Fingerprint"

// RequireDevice is Guard plus device binding: the request must present the
// fingerprint hash the access token was minted for. Tokens issued without a
// fingerprint pass unchecked.
func RequireDevice(engine *authcore.Engine) func(http.Handler) http.Handler {
	guard := Guard(engine)
	return func(next http.Handler) http.Handler {
		return guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if identity.Fingerprint != "" {
				presented := requestFingerprint(r)
				if subtle.ConstantTimeCompare([]byte(presented), []byte(identity.Fingerprint)) != 1 {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
			}

			next.ServeHTTP(w, r)
		}))
	}
}

func requestFingerprint(r *http.Request) string {
	if fp := authcore.FingerprintFromContext(r.Context()); fp != "" {
		return fp
	}
	return r.Header.Get(FingerprintHeader)
}
