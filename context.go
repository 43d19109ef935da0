package authcore

import "context"

type fingerprintContextKey struct{}

// WithFingerprint attaches the requesting device's fingerprint hash to ctx.
// The request layer computes the hash; the engine only treats it as an
// opaque identity for the device.
func WithFingerprint(ctx context.Context, fingerprintHash string) context.Context {
	return context.WithValue(ctx, fingerprintContextKey{}, fingerprintHash)
}

// FingerprintFromContext returns the fingerprint hash attached by
// WithFingerprint, or "" when none is present.
func FingerprintFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	fingerprint, _ := ctx.Value(fingerprintContextKey{}).(string)
	return fingerprint
}
