package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/vantorre/authcore"
	"github.com/vantorre/authcore/token"
)

type staticAccountStore struct {
	account authcore.Account
}

func (s *staticAccountStore) GetByEmail(_ context.Context, email string) (*authcore.Account, error) {
	if email == s.account.Email {
		copied := s.account
		return &copied, nil
	}
	return nil, nil
}

func (s *staticAccountStore) GetByID(_ context.Context, id string) (*authcore.Account, error) {
	if id == s.account.ID {
		copied := s.account
		return &copied, nil
	}
	return nil, nil
}

func (s *staticAccountStore) UpdatePasswordHash(context.Context, string, string) error { return nil }
func (s *staticAccountStore) MarkEmailVerified(context.Context, string) error          { return nil }
func (s *staticAccountStore) UpdateEmail(context.Context, string, string) error        { return nil }

type plainHasher struct{}

func (plainHasher) Hash(plain string) (string, error)          { return "plain:" + plain, nil }
func (plainHasher) Verify(plain, encoded string) (bool, error) { return encoded == "plain:"+plain, nil }

func newTestEngine(t *testing.T) *authcore.Engine {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := &staticAccountStore{account: authcore.Account{
		ID:            "acct-1",
		Email:         "ada@example.com",
		EmailVerified: true,
		PasswordHash:  "plain:secret",
	}}

	engine, err := authcore.New().
		WithConfig(authcore.Config{
			AccessTTL:  time.Minute,
			RefreshTTL: time.Hour,
			SessionTTL: time.Hour,
			Signing: authcore.SigningConfig{
				Method:     token.MethodHS256,
				PrivateKey: []byte("0123456789abcdef0123456789abcdef"),
			},
		}).
		WithRedis(client).
		WithAccountStore(store).
		WithPasswordHasher(plainHasher{}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func signIn(t *testing.T, engine *authcore.Engine) *authcore.SignInResult {
	t.Helper()
	result, err := engine.SignIn(context.Background(), "ada@example.com", "secret", "fp-device-a")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	return result
}

func okHandler(t *testing.T, sawIdentity *bool) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if ok && identity.AccountID == "acct-1" {
			*sawIdentity = true
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestGuardAcceptsValidToken(t *testing.T) {
	engine := newTestEngine(t)
	result := signIn(t, engine)

	var sawIdentity bool
	handler := Guard(engine)(okHandler(t, &sawIdentity))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+result.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if !sawIdentity {
		t.Error("identity was not injected into the request context")
	}
}

func TestGuardRejectsBadRequests(t *testing.T) {
	engine := newTestEngine(t)
	result := signIn(t, engine)

	// Revoke everything so the (otherwise well-formed) token is rejected.
	if err := engine.SignOutEverywhere(context.Background(), "acct-1"); err != nil {
		t.Fatalf("SignOutEverywhere failed: %v", err)
	}

	var sawIdentity bool
	handler := Guard(engine)(okHandler(t, &sawIdentity))

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"empty token", "Bearer "},
		{"garbage token", "Bearer garbage"},
		{"revoked token", "Bearer " + result.AccessToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}
	if sawIdentity {
		t.Error("a rejected request reached the handler")
	}
}

func TestRequireDevice(t *testing.T) {
	engine := newTestEngine(t)
	result := signIn(t, engine)

	var sawIdentity bool
	handler := RequireDevice(engine)(okHandler(t, &sawIdentity))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+result.AccessToken)
	req.Header.Set(FingerprintHeader, "fp-device-a")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("matching fingerprint: status = %d, want 204", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+result.AccessToken)
	req.Header.Set(FingerprintHeader, "fp-device-b")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("mismatched fingerprint: status = %d, want 401", rec.Code)
	}

	// The fingerprint can also arrive via the request context.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+result.AccessToken)
	req = req.WithContext(authcore.WithFingerprint(req.Context(), "fp-device-a"))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("context fingerprint: status = %d, want 204", rec.Code)
	}
}
