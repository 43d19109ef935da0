package session

// Session is the per-device record created at sign-in. Fingerprint is the
// hash supplied by the request layer that identifies the requesting client;
// the pair (AccountID, Fingerprint) is the record's identity.
type Session struct {
	AccountID       string
	Fingerprint     string
	CreatedAt       int64
	LastRefreshedAt int64
}
