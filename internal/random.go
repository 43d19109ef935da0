// Package internal holds the one-time token wire codec. A delivered token is
// base64url(id || secret): the id locates the Redis record, the secret is
// never stored (only its SHA-256), so a cache dump alone cannot forge a
// redeemable token.
package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

const (
	oneTimeIDSize     = 16
	oneTimeSecretSize = 32
	oneTimeTokenSize  = oneTimeIDSize + oneTimeSecretSize
)

// OneTimeID is the random identifier that keys a one-time record in Redis.
type OneTimeID [oneTimeIDSize]byte

func NewOneTimeID() (OneTimeID, error) {
	var id OneTimeID
	_, err := rand.Read(id[:])
	return id, err
}

func (id OneTimeID) String() string {
	return base64.RawURLEncoding.EncodeToString(id[:])
}

func ParseOneTimeID(s string) (OneTimeID, error) {
	var id OneTimeID

	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(raw) != len(id) {
		return id, errors.New("invalid one-time id size")
	}

	copy(id[:], raw)
	return id, nil
}

func NewOneTimeSecret() ([oneTimeSecretSize]byte, error) {
	var secret [oneTimeSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

func HashOneTimeSecret(secret [oneTimeSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// EncodeOneTimeToken packs id and secret into the delivered token string.
func EncodeOneTimeToken(id OneTimeID, secret [oneTimeSecretSize]byte) string {
	var raw [oneTimeTokenSize]byte
	copy(raw[:len(id)], id[:])
	copy(raw[len(id):], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:])
}

// DecodeOneTimeToken splits a delivered token back into id and secret.
func DecodeOneTimeToken(token string) (OneTimeID, [oneTimeSecretSize]byte, error) {
	var (
		id     OneTimeID
		secret [oneTimeSecretSize]byte
	)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return id, secret, err
	}
	if len(raw) != oneTimeTokenSize {
		return id, secret, errors.New("invalid one-time token size")
	}

	copy(id[:], raw[:len(id)])
	copy(secret[:], raw[len(id):])
	return id, secret, nil
}
