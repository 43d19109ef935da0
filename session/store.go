package session

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no session exists for the requested
// (account, fingerprint) pair, or its TTL already lapsed.
var ErrNotFound = errors.New("session not found")

// ErrCorrupt is returned when a stored session blob cannot be decoded.
var ErrCorrupt = errors.New("session record corrupt")

// ErrRedisUnavailable wraps transport-level Redis failures.
var ErrRedisUnavailable = errors.New("session redis unavailable")

const (
	touchStatusNotFound int64 = 0
	touchStatusTouched  int64 = 1
	touchStatusCorrupt  int64 = 2
)

// Minimum well-formed record: version, two length bytes, two int64s.
const minRecordSize = 1 + 1 + 1 + 8 + 8

const touchSessionScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return {0}
end
if #data < 19 then
  return {2}
end
local updated = string.sub(data, 1, #data - 8) .. ARGV[1]
redis.call("SET", KEYS[1], updated, "PX", ARGV[2])
redis.call("SADD", KEYS[2], ARGV[3])
return {1, updated}
`

var touchSessionLua = redis.NewScript(touchSessionScript)

const closeSessionScript = `
local existed = redis.call("EXISTS", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
end
return existed
`

var closeSessionLua = redis.NewScript(closeSessionScript)

// Store is the Redis-backed session store. It keeps one record per
// (account, fingerprint) pair plus a per-account index set of fingerprints so
// "sign out everywhere" can find every device.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session Store backed by the given Redis client. prefix
// sets the key namespace for session records; the per-account index lives
// under prefix+"x".
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "ss"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) key(accountID, fingerprint string) string {
	return s.prefix + ":" + accountID + ":" + fingerprint
}

func (s *Store) indexKey(accountID string) string {
	return s.prefix + "x:" + accountID
}

// Open creates or overwrites the session record for the pair with a fresh
// TTL. Called on sign-in; an existing record for the same device is simply
// replaced.
func (s *Store) Open(ctx context.Context, accountID, fingerprint string, ttl time.Duration) (*Session, error) {
	if accountID == "" || fingerprint == "" {
		return nil, errors.New("accountID and fingerprint required")
	}

	now := time.Now().Unix()
	sess := &Session{
		AccountID:       accountID,
		Fingerprint:     fingerprint,
		CreatedAt:       now,
		LastRefreshedAt: now,
	}

	data, err := Encode(sess)
	if err != nil {
		return nil, err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(accountID, fingerprint), data, ttl)
		pipe.SAdd(ctx, s.indexKey(accountID), fingerprint)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return sess, nil
}

// Touch validates that the session exists, extends its TTL, and updates
// LastRefreshedAt, all in one script so it cannot interleave with a
// concurrent Open or Close on the same key. Called on refresh, before new
// tokens are minted.
func (s *Store) Touch(ctx context.Context, accountID, fingerprint string, ttl time.Duration) (*Session, error) {
	var stamped [8]byte
	binary.BigEndian.PutUint64(stamped[:], uint64(time.Now().Unix()))

	result, err := touchSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.key(accountID, fingerprint), s.indexKey(accountID)},
		stamped[:],
		ttl.Milliseconds(),
		fingerprint,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid touch script response", ErrRedisUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid touch script status", ErrRedisUnavailable)
	}

	switch code {
	case touchStatusNotFound:
		return nil, ErrNotFound
	case touchStatusCorrupt:
		return nil, ErrCorrupt
	case touchStatusTouched:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing touched session payload", ErrRedisUnavailable)
		}
		var blob []byte
		switch v := parts[1].(type) {
		case string:
			blob = []byte(v)
		case []byte:
			blob = v
		default:
			return nil, fmt.Errorf("%w: invalid touched session payload", ErrRedisUnavailable)
		}

		sess, decErr := Decode(blob)
		if decErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, decErr)
		}
		return sess, nil
	default:
		return nil, fmt.Errorf("%w: unknown touch script status", ErrRedisUnavailable)
	}
}

// Get fetches a session without mutating TTL or index state.
func (s *Store) Get(ctx context.Context, accountID, fingerprint string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(accountID, fingerprint)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(data) < minRecordSize {
		return nil, ErrCorrupt
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return sess, nil
}

// Close removes the session for one device. Idempotent: closing a session
// that never existed or already expired is not an error.
func (s *Store) Close(ctx context.Context, accountID, fingerprint string) error {
	err := closeSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.key(accountID, fingerprint), s.indexKey(accountID)},
		fingerprint,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// CloseAll removes every session for the account and returns how many
// records were deleted.
//
// ATOMICITY NOTE: this operation is NOT fully atomic. It reads the account's
// fingerprint index (SMembers) and then deletes the records (TxPipelined
// DEL). A session opened between the read and the delete will not be
// captured by this call. The window is extremely narrow, and callers pair
// CloseAll with an auth tag rotation anyway, so any straggler record holds
// only already-revoked credentials and expires on its own.
func (s *Store) CloseAll(ctx context.Context, accountID string) (int, error) {
	indexKey := s.indexKey(accountID)

	fingerprints, err := s.redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	keys := make([]string, 0, len(fingerprints))
	for _, fingerprint := range fingerprints {
		keys = append(keys, s.key(accountID, fingerprint))
	}

	var delCmd *redis.IntCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			delCmd = pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, indexKey)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if delCmd == nil {
		return 0, nil
	}
	return int(delCmd.Val()), nil
}

// ActiveFingerprints returns the indexed fingerprints for an account. Entries
// whose session records already expired may linger in the index until the
// next Close or CloseAll.
func (s *Store) ActiveFingerprints(ctx context.Context, accountID string) ([]string, error) {
	fingerprints, err := s.redis.SMembers(ctx, s.indexKey(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return fingerprints, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
