package tag

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport-level Redis failures.
var ErrRedisUnavailable = errors.New("tag redis unavailable")

// Seed space for lazily created tags. Random seeding keeps tag values
// unpredictable across cache wipes; rotation increments from wherever the
// seed landed, preserving monotonicity within one life of the key.
const seedSpan = int64(1) << 31

const getOrInitScript = `
local v = redis.call("HGET", KEYS[1], "v")
if v then
  return v
end
redis.call("HSET", KEYS[1], "v", ARGV[1], "ts", ARGV[2])
return ARGV[1]
`

var getOrInitLua = redis.NewScript(getOrInitScript)

const rotateScript = `
local v = redis.call("HGET", KEYS[1], "v")
if v then
  local nextv = redis.call("HINCRBY", KEYS[1], "v", 1)
  redis.call("HSET", KEYS[1], "ts", ARGV[2])
  return nextv
end
redis.call("HSET", KEYS[1], "v", ARGV[1], "ts", ARGV[2])
return ARGV[1]
`

var rotateLua = redis.NewScript(rotateScript)

// Registry stores one auth tag per account in a Redis hash (value plus
// updated-at timestamp). It holds no in-process state and is safe for
// concurrent use.
type Registry struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRegistry returns a registry using the given Redis client and key prefix.
func NewRegistry(redisClient redis.UniversalClient, prefix string) *Registry {
	if prefix == "" {
		prefix = "atg"
	}
	return &Registry{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (r *Registry) key(accountID string) string {
	return r.prefix + ":" + accountID
}

// GetOrInit reads the account's live tag, creating it with a random seed if
// absent. Creation is race-safe: concurrent first-time callers all observe
// the same value.
func (r *Registry) GetOrInit(ctx context.Context, accountID string) (uint64, error) {
	seed, err := randomSeed()
	if err != nil {
		return 0, err
	}

	result, err := getOrInitLua.Run(
		ctx,
		r.redis,
		[]string{r.key(accountID)},
		seed,
		time.Now().Unix(),
	).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return parseTagValue(result)
}

// Rotate atomically advances the account's tag and returns the new value.
// Every token minted before the rotation fails IsCurrent afterwards. If the
// tag does not exist yet, Rotate seeds it like GetOrInit.
func (r *Registry) Rotate(ctx context.Context, accountID string) (uint64, error) {
	seed, err := randomSeed()
	if err != nil {
		return 0, err
	}

	result, err := rotateLua.Run(
		ctx,
		r.redis,
		[]string{r.key(accountID)},
		seed,
		time.Now().Unix(),
	).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return parseTagValue(result)
}

// Current returns the live tag value. ok is false when the account has no
// tag yet (never signed in, or the key space was wiped).
func (r *Registry) Current(ctx context.Context, accountID string) (value uint64, ok bool, err error) {
	raw, err := r.redis.HGet(ctx, r.key(accountID), "v").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	value, err = strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid tag value %q", raw)
	}
	return value, true, nil
}

// IsCurrent reports whether a token minted with tagAtIssue is still valid.
// A missing tag counts as not current: with no live tag there is nothing the
// embedded value can legitimately match.
func (r *Registry) IsCurrent(ctx context.Context, accountID string, tagAtIssue uint64) (bool, error) {
	live, ok, err := r.Current(ctx, accountID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return live == tagAtIssue, nil
}

// UpdatedAt returns the Unix timestamp of the last rotation or init. ok is
// false when the account has no tag.
func (r *Registry) UpdatedAt(ctx context.Context, accountID string) (int64, bool, error) {
	raw, err := r.redis.HGet(ctx, r.key(accountID), "ts").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid tag timestamp %q", raw)
	}
	return ts, true, nil
}

func randomSeed() (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(seedSpan))
	if err != nil {
		return 0, err
	}
	return n.Int64() + 1, nil
}

func parseTagValue(result interface{}) (uint64, error) {
	switch v := result.(type) {
	case int64:
		if v < 0 {
			return 0, fmt.Errorf("invalid tag value %d", v)
		}
		return uint64(v), nil
	case string:
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid tag value %q", v)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("%w: invalid tag script response", ErrRedisUnavailable)
	}
}
