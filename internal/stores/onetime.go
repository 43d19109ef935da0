package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const oneTimeRecordVersionV1 = 1

var (
	ErrNotFound         = errors.New("one-time record not found")
	ErrExpired          = errors.New("one-time record expired")
	ErrConsumed         = errors.New("one-time record already consumed")
	ErrWrongPurpose     = errors.New("one-time record purpose mismatch")
	ErrSecretMismatch   = errors.New("one-time secret mismatch")
	ErrRedisUnavailable = errors.New("one-time redis unavailable")
)

// OneTimeRecord is the stored server side of a one-time token. SecretHash is
// the SHA-256 of the secret half of the delivered token; the secret itself is
// never persisted.
type OneTimeRecord struct {
	AccountID  string
	Purpose    byte
	Payload    string
	SecretHash [32]byte
	// CreatedAt and ExpiresAt are Unix milliseconds, matching the PX
	// granularity of the cache TTLs.
	CreatedAt int64
	ExpiresAt int64
	Consumed  bool
}

// OneTimeStore persists one-time records in Redis keyed by token id.
type OneTimeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewOneTimeStore(redisClient redis.UniversalClient, prefix string) *OneTimeStore {
	if prefix == "" {
		prefix = "ott"
	}
	return &OneTimeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *OneTimeStore) key(tokenID string) string {
	return s.prefix + ":" + tokenID
}

// Save stores an unconsumed record. ttl should outlive the record's logical
// ExpiresAt by a grace window so that a late redeem reports "expired" rather
// than "not found".
func (s *OneTimeStore) Save(ctx context.Context, tokenID string, record *OneTimeRecord, ttl time.Duration) error {
	encoded, err := encodeOneTimeRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(tokenID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Consume atomically checks and marks the record consumed. Under N concurrent
// calls for the same token, exactly one returns the record; the rest get
// ErrConsumed (or ErrNotFound if the key raced out entirely). The consumed
// marker keeps the record's remaining TTL so later attempts stay
// distinguishable from unknown tokens.
func (s *OneTimeStore) Consume(
	ctx context.Context,
	tokenID string,
	providedHash [32]byte,
	purpose byte,
) (*OneTimeRecord, error) {
	const maxRetries = 4
	key := s.key(tokenID)

	for i := 0; i < maxRetries; i++ {
		var consumed *OneTimeRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeOneTimeRecord(data)
			if err != nil {
				return err
			}

			if time.Now().UnixMilli() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrExpired
			}

			if subtle.ConstantTimeCompare(record.SecretHash[:], providedHash[:]) != 1 {
				return ErrSecretMismatch
			}

			if record.Consumed {
				return ErrConsumed
			}

			if record.Purpose != purpose {
				// Purpose mismatch does not burn the token: the legitimate
				// holder can still redeem it for what it was issued for.
				return ErrWrongPurpose
			}

			pttl, err := tx.PTTL(ctx, key).Result()
			if err != nil {
				return err
			}
			if pttl <= 0 {
				return ErrExpired
			}

			record.Consumed = true
			updated, err := encodeOneTimeRecord(record)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, pttl)
				return nil
			})
			if err != nil {
				return err
			}

			consumed = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, ErrNotFound
			case errors.Is(err, ErrExpired),
				errors.Is(err, ErrConsumed),
				errors.Is(err, ErrWrongPurpose),
				errors.Is(err, ErrSecretMismatch):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
		}

		return consumed, nil
	}

	return nil, ErrConsumed
}

// Peek runs the same checks as Consume without mutating anything.
func (s *OneTimeStore) Peek(
	ctx context.Context,
	tokenID string,
	providedHash [32]byte,
	purpose byte,
) (*OneTimeRecord, error) {
	data, err := s.redis.Get(ctx, s.key(tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	record, err := decodeOneTimeRecord(data)
	if err != nil {
		return nil, err
	}

	if time.Now().UnixMilli() > record.ExpiresAt {
		return nil, ErrExpired
	}
	if subtle.ConstantTimeCompare(record.SecretHash[:], providedHash[:]) != 1 {
		return nil, ErrSecretMismatch
	}
	if record.Consumed {
		return nil, ErrConsumed
	}
	if record.Purpose != purpose {
		return nil, ErrWrongPurpose
	}

	return record, nil
}

func encodeOneTimeRecord(record *OneTimeRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(oneTimeRecordVersionV1)
	buf.WriteByte(record.Purpose)
	if record.Consumed {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.AccountID) > 65535 {
		return nil, errors.New("one-time record account id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.AccountID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.AccountID)

	if len(record.Payload) > 65535 {
		return nil, errors.New("one-time record payload too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Payload))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Payload)

	buf.Write(record.SecretHash[:])

	return buf.Bytes(), nil
}

func decodeOneTimeRecord(data []byte) (*OneTimeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != oneTimeRecordVersionV1 {
		return nil, errors.New("invalid one-time record version")
	}

	purpose, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	consumedByte, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &OneTimeRecord{
		Purpose:  purpose,
		Consumed: consumedByte == 1,
	}

	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	accountID, err := readUint16Prefixed(reader)
	if err != nil {
		return nil, err
	}
	record.AccountID = accountID

	payload, err := readUint16Prefixed(reader)
	if err != nil {
		return nil, err
	}
	record.Payload = payload

	if _, err := io.ReadFull(reader, record.SecretHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}

func readUint16Prefixed(reader *bytes.Reader) (string, error) {
	var length uint16
	if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
		return "", err
	}

	value := make([]byte, length)
	if _, err := io.ReadFull(reader, value); err != nil {
		return "", err
	}
	return string(value), nil
}
