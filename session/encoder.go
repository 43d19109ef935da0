package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const sessionFormatVersionV1 = 1

// Encode serializes a session as a versioned binary blob. LastRefreshedAt is
// always the final 8 bytes; the touch script depends on that layout to splice
// in a new timestamp without decoding the record.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersionV1)

	if len(s.AccountID) > 255 {
		return nil, errors.New("accountID too long")
	}
	buf.WriteByte(byte(len(s.AccountID)))
	buf.WriteString(s.AccountID)

	if len(s.Fingerprint) > 255 {
		return nil, errors.New("fingerprint too long")
	}
	buf.WriteByte(byte(len(s.Fingerprint)))
	buf.WriteString(s.Fingerprint)

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.LastRefreshedAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a blob produced by Encode.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, errors.New("session blob empty")
	}
	if version != sessionFormatVersionV1 {
		return nil, errors.New("invalid session format version")
	}

	accountID, err := readLenPrefixed(reader)
	if err != nil {
		return nil, err
	}
	fingerprint, err := readLenPrefixed(reader)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		AccountID:   accountID,
		Fingerprint: fingerprint,
	}
	if err := binary.Read(reader, binary.BigEndian, &sess.CreatedAt); err != nil {
		return nil, errors.New("session blob truncated")
	}
	if err := binary.Read(reader, binary.BigEndian, &sess.LastRefreshedAt); err != nil {
		return nil, errors.New("session blob truncated")
	}
	if reader.Len() != 0 {
		return nil, errors.New("session blob has trailing bytes")
	}

	return sess, nil
}

func readLenPrefixed(reader *bytes.Reader) (string, error) {
	length, err := reader.ReadByte()
	if err != nil {
		return "", errors.New("session blob truncated")
	}

	value := make([]byte, length)
	if _, err := io.ReadFull(reader, value); err != nil {
		return "", errors.New("session blob truncated")
	}
	return string(value), nil
}
