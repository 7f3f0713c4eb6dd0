package session

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"
)

const recordVersion1 = 1

// Session is one refresh-token lineage: the server-side record that binds
// a hashed refresh token to an account. The raw token is never stored.
type Session struct {
	ID          string
	AccountID   string
	RefreshHash [32]byte
	CreatedAt   int64
	ExpiresAt   int64
}

// HashRefreshToken derives the stored digest of a raw refresh token.
// Refresh tokens are high-entropy signed blobs, so a single fast
// cryptographic hash suffices; the password KDF would buy nothing here.
func HashRefreshToken(raw string) [32]byte {
	return sha256.Sum256([]byte(raw))
}

func encodeSession(sess *Session) ([]byte, error) {
	if len(sess.AccountID) > 65535 {
		return nil, errors.New("account id too long")
	}

	var buf bytes.Buffer
	buf.WriteByte(recordVersion1)
	buf.Write(sess.RefreshHash[:])
	if err := binary.Write(&buf, binary.BigEndian, sess.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, sess.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(sess.AccountID))); err != nil {
		return nil, err
	}
	buf.WriteString(sess.AccountID)

	return buf.Bytes(), nil
}

func decodeSession(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordVersion1 {
		return nil, errors.New("invalid session record version")
	}

	sess := &Session{}
	if _, err := io.ReadFull(reader, sess.RefreshHash[:]); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &sess.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &sess.ExpiresAt); err != nil {
		return nil, err
	}

	var accountLen uint16
	if err := binary.Read(reader, binary.BigEndian, &accountLen); err != nil {
		return nil, err
	}
	account := make([]byte, accountLen)
	if _, err := io.ReadFull(reader, account); err != nil {
		return nil, err
	}
	sess.AccountID = string(account)

	return sess, nil
}
