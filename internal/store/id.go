package store

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// ID is a 128-bit identifier. It is rendered as 32 lowercase hex digits at
// every external boundary and carries no ordering beyond byte order.
type ID [16]byte

func NewID() ID {
	return ID(uuid.New())
}

// IDFromUint64 returns an ID whose low 64 bits are v.
func IDFromUint64(v uint64) ID {
	var id ID
	binary.BigEndian.PutUint64(id[8:], v)
	return id
}

// ParseID accepts between 1 and 32 hex digits, ignoring dashes so that
// GUID-formatted principal ids parse, and left-pads the value to 128 bits.
func ParseID(value string) (ID, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(value), "-", "")
	if cleaned == "" || len(cleaned) > 32 {
		return ID{}, BadRequest("The identifier you provided could not be parsed. Please check it and try again.")
	}
	if len(cleaned)%2 == 1 {
		cleaned = "0" + cleaned
	}
	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		return ID{}, BadRequest("The identifier you provided could not be parsed. Please check it and try again.")
	}
	var id ID
	copy(id[len(id)-len(raw):], raw)
	return id, nil
}

// MustParseID is ParseID for fixtures; it panics on malformed input.
func MustParseID(value string) ID {
	id, err := ParseID(value)
	if err != nil {
		panic(err)
	}
	return id
}

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

func (id ID) IsZero() bool {
	return id == ID{}
}

func (id ID) Compare(other ID) int {
	return bytes.Compare(id[:], other[:])
}

func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// HashEmail derives the User partition key from an email address.
func HashEmail(email string) ID {
	normalized := strings.ToLower(strings.TrimSpace(email))
	hasher, _ := blake2b.New(16, nil)
	_, _ = hasher.Write([]byte(normalized))
	var id ID
	copy(id[:], hasher.Sum(nil))
	return id
}
