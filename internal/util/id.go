package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random 32-hex-digit token, prefixed with prefix and an
// underscore when prefix is set.
func NewID(prefix string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return raw
	}
	return prefix + "_" + raw
}

// RequestID returns the caller-supplied id when it is usable, and a fresh
// one otherwise.
func RequestID(supplied string) string {
	supplied = strings.TrimSpace(supplied)
	if supplied == "" || len(supplied) > 128 || strings.ContainsAny(supplied, "\r\n") {
		return NewID("req")
	}
	return supplied
}
