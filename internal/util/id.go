package util

import (
	"crypto/rand"
	"encoding/hex"
)

const idEntropyBytes = 16

// NewID returns a random identifier of the form "<prefix>_<32 hex chars>",
// or just the hex when prefix is empty.
func NewID(prefix string) string {
	var buf [idEntropyBytes]byte
	_, _ = rand.Read(buf[:])
	id := hex.EncodeToString(buf[:])
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
