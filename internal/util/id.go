// Package util holds small helpers shared across packages.
package util

import (
	"crypto/rand"
	"encoding/hex"
)

const idEntropyBytes = 16

// NewID returns a random identifier like "mtr_4f2a...". An empty prefix
// yields the bare hex string.
func NewID(prefix string) string {
	buf := make([]byte, idEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process cannot do anything safely.
		panic("util: random source unavailable: " + err.Error())
	}
	id := hex.EncodeToString(buf)
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
