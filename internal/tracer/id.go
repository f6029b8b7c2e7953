package tracer

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// NewRunID generates an execution ID ("r-" + 12 hex chars).
func NewRunID() string {
	return prefixedID("r", 12)
}

// NewCallID generates a bridge call ID ("c-" + 8 hex chars).
func NewCallID() string {
	return prefixedID("c", 8)
}

func prefixedID(prefix string, hexLen int) string {
	b := make([]byte, (hexLen+1)/2)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%s-%x", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%s", prefix, hex.EncodeToString(b)[:hexLen])
}
