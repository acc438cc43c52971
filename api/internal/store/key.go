package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"insights-proxy/api/internal/insights/types"
)

// Key builds the cache key: task kind, then the optional context id, then the optional input hash,
// joined by "|".
func Key(task types.TaskKind, contextID string, input any) string {
	parts := []string{string(task)}
	if contextID != "" {
		parts = append(parts, "context:"+contextID)
	}
	if input != nil {
		parts = append(parts, "input:"+HashInput(input))
	}
	return strings.Join(parts, "|")
}

// HashInput is the sha256 of the input's JSON encoding. An input that cannot be encoded falls back
// to its printed form so identical requests still collide.
func HashInput(input any) string {
	b, err := json.Marshal(input)
	if err != nil {
		return fmt.Sprint(input)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
