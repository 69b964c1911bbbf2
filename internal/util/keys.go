package util

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

// HashKey returns a deterministic key of prefix and parts with a short hash.
// Parts keep their order: ("a","b") and ("b","a") hash differently.
func HashKey(prefix string, parts ...string) string {
	joined := strings.Join(parts, "\x1f")
	sum := sha256.Sum256([]byte(joined))
	return fmt.Sprintf("%s:%x", prefix, sum)[:len(prefix)+1+16] // prefix + ":" + first 16 hex chars
}

// SortedPairs flattens m into "k=v" strings sorted by key.
func SortedPairs(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
