// Package strings holds small string-slice helpers shared across packages.
package strings

import "strings"

// DedupeAndTrim trims each element, drops empties, and removes duplicates,
// keeping first-seen order. Used for comma-separated config lists such as
// Kafka broker addresses.
func DedupeAndTrim(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0:0]
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
