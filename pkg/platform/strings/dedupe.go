// Package strings provides string manipulation utilities.
package strings

import (
	"strings"
)

// SplitList splits a delimited setting such as "a:9092, b:9092,,a:9092"
// into its trimmed, non-empty, first-seen-order elements.
func SplitList(raw, sep string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return DedupeAndTrim(strings.Split(raw, sep))
}

// DedupeAndTrim trims each value and drops empties and repeats, keeping the
// first occurrence.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}
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
