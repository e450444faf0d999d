// Package actions holds the option-indexing rule shared by snapshot assembly
// and command resolution. Option n always names action table slot n-1.
package actions

import (
	"strings"

	"simbridge.ai/internal/protocol"
)

// Enumerate lists the non-empty slots of an action table with 1-based indices.
// The result is dense while the indices keep the gaps of the source table.
func Enumerate(table []string) []protocol.Option {
	out := make([]protocol.Option, 0, len(table))
	for i, label := range table {
		if label == "" {
			continue
		}
		out = append(out, protocol.Option{Text: label, OpIndex: i + 1})
	}
	return out
}

// Labels returns the non-empty slots of table in order.
func Labels(table []string) []string {
	out := make([]string, 0, len(table))
	for _, label := range table {
		if label != "" {
			out = append(out, label)
		}
	}
	return out
}

// Resolve maps a 1-based option index back to its label. It reports false
// for indices outside the table and for empty slots.
func Resolve(table []string, opIndex int) (string, bool) {
	if opIndex < 1 || opIndex > len(table) {
		return "", false
	}
	label := table[opIndex-1]
	if label == "" {
		return "", false
	}
	return label, true
}

// Find returns the option index of the first label equal to verb, ignoring case.
func Find(table []string, verb string) (int, bool) {
	for i, label := range table {
		if label != "" && strings.EqualFold(label, verb) {
			return i + 1, true
		}
	}
	return 0, false
}

// Match returns the option index of the first label containing any keyword,
// ignoring case.
func Match(table []string, keywords ...string) (int, string, bool) {
	for i, label := range table {
		if label == "" {
			continue
		}
		lower := strings.ToLower(label)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return i + 1, label, true
			}
		}
	}
	return 0, "", false
}
