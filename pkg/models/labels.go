package models

import (
	"regexp"
	"sort"
)

// Labels is an open map of label key to an ordered list of string values.
// Used for both `labels` and `documentationLabels` on any ORD entity.
type Labels map[string][]string

var labelKeyRegex = regexp.MustCompile(`^[a-zA-Z0-9-_.]*$`)

// ValidLabelKey reports whether a label key matches the allowed character class.
func ValidLabelKey(key string) bool {
	return key != "" && labelKeyRegex.MatchString(key)
}

// Union merges other into a copy of l. Values for the same key are unioned
// with duplicates removed; first-seen order is preserved so repeated merges
// of the same inputs produce the same result.
func (l Labels) Union(other Labels) Labels {
	if l == nil && other == nil {
		return nil
	}

	result := make(Labels, len(l)+len(other))
	for key, values := range l {
		result[key] = append([]string(nil), values...)
	}

	keys := make([]string, 0, len(other))
	for key := range other {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		seen := make(map[string]bool, len(result[key]))
		for _, v := range result[key] {
			seen[v] = true
		}
		for _, v := range other[key] {
			if !seen[v] {
				result[key] = append(result[key], v)
				seen[v] = true
			}
		}
		if result[key] == nil {
			result[key] = []string{}
		}
	}

	return result
}

// Equal reports whether two label maps contain the same keys and value lists.
func (l Labels) Equal(other Labels) bool {
	if len(l) != len(other) {
		return false
	}
	for key, values := range l {
		otherValues, ok := other[key]
		if !ok || len(values) != len(otherValues) {
			return false
		}
		for i := range values {
			if values[i] != otherValues[i] {
				return false
			}
		}
	}
	return true
}

// UnionStrings returns the deduplicated union of two string lists, preserving
// the order of a then unseen elements of b.
func UnionStrings(a, b []string) []string {
	if a == nil && b == nil {
		return nil
	}

	result := make([]string, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for _, v := range a {
		if !seen[v] {
			result = append(result, v)
			seen[v] = true
		}
	}
	for _, v := range b {
		if !seen[v] {
			result = append(result, v)
			seen[v] = true
		}
	}
	return result
}
