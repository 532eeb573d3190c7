package sortutil

import "sort"

// SortedKeys returns a new slice containing the input keys sorted
// lexicographically. The original slice is not modified.
func SortedKeys(keys []string) []string {
	out := make([]string, len(keys))
	copy(out, keys)
	sort.Strings(out)
	return out
}

// Difference returns the keys of a that are not in b, sorted.
func Difference[V, W any](a map[string]V, b map[string]W) []string {
	out := make([]string, 0)
	for k := range a {
		if _, ok := b[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Intersection returns the keys present in both a and b, sorted.
func Intersection[V, W any](a map[string]V, b map[string]W) []string {
	out := make([]string, 0)
	for k := range a {
		if _, ok := b[k]; ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
