// Package watchlist loads the set of parcel keys a subscriber cares about.
// An empty set disables filtering.
package watchlist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"parcelwatch/internal/sortutil"
)

// Set is a set of parcel keys.
type Set map[string]struct{}

// New builds a Set, skipping blank keys.
func New(keys ...string) Set {
	s := make(Set, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			s[k] = struct{}{}
		}
	}
	return s
}

// Has reports whether key is watched.
func (s Set) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Len returns the number of watched keys.
func (s Set) Len() int { return len(s) }

// Sorted returns the keys in lexicographic order.
func (s Set) Sorted() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	return sortutil.SortedKeys(keys)
}

// Merge returns a new Set holding the keys of s and other.
func (s Set) Merge(other Set) Set {
	out := make(Set, len(s)+len(other))
	for k := range s {
		out[k] = struct{}{}
	}
	for k := range other {
		out[k] = struct{}{}
	}
	return out
}

// Load reads a watchlist file: one key per line, blank lines and lines
// starting with '#' ignored. A missing file yields an empty Set.
func Load(path string) (Set, error) {
	if path == "" {
		return Set{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Set{}, nil
		}
		return nil, err
	}
	defer f.Close()
	s, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read watchlist %s: %w", path, err)
	}
	return s, nil
}

// Read parses watchlist lines from r.
func Read(r io.Reader) (Set, error) {
	s := Set{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		s[line] = struct{}{}
	}
	return s, sc.Err()
}
