// Package snapshot defines the keyed, comparable representation of a parcel
// dataset and the indexer that builds it.
package snapshot

import "parcelwatch/internal/sortutil"

// DefaultKeyField is the property that identifies a parcel.
const DefaultKeyField = "PARCEL_ID"

// DefaultFields is the attribute set tracked when none is configured.
var DefaultFields = []string{
	"STREET",
	"CITY_STATE",
	"ZIPCODE",
	"PROP_STREET",
	"PROP_CITY",
	"PROP_ZIP",
	"NAME_ONE",
}

// Value is an optional scalar attribute. The zero Value is absent, which is
// distinct from a present empty string.
type Value struct {
	Text    string
	Present bool
}

// Some returns a present Value.
func Some(s string) Value { return Value{Text: s, Present: true} }

// Ptr returns nil for an absent Value and a pointer to its text otherwise.
// It is the wire form used in summaries (JSON null vs string).
func (v Value) Ptr() *string {
	if !v.Present {
		return nil
	}
	s := v.Text
	return &s
}

func (v Value) String() string {
	if !v.Present {
		return "<absent>"
	}
	return v.Text
}

// Fingerprint is the derived summary of one parcel at one point in time.
type Fingerprint struct {
	Key         string
	ShapeDigest string
	Attributes  map[string]Value
}

// Attr returns the attribute value for name (absent when untracked).
func (f Fingerprint) Attr(name string) Value {
	return f.Attributes[name]
}

// Snapshot maps a parcel key to its fingerprint. It is never mutated after
// Index returns it.
type Snapshot map[string]Fingerprint

// Keys returns the snapshot keys in lexicographic order.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	return sortutil.SortedKeys(keys)
}

// Stats reports entities that did not make it into the snapshot one-to-one.
type Stats struct {
	Features   int // features seen
	Skipped    int // features without a resolvable key
	Duplicates int // features whose key was already indexed (last one wins)
}
