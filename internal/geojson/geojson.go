// Package geojson holds the raw dataset model shared by the fetcher, the
// indexer and the baseline store. A Dataset keeps the exact bytes it was
// parsed from so the baseline can be rotated as a byte-for-byte copy.
package geojson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrMalformed is returned when bytes cannot be read as a FeatureCollection.
var ErrMalformed = errors.New("malformed geojson")

// Feature is a single GeoJSON feature. Geometry is kept undecoded so the
// indexer can canonicalize it; Properties preserves number literals.
type Feature struct {
	Type       string          `json:"type"`
	ID         json.RawMessage `json:"id,omitempty"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

// FeatureCollection is the top-level GeoJSON object.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Name     string    `json:"name,omitempty"`
	Features []Feature `json:"features"`
}

// Dataset pairs a parsed collection with the bytes it came from.
type Dataset struct {
	Collection FeatureCollection
	Raw        []byte
}

// Parse decodes raw bytes. An empty features array is valid; a document that
// is not a single JSON object, or whose "type" is not FeatureCollection, is not.
func Parse(raw []byte) (*Dataset, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fc FeatureCollection
	if err := dec.Decode(&fc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("%w: extra data after document at offset %d", ErrMalformed, dec.InputOffset())
	}
	if fc.Type != "" && fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("%w: unexpected type %q", ErrMalformed, fc.Type)
	}
	if fc.Type == "" && fc.Features == nil {
		return nil, fmt.Errorf("%w: no features member", ErrMalformed)
	}
	return &Dataset{Collection: fc, Raw: raw}, nil
}

// Load reads and parses the file at path.
func Load(path string) (*Dataset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ds, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// New builds a Dataset from a collection, encoding it compactly.
func New(fc FeatureCollection) (*Dataset, error) {
	if fc.Type == "" {
		fc.Type = "FeatureCollection"
	}
	if fc.Features == nil {
		fc.Features = []Feature{}
	}
	b, err := json.Marshal(fc)
	if err != nil {
		return nil, fmt.Errorf("encode feature collection: %w", err)
	}
	return &Dataset{Collection: fc, Raw: b}, nil
}

// Property returns the named property of f, or nil when absent.
func (f Feature) Property(name string) any {
	if f.Properties == nil {
		return nil
	}
	return f.Properties[name]
}
