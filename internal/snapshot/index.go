package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"

	"parcelwatch/internal/geojson"
)

// Options controls which property identifies a parcel and which attributes
// are tracked.
type Options struct {
	KeyField string
	Fields   []string
}

func (o *Options) defaults() {
	if o.KeyField == "" {
		o.KeyField = DefaultKeyField
	}
	if o.Fields == nil {
		o.Fields = DefaultFields
	}
}

// Index builds a Snapshot from a feature collection. Features without a key
// are skipped; a repeated key overwrites the earlier fingerprint. Both cases
// are counted in the returned Stats.
func Index(fc geojson.FeatureCollection, opt Options) (Snapshot, Stats) {
	opt.defaults()
	snap := make(Snapshot, len(fc.Features))
	st := Stats{Features: len(fc.Features)}

	for _, ft := range fc.Features {
		key, ok := resolveKey(ft.Property(opt.KeyField))
		if !ok {
			st.Skipped++
			continue
		}
		if _, dup := snap[key]; dup {
			st.Duplicates++
		}
		attrs := make(map[string]Value, len(opt.Fields))
		for _, name := range opt.Fields {
			attrs[name] = scalarValue(ft.Property(name))
		}
		snap[key] = Fingerprint{
			Key:         key,
			ShapeDigest: ShapeDigest(ft.Geometry),
			Attributes:  attrs,
		}
	}
	return snap, st
}

// ShapeDigest returns the sha256 hex digest of the canonical encoding of a
// geometry payload. Object keys are sorted, whitespace dropped and numbers
// normalised, so 1.0 and 1e0 hash the same. A payload that is not valid JSON
// is hashed as-is.
func ShapeDigest(geometry json.RawMessage) string {
	sum := sha256.Sum256(Canonical(geometry))
	return hex.EncodeToString(sum[:])
}

// Canonical re-encodes raw JSON with sorted keys and no whitespace. Numbers
// are re-encoded through float64 in their shortest form; literals outside the
// float64 range are kept as written. Empty input encodes as null.
func Canonical(raw json.RawMessage) []byte {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte("null")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return raw
	}
	b, err := encodeCompact(normalizeNumbers(v))
	if err != nil {
		return raw
	}
	return b
}

func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if f, err := strconv.ParseFloat(x.String(), 64); err == nil {
			return f
		}
		return x
	case []any:
		for i := range x {
			x[i] = normalizeNumbers(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = normalizeNumbers(x[k])
		}
		return x
	}
	return v
}

func encodeCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// KeyOf returns the key of ft under keyField, resolved as Index does.
func KeyOf(ft geojson.Feature, keyField string) (string, bool) {
	return resolveKey(ft.Property(keyField))
}

// PropertyValue returns the named property of ft as an optional scalar.
func PropertyValue(ft geojson.Feature, name string) Value {
	return scalarValue(ft.Property(name))
}

// resolveKey turns a key property into its string form. Null, empty strings
// and booleans do not identify a parcel.
func resolveKey(v any) (string, bool) {
	switch k := v.(type) {
	case nil, bool:
		return "", false
	case string:
		return k, k != ""
	default:
		s := scalarValue(k)
		return s.Text, s.Present && s.Text != ""
	}
}

// scalarValue renders a decoded property value. JSON null is absent.
func scalarValue(v any) Value {
	switch x := v.(type) {
	case nil:
		return Value{}
	case string:
		return Some(x)
	case json.Number:
		return Some(x.String())
	case bool:
		return Some(strconv.FormatBool(x))
	case float64:
		return Some(strconv.FormatFloat(x, 'f', -1, 64))
	case int:
		return Some(strconv.Itoa(x))
	case int64:
		return Some(strconv.FormatInt(x, 10))
	default:
		b, err := encodeCompact(x)
		if err != nil {
			return Value{}
		}
		return Some(string(b))
	}
}
