// Package catalog answers parcel lookups for the query bot and the HTTP API.
// Every call re-reads the files on disk, so a detect run in another process
// is visible on the next query.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"parcelwatch/internal/geojson"
	"parcelwatch/internal/snapshot"
	"parcelwatch/internal/summary"
	"parcelwatch/internal/watchlist"
)

// AddressField is matched by Search.
const AddressField = "PROP_STREET"

// DisplayFields are shown, in order, when a parcel is rendered.
var DisplayFields = []string{
	"PARCEL_ID",
	"NAME_ONE",
	"STREET",
	"CITY_STATE",
	"ZIPCODE",
	"PROP_STREET",
	"PROP_CITY",
	"PROP_ZIP",
}

// Parcel is one feature's identity and properties.
type Parcel struct {
	Key        string         `json:"key"`
	Properties map[string]any `json:"properties"`
}

// Text returns the named property as text, "" when absent.
func (p Parcel) Text(name string) string {
	return snapshot.PropertyValue(geojson.Feature{Properties: p.Properties}, name).Text
}

// Source is the read side used by the bot and the API.
type Source interface {
	// Parcel returns the parcel with key, or nil when there is none.
	Parcel(key string) (*Parcel, error)
	// Search returns up to limit parcels whose address contains fragment
	// (case-insensitive), and the total number of matches.
	Search(fragment string, limit int) ([]Parcel, int, error)
	// Summary returns the latest summary, or nil when none was written yet.
	Summary() (*summary.Summary, error)
	// Watchlist returns the watched keys.
	Watchlist() (watchlist.Set, error)
}

// Files is a Source over the current dataset, summary and watchlist files.
type Files struct {
	ParcelsPath   string
	SummaryPath   string
	WatchlistPath string
	Inline        watchlist.Set // keys configured inline, merged with the file
	KeyField      string
}

var _ Source = (*Files)(nil)

func (f *Files) keyField() string {
	if f.KeyField == "" {
		return snapshot.DefaultKeyField
	}
	return f.KeyField
}

func (f *Files) features() ([]geojson.Feature, error) {
	ds, err := geojson.Load(f.ParcelsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return ds.Collection.Features, nil
}

func (f *Files) Parcel(key string) (*Parcel, error) {
	key = strings.TrimSpace(key)
	feats, err := f.features()
	if err != nil {
		return nil, err
	}
	for _, ft := range feats {
		if k, ok := snapshot.KeyOf(ft, f.keyField()); ok && k == key {
			return &Parcel{Key: k, Properties: ft.Properties}, nil
		}
	}
	return nil, nil
}

func (f *Files) Search(fragment string, limit int) ([]Parcel, int, error) {
	q := strings.ToLower(strings.TrimSpace(fragment))
	if q == "" {
		return nil, 0, nil
	}
	feats, err := f.features()
	if err != nil {
		return nil, 0, err
	}
	var out []Parcel
	total := 0
	for _, ft := range feats {
		addr := snapshot.PropertyValue(ft, AddressField).Text
		if !strings.Contains(strings.ToLower(addr), q) {
			continue
		}
		total++
		if limit > 0 && len(out) >= limit {
			continue
		}
		k, _ := snapshot.KeyOf(ft, f.keyField())
		out = append(out, Parcel{Key: k, Properties: ft.Properties})
	}
	return out, total, nil
}

func (f *Files) Summary() (*summary.Summary, error) {
	s, err := summary.Load(f.SummaryPath)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	return s, nil
}

func (f *Files) Watchlist() (watchlist.Set, error) {
	w, err := watchlist.Load(f.WatchlistPath)
	if err != nil {
		return nil, err
	}
	return w.Merge(f.Inline), nil
}
