// Package arcgis fetches parcel polygons from ArcGIS REST query endpoints:
// a city boundary from one layer, then every parcel intersecting it from
// another, exported as a GeoJSON FeatureCollection.
package arcgis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"parcelwatch/internal/geojson"
	"parcelwatch/internal/meta"
)

const (
	DefaultBoundaryURL = "https://maps.webercountyutah.gov/arcgis/rest/services/cities/weber_eoc_city_boundaries/MapServer/0/query"
	DefaultParcelURL   = "https://maps.webercountyutah.gov/arcgis/rest/services/assessor/Assessed_Values_Map/FeatureServer/0/query"
	DefaultCity        = "Plain City"
	DefaultDataset     = "plain_city_parcels"
	DefaultChunkSize   = 400

	// DefaultInSR is the boundary layer's spatial reference
	// (NAD83 / Utah Central ftUS).
	DefaultInSR = "3560"
)

// DefaultOutFields are requested for every parcel.
var DefaultOutFields = []string{
	"OBJECTID",
	"PARCEL_ID",
	"STREET",
	"CITY_STATE",
	"ZIPCODE",
	"PROP_STREET",
	"PROP_CITY",
	"PROP_ZIP",
	"NAME_ONE",
}

// ErrNoBoundary is returned when the boundary layer has no feature for the city.
var ErrNoBoundary = errors.New("arcgis: boundary not found")

// ServiceError is an ArcGIS `{"error":{...}}` payload.
type ServiceError struct {
	Code    int
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("arcgis: %d %s", e.Code, e.Message)
}

// Config selects the layers and query parameters.
type Config struct {
	BoundaryURL string
	ParcelURL   string
	City        string
	Dataset     string // FeatureCollection name
	InSR        string
	OutFields   []string
	ChunkSize   int
	Pause       time.Duration // between chunk requests
}

func (c *Config) defaults() {
	if c.BoundaryURL == "" {
		c.BoundaryURL = DefaultBoundaryURL
	}
	if c.ParcelURL == "" {
		c.ParcelURL = DefaultParcelURL
	}
	if c.City == "" {
		c.City = DefaultCity
	}
	if c.Dataset == "" {
		c.Dataset = DefaultDataset
	}
	if c.InSR == "" {
		c.InSR = DefaultInSR
	}
	if len(c.OutFields) == 0 {
		c.OutFields = DefaultOutFields
	}
	if c.ChunkSize < 1 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Pause < 0 {
		c.Pause = 0
	}
}

// Client queries the configured layers.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// New returns a Client. A nil httpClient uses a 60s-timeout default.
func New(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	cfg.defaults()
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger}
}

// Boundary returns the raw geometry of the configured city.
func (c *Client) Boundary(ctx context.Context) (json.RawMessage, error) {
	res, err := c.post(ctx, c.cfg.BoundaryURL, url.Values{
		"where":          {fmt.Sprintf("NAME='%s'", strings.ReplaceAll(c.cfg.City, "'", "''"))},
		"outFields":      {"NAME"},
		"returnGeometry": {"true"},
		"f":              {"json"},
	})
	if err != nil {
		return nil, err
	}
	geom := res.Get("features.0.geometry")
	if !geom.Exists() {
		return nil, fmt.Errorf("%w: %q", ErrNoBoundary, c.cfg.City)
	}
	return json.RawMessage(geom.Raw), nil
}

// ObjectIDs returns the sorted ids of parcels intersecting geom.
func (c *Client) ObjectIDs(ctx context.Context, geom json.RawMessage) ([]int64, error) {
	res, err := c.post(ctx, c.cfg.ParcelURL, url.Values{
		"where":         {"1=1"},
		"returnIdsOnly": {"true"},
		"geometryType":  {"esriGeometryPolygon"},
		"geometry":      {string(geom)},
		"spatialRel":    {"esriSpatialRelIntersects"},
		"inSR":          {c.cfg.InSR},
		"f":             {"json"},
	})
	if err != nil {
		return nil, err
	}
	arr := res.Get("objectIds").Array()
	ids := make([]int64, 0, len(arr))
	for _, v := range arr {
		ids = append(ids, v.Int())
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Features fetches the features for ids in chunks, in WGS84.
func (c *Client) Features(ctx context.Context, ids []int64) ([]geojson.Feature, error) {
	out := make([]geojson.Feature, 0, len(ids))
	size := c.cfg.ChunkSize
	for i := 0; i < len(ids); i += size {
		end := min(i+size, len(ids))
		chunk := make([]string, 0, end-i)
		for _, id := range ids[i:end] {
			chunk = append(chunk, strconv.FormatInt(id, 10))
		}
		res, err := c.post(ctx, c.cfg.ParcelURL, url.Values{
			"objectIds":      {strings.Join(chunk, ",")},
			"outFields":      {strings.Join(c.cfg.OutFields, ",")},
			"returnGeometry": {"true"},
			"outSR":          {"4326"},
			"f":              {"geojson"},
		})
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i/size+1, err)
		}
		feats, err := decodeFeatures(res.Get("features"))
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i/size+1, err)
		}
		out = append(out, feats...)
		c.logger.Info("arcgis: fetched chunk", "chunk", i/size+1, "features", len(feats), "total", len(out))

		if c.cfg.Pause > 0 && end < len(ids) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.cfg.Pause):
			}
		}
	}
	return out, nil
}

// FetchCollection runs boundary, id and feature queries and returns the
// resulting dataset.
func (c *Client) FetchCollection(ctx context.Context) (*geojson.Dataset, error) {
	c.logger.Info("arcgis: loading boundary", "city", c.cfg.City)
	geom, err := c.Boundary(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := c.ObjectIDs(ctx, geom)
	if err != nil {
		return nil, fmt.Errorf("object ids: %w", err)
	}
	c.logger.Info("arcgis: parcels intersecting boundary", "count", len(ids))
	feats, err := c.Features(ctx, ids)
	if err != nil {
		return nil, err
	}
	return geojson.New(geojson.FeatureCollection{
		Type:     "FeatureCollection",
		Name:     c.cfg.Dataset,
		Features: feats,
	})
}

func decodeFeatures(r gjson.Result) ([]geojson.Feature, error) {
	if !r.Exists() {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(r.Raw))
	dec.UseNumber()
	var feats []geojson.Feature
	if err := dec.Decode(&feats); err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}
	return feats, nil
}

func (c *Client) post(ctx context.Context, endpoint string, form url.Values) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", meta.UserAgent())
	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read %s: %w", endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("%s: http %d", endpoint, resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%s: invalid JSON response", endpoint)
	}
	res := gjson.ParseBytes(body)
	if e := res.Get("error"); e.Exists() {
		return gjson.Result{}, &ServiceError{Code: int(e.Get("code").Int()), Message: e.Get("message").String()}
	}
	return res, nil
}
