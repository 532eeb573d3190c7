// Package state persists the flat-file state carried between runs: the
// baseline dataset the next run compares against, and the bot's update cursor.
package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"parcelwatch/internal/geojson"
)

// Store loads and commits the baseline dataset.
type Store interface {
	// Load returns the stored baseline, or (nil, nil) when none exists yet.
	Load(ctx context.Context) (*geojson.Dataset, error)
	// Commit replaces the stored baseline with ds.
	Commit(ctx context.Context, ds *geojson.Dataset) error
}

// FileStore keeps the baseline as a byte-for-byte copy of the dataset file.
type FileStore struct {
	Path string
}

// NewFileStore returns a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Load(ctx context.Context) (*geojson.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	ds, err := geojson.Parse(b)
	if err != nil {
		return nil, fmt.Errorf("baseline %s: %w", s.Path, err)
	}
	return ds, nil
}

func (s *FileStore) Commit(ctx context.Context, ds *geojson.Dataset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ds == nil {
		return errors.New("commit: nil dataset")
	}
	return WriteFileAtomic(s.Path, ds.Raw)
}

// MemoryStore is an in-process Store, used by tests and dry runs.
type MemoryStore struct {
	Dataset *geojson.Dataset
	Commits int
}

func (m *MemoryStore) Load(ctx context.Context) (*geojson.Dataset, error) {
	return m.Dataset, ctx.Err()
}

func (m *MemoryStore) Commit(ctx context.Context, ds *geojson.Dataset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.Dataset = ds
	m.Commits++
	return nil
}

// Cursor persists an integer offset (the bot's next update id).
type Cursor struct {
	Path string
}

// Read returns the stored offset. ok is false when the file is absent or empty.
func (c Cursor) Read() (offset int64, ok bool, err error) {
	b, err := os.ReadFile(c.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, err
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("cursor %s: %w", c.Path, err)
	}
	return n, true, nil
}

// Write stores offset.
func (c Cursor) Write(offset int64) error {
	return WriteFileAtomic(c.Path, []byte(strconv.FormatInt(offset, 10)))
}
