package summary

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"parcelwatch/internal/state"
)

// Load reads a summary file. A missing file returns (nil, nil) so callers can
// treat it as "no run recorded yet".
func Load(path string) (*Summary, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var s Summary
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("summary %s: %w", path, err)
	}
	return &s, nil
}

// Encode renders s as indented JSON.
func Encode(s *Summary) ([]byte, error) {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Save writes s atomically to path.
func Save(path string, s *Summary) error {
	b, err := Encode(s)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return state.WriteFileAtomic(path, b)
}
