// Package diff renders a parcel's recorded field changes as a classic
// unified patch using github.com/pmezard/go-difflib/difflib, so chat and
// HTTP readers see "-STREET: Main St" / "+STREET: 1st St" hunks.
package diff

import (
	"fmt"
	"strconv"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"

	"parcelwatch/internal/summary"
)

// Options controls patch generation behavior.
type Options struct {
	// Context controls the number of context lines in unified hunks.
	// If 0, default to 3.
	Context int

	// MaxBytes is a guardrail on output size. When exceeded, a placeholder
	// patch is returned and oversize=true. 0 means "no limit".
	MaxBytes int
}

// Fields produces a unified patch of the changed fields of one parcel. Only
// changed fields appear; absent values render as "<absent>".
func Fields(c summary.Change, opt Options) (body string, oversize bool) {
	from, to := "previous/"+c.Key, "current/"+c.Key
	if len(c.Changes) == 0 {
		return header(from, to), false
	}
	ctx := opt.Context
	if ctx <= 0 {
		ctx = 3
	}
	a := make([]string, 0, len(c.Changes))
	b := make([]string, 0, len(c.Changes))
	for _, fc := range c.Changes {
		a = append(a, line(fc.Field, fc.Before))
		b = append(b, line(fc.Field, fc.After))
	}

	u := difflib.UnifiedDiff{
		A:        a,
		B:        b,
		FromFile: from,
		ToFile:   to,
		Context:  ctx,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil || s == "" {
		return header(u.FromFile, u.ToFile), false
	}
	if opt.MaxBytes > 0 && len(s) > opt.MaxBytes {
		return omitted(u.FromFile, u.ToFile), true
	}
	return s, false
}

// Describe renders changes as `- FIELD: "before" -> "after"` lines.
func Describe(c summary.Change) []string {
	out := make([]string, 0, len(c.Changes))
	for _, fc := range c.Changes {
		out = append(out, fmt.Sprintf("- %s: %s -> %s", fc.Field, quote(fc.Before), quote(fc.After)))
	}
	return out
}

func line(field string, v *string) string {
	if v == nil {
		return field + ": <absent>\n"
	}
	return field + ": " + strings.ReplaceAll(*v, "\n", " ") + "\n"
}

func quote(v *string) string {
	if v == nil {
		return "(absent)"
	}
	return strconv.Quote(*v)
}

func header(aName, bName string) string {
	return fmt.Sprintf("--- %s\n+++ %s\n", aName, bName)
}

// omitted returns a compact placeholder when size limits are exceeded.
func omitted(aName, bName string) string {
	return header(aName, bName) + "@@\n# diff omitted (oversize)\n"
}
