// Package meta reports build metadata of the running binary.
package meta

import (
	"runtime/debug"
	"strings"
)

// Name is the program name used in User-Agent headers.
const Name = "parcelwatch"

// Version returns the main module version, the short VCS revision for
// untagged builds, or "devel".
func Version() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "devel"
	}
	return versionOf(bi)
}

func versionOf(bi *debug.BuildInfo) string {
	if v := bi.Main.Version; v != "" && v != "(devel)" {
		return v
	}
	var rev string
	dirty := false
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev == "" {
		return "devel"
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if dirty {
		rev += "-dirty"
	}
	return rev
}

// UserAgent identifies outbound HTTP requests.
func UserAgent() string {
	return Name + "/" + strings.TrimPrefix(Version(), "v")
}
