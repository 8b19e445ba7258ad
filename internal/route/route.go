// Package route decides whether a procedure path may be called without a
// session.
package route

import "strings"

// Visibility of a procedure path.
type Visibility int

const (
	Private Visibility = iota
	Public
)

func (v Visibility) String() string {
	if v == Public {
		return "public"
	}
	return "private"
}

// publicMarker is matched case-sensitively anywhere in the path.
const publicMarker = "public"

// Classify is total: any path without the marker, including "", is private.
func Classify(path string) Visibility {
	if strings.Contains(path, publicMarker) {
		return Public
	}
	return Private
}

// AllPublic reports whether a batch is non-empty and every path in it is
// public.
func AllPublic(paths []string) bool {
	if len(paths) == 0 {
		return false
	}
	for _, p := range paths {
		if Classify(p) != Public {
			return false
		}
	}
	return true
}

// SplitBatch splits a comma separated batch path.
func SplitBatch(raw string) []string {
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
