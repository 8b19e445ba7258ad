package search

import (
	"strings"

	"exbuddy/internal/models"
)

// Results are live search results tagged with the query that produced them.
type Results struct {
	Query   string
	Entries []models.Exercise
}

// Reconcile picks what to show for query:
//   - the whole directory for an empty query
//   - a name filter over the directory when the live search came back empty
//   - otherwise the live results, then the cached results for query
//
// Live results for another query count as undefined. The returned slice is
// always a fresh copy, never the caller's directory or cached slice.
func Reconcile(query string, live *Results, directory []models.Exercise, cache QueryCache) []models.Exercise {
	if query == "" {
		return cloneEntries(directory)
	}

	if live != nil && live.Query != query {
		live = nil
	}
	if live != nil && len(live.Entries) == 0 {
		return FilterByName(directory, query)
	}
	if live != nil {
		return cloneEntries(live.Entries)
	}
	if cache != nil {
		if cached, ok := cache.Get(query); ok {
			return cloneEntries(cached)
		}
	}
	return []models.Exercise{}
}

// FilterByName keeps entries whose name contains query, ignoring case.
func FilterByName(directory []models.Exercise, query string) []models.Exercise {
	needle := strings.ToLower(query)
	out := []models.Exercise{}
	for _, ex := range directory {
		if strings.Contains(strings.ToLower(ex.Name), needle) {
			out = append(out, ex)
		}
	}
	return out
}

func cloneEntries(in []models.Exercise) []models.Exercise {
	out := make([]models.Exercise, len(in))
	copy(out, in)
	return out
}
