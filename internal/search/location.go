package search

import (
	"net/url"
	"sync"
)

// TermParam mirrors the active search text in the page query string.
const TermParam = "term"

// Location is the query-string side channel of the search text.
type Location interface {
	Term() string
	// SetTerm writes term, or removes the parameter when term is empty.
	SetTerm(term string)
}

// MemoryLocation keeps the query string in memory.
type MemoryLocation struct {
	mu     sync.Mutex
	values url.Values
}

// NewMemoryLocation parses rawQuery; a malformed query starts empty.
func NewMemoryLocation(rawQuery string) *MemoryLocation {
	v, err := url.ParseQuery(rawQuery)
	if err != nil {
		v = url.Values{}
	}
	return &MemoryLocation{values: v}
}

func (l *MemoryLocation) Term() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.values.Get(TermParam)
}

func (l *MemoryLocation) SetTerm(term string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if term == "" {
		l.values.Del(TermParam)
		return
	}
	l.values.Set(TermParam, term)
}

// Has reports whether the term parameter is present at all.
func (l *MemoryLocation) Has() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.values.Has(TermParam)
}

// Encode returns the current query string.
func (l *MemoryLocation) Encode() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.values.Encode()
}
