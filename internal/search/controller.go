package search

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultDebounce is the quiescence window for typed queries.
const DefaultDebounce = 280 * time.Millisecond

// TabAll is the only tab whose input is debounced.
const TabAll = "all"

// ShouldDebounce reports whether input typed on tab should wait for the
// user to pause.
func ShouldDebounce(tab string) bool {
	return tab == TabAll
}

// ApplyFunc commits a query. Commits are serialized, so it must not call
// back into the controller.
type ApplyFunc func(query string)

// QueryController turns raw input into applied queries.
type QueryController struct {
	debouncer *Debouncer
	location  Location
	apply     ApplyFunc

	seq atomic.Uint64
	mu  sync.Mutex
}

// NewQueryController; location may be nil.
func NewQueryController(delay time.Duration, location Location, apply ApplyFunc) *QueryController {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &QueryController{
		debouncer: NewDebouncer(delay),
		location:  location,
		apply:     apply,
	}
}

// Submit handles one input change. Blank input clears synchronously and
// drops any pending update. Otherwise the trimmed text is applied after the
// debounce window, or right away when shouldDebounce is false.
func (c *QueryController) Submit(text string, shouldDebounce bool) {
	trimmed := strings.TrimSpace(text)
	seq := c.seq.Add(1)

	if trimmed == "" {
		c.debouncer.Cancel()
		c.commit(seq, "")
		return
	}
	if shouldDebounce {
		c.debouncer.Debounce(func() { c.commit(seq, trimmed) })
		return
	}
	c.debouncer.Immediate(func() { c.commit(seq, trimmed) })
}

// Cancel drops a pending debounced update without applying anything.
func (c *QueryController) Cancel() {
	c.seq.Add(1)
	c.debouncer.Cancel()
}

// Pending reports whether a debounced update is scheduled.
func (c *QueryController) Pending() bool {
	return c.debouncer.Pending()
}

// commit applies query unless a later Submit or Cancel superseded seq.
func (c *QueryController) commit(seq uint64, query string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.seq.Load() {
		return
	}
	if c.location != nil {
		c.location.SetTerm(query)
	}
	if c.apply != nil {
		c.apply(query)
	}
}
