package search

import (
	"context"
	"strings"
	"sync"
	"time"

	"exbuddy/internal/common/logger"
	"exbuddy/internal/models"
)

// SearchFetcher runs a live search for a query.
type SearchFetcher interface {
	Search(ctx context.Context, query string) ([]models.Exercise, error)
}

// DirectoryLoader fetches the full exercise directory.
type DirectoryLoader interface {
	Directory(ctx context.Context) ([]models.Exercise, error)
}

// View is what subscribers render.
type View struct {
	Query     string
	Exercises []models.Exercise
	Filters   []string
}

type subscriber struct {
	id uint64
	fn func(View)
}

// Store owns the search state: applied query, live results, directory and
// filters. Views are delivered to subscribers on a single goroutine, in
// publish order, with no store lock held.
type Store struct {
	mu      sync.Mutex
	query   string
	live    *Results
	filters *FilterSet
	closed  bool
	// queries with a fetch running
	inflight map[string]bool
	subs     []subscriber
	nextSub  uint64
	queue    []View
	wake     chan struct{}

	fetcher    SearchFetcher
	loader     DirectoryLoader
	cache      QueryCache
	directory  *DirectoryCache
	location   Location
	controller *QueryController
	debounce   time.Duration
	logger     logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Store)

func WithCache(c QueryCache) Option { return func(s *Store) { s.cache = c } }

func WithDirectoryCache(d *DirectoryCache) Option { return func(s *Store) { s.directory = d } }

// WithLocation mirrors the applied query into loc. A term already present
// in loc becomes the initial query.
func WithLocation(loc Location) Option { return func(s *Store) { s.location = loc } }

func WithDebounce(d time.Duration) Option { return func(s *Store) { s.debounce = d } }

func WithLogger(l logger.Logger) Option { return func(s *Store) { s.logger = l } }

// NewStore starts the store's delivery goroutine; call Close to stop it.
func NewStore(fetcher SearchFetcher, loader DirectoryLoader, opts ...Option) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		filters:  NewFilterSet(),
		inflight: make(map[string]bool),
		wake:     make(chan struct{}, 1),
		fetcher:  fetcher,
		loader:   loader,
		debounce: DefaultDebounce,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = NewMemoryCache(100)
	}
	if s.directory == nil {
		s.directory = &DirectoryCache{}
	}
	s.logger = logger.ForComponent(s.logger, "search-store")
	s.controller = NewQueryController(s.debounce, s.location, s.applyQuery)

	s.wg.Add(1)
	go s.dispatch()

	if s.location != nil {
		if term := strings.TrimSpace(s.location.Term()); term != "" {
			s.controller.Submit(term, false)
		}
	}
	return s
}

func (s *Store) Query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// Visible is the reconciled list for the current state.
func (s *Store) Visible() []models.Exercise {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Reconcile(s.query, s.live, s.directory.Get(), s.cache)
}

// Filters returns the active filter tags in activation order.
func (s *Store) Filters() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters.Active()
}

// View returns the current snapshot.
func (s *Store) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// UpdateQuery submits raw input. See QueryController.Submit.
func (s *Store) UpdateQuery(text string, debounce bool) {
	s.controller.Submit(text, debounce)
}

// CancelPending drops a debounced query that has not been applied yet.
func (s *Store) CancelPending() {
	s.controller.Cancel()
}

// UpdateFilters replaces the active filters. Unknown tags are dropped.
func (s *Store) UpdateFilters(tags []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.filters.Clear()
	for _, t := range tags {
		if !KnownTag(t) {
			s.logger.Warn("Ignoring unknown filter tag", map[string]interface{}{"tag": t})
			continue
		}
		s.filters.Set(t, true)
	}
	s.publishLocked()
}

// ToggleFilter flips one tag and returns its new state.
func (s *Store) ToggleFilter(tag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !KnownTag(tag) {
		return false
	}
	on := s.filters.Toggle(tag)
	s.publishLocked()
	return on
}

// Subscribe registers fn for every future view and returns a func that
// removes it.
func (s *Store) Subscribe(fn func(View)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscriber{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Store) SetDirectory(entries []models.Exercise) {
	s.directory.Set(entries)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.publishLocked()
}

// LoadDirectory fetches the directory through the loader and publishes it.
func (s *Store) LoadDirectory(ctx context.Context) error {
	entries, err := s.loader.Directory(ctx)
	if err != nil {
		s.logger.Warn("Failed to load exercise directory", map[string]interface{}{"error": err.Error()})
		return err
	}
	s.SetDirectory(entries)
	return nil
}

// Close cancels pending updates and in-flight fetches and waits for the
// store's goroutines to exit. It must not be called from a subscriber.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.controller.Cancel()
	s.cancel()
	s.wg.Wait()
}

// applyQuery is the controller's commit target.
func (s *Store) applyQuery(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	// same query again only refetches when the last fetch left nothing
	if query == s.query && (query == "" || s.live != nil || s.inflight[query]) {
		return
	}
	s.query = query
	s.live = nil
	s.publishLocked()

	if query != "" && !s.inflight[query] {
		s.startFetchLocked(query)
	}
}

func (s *Store) startFetchLocked(query string) {
	s.inflight[query] = true
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		entries, err := s.fetcher.Search(s.ctx, query)
		if err != nil {
			s.mu.Lock()
			delete(s.inflight, query)
			s.mu.Unlock()
			if s.ctx.Err() == nil {
				s.logger.Warn("Live search failed", map[string]interface{}{
					"query": query,
					"error": err.Error(),
				})
			}
			return
		}
		if entries == nil {
			entries = []models.Exercise{}
		}
		s.cache.Put(query, entries)

		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.inflight, query)
		if s.closed || s.query != query {
			// superseded; the result stays cached for when query returns
			return
		}
		s.live = &Results{Query: query, Entries: entries}
		s.publishLocked()
	}()
}

func (s *Store) viewLocked() View {
	return View{
		Query:     s.query,
		Exercises: Reconcile(s.query, s.live, s.directory.Get(), s.cache),
		Filters:   s.filters.Active(),
	}
}

func (s *Store) publishLocked() {
	s.queue = append(s.queue, s.viewLocked())
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Store) dispatch() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		}
		for {
			s.mu.Lock()
			if len(s.queue) == 0 || s.closed {
				s.mu.Unlock()
				break
			}
			view := s.queue[0]
			s.queue = s.queue[1:]
			subs := append([]subscriber(nil), s.subs...)
			s.mu.Unlock()

			for _, sub := range subs {
				sub.fn(view)
			}
		}
	}
}
