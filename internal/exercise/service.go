package exercise

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"exbuddy/internal/common/errors"
	"exbuddy/internal/common/logger"
	"exbuddy/internal/common/validation"
	"exbuddy/internal/models"
	"exbuddy/internal/procedure"
	"exbuddy/internal/reqctx"
)

const (
	PathDirectory = "exercise.public.directory"
	PathSearch    = "exercise.public.search_exercises"
)

type Searcher interface {
	Search(ctx context.Context, query string) ([]models.Exercise, error)
}

// ResultCache is the cache-aside store in front of the directory and search.
type ResultCache interface {
	Directory(ctx context.Context) ([]models.Exercise, bool, error)
	SetDirectory(ctx context.Context, entries []models.Exercise) error
	Search(ctx context.Context, query string) ([]models.Exercise, bool, error)
	SetSearch(ctx context.Context, query string, entries []models.Exercise) error
}

type SearchInput struct {
	Query string `json:"query"`
}

type Service struct {
	repo   models.ExerciseRepository
	index  Searcher
	cache  ResultCache
	logger logger.Logger
}

// NewService; cache may be nil.
func NewService(repo models.ExerciseRepository, index Searcher, cache ResultCache, log logger.Logger) *Service {
	return &Service{
		repo:   repo,
		index:  index,
		cache:  cache,
		logger: logger.ForComponent(log, "exercise-service"),
	}
}

// Directory returns every exercise ordered by name.
func (s *Service) Directory(ctx context.Context) ([]models.Exercise, error) {
	if s.cache != nil {
		entries, ok, err := s.cache.Directory(ctx)
		if err != nil {
			s.logger.Warn("Directory cache read failed", map[string]interface{}{"error": err.Error()})
		} else if ok {
			return entries, nil
		}
	}

	entries, err := s.repo.ListDirectory(ctx)
	if err != nil {
		return nil, errors.NewInternalError("Failed to load exercise directory", err, nil)
	}

	if s.cache != nil {
		if err := s.cache.SetDirectory(ctx, entries); err != nil {
			s.logger.Warn("Directory cache write failed", map[string]interface{}{"error": err.Error()})
		}
	}
	return entries, nil
}

// Search runs a live search. A blank query returns an empty list without
// touching the index.
func (s *Service) Search(ctx context.Context, query string) ([]models.Exercise, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.Exercise{}, nil
	}

	if s.cache != nil {
		entries, ok, err := s.cache.Search(ctx, query)
		if err != nil {
			s.logger.Warn("Search cache read failed", map[string]interface{}{"error": err.Error(), "query": query})
		} else if ok {
			return entries, nil
		}
	}

	entries, err := s.index.Search(ctx, query)
	if err != nil {
		return nil, errors.NewInternalError("Exercise search failed", err, map[string]interface{}{"query": query})
	}

	if s.cache != nil {
		if err := s.cache.SetSearch(ctx, query, entries); err != nil {
			s.logger.Warn("Search cache write failed", map[string]interface{}{"error": err.Error(), "query": query})
		}
	}
	return entries, nil
}

// Indexer is implemented by SearchIndex.
type Indexer interface {
	Sync(ctx context.Context, entries []models.Exercise) error
}

// Reindex copies the Postgres directory into the search index and refreshes
// the cached directory.
func (s *Service) Reindex(ctx context.Context, idx Indexer) (int, error) {
	entries, err := s.repo.ListDirectory(ctx)
	if err != nil {
		return 0, fmt.Errorf("load directory: %w", err)
	}
	if err := idx.Sync(ctx, entries); err != nil {
		return 0, fmt.Errorf("sync index: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.SetDirectory(ctx, entries); err != nil {
			s.logger.Warn("Directory cache write failed", map[string]interface{}{"error": err.Error()})
		}
	}
	s.logger.Info("Exercise index synced", map[string]interface{}{"count": len(entries)})
	return len(entries), nil
}

func searchSchema(maxLen int) *validation.Schema {
	return validation.MustCompile(fmt.Sprintf(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "maxLength": %d}
		},
		"required": ["query"]
	}`, maxLen))
}

// Register adds the public exercise procedures.
func (s *Service) Register(reg *procedure.Registry, maxQueryLen int) {
	reg.Query(PathDirectory, nil, func(ctx context.Context, _ *reqctx.Context, _ json.RawMessage) (interface{}, error) {
		return s.Directory(ctx)
	})

	reg.Query(PathSearch, searchSchema(maxQueryLen), func(ctx context.Context, _ *reqctx.Context, input json.RawMessage) (interface{}, error) {
		var in SearchInput
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, errors.NewBadRequestError(fmt.Sprintf("invalid input: %v", err))
		}
		return s.Search(ctx, in.Query)
	})
}
