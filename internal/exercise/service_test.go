package exercise

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"

	"exbuddy/internal/common/errors"
	"exbuddy/internal/common/logger"
	"exbuddy/internal/models"
	"exbuddy/internal/procedure"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	entries []models.Exercise
	err     error
	calls   atomic.Int32
}

func (f *fakeRepo) ListDirectory(context.Context) ([]models.Exercise, error) {
	f.calls.Add(1)
	return f.entries, f.err
}

type fakeSearcher struct {
	results []models.Exercise
	err     error
	calls   atomic.Int32
}

func (f *fakeSearcher) Search(context.Context, string) ([]models.Exercise, error) {
	f.calls.Add(1)
	return f.results, f.err
}

type memCache struct {
	directory []models.Exercise
	search    map[string][]models.Exercise
	readErr   error
}

func newMemCache() *memCache { return &memCache{search: map[string][]models.Exercise{}} }

func (m *memCache) Directory(context.Context) ([]models.Exercise, bool, error) {
	if m.readErr != nil {
		return nil, false, m.readErr
	}
	return m.directory, m.directory != nil, nil
}

func (m *memCache) SetDirectory(_ context.Context, e []models.Exercise) error {
	m.directory = e
	return nil
}

func (m *memCache) Search(_ context.Context, q string) ([]models.Exercise, bool, error) {
	if m.readErr != nil {
		return nil, false, m.readErr
	}
	e, ok := m.search[strings.ToLower(q)]
	return e, ok, nil
}

func (m *memCache) SetSearch(_ context.Context, q string, e []models.Exercise) error {
	m.search[strings.ToLower(q)] = e
	return nil
}

type fakeIndexer struct{ synced []models.Exercise }

func (f *fakeIndexer) Sync(_ context.Context, e []models.Exercise) error {
	f.synced = e
	return nil
}

var directory = []models.Exercise{
	{ID: "1", Name: "Bench Press", SetIDs: []string{}},
	{ID: "2", Name: "Squat", SetIDs: []string{}},
}

func TestService_DirectoryCacheAside(t *testing.T) {
	repo := &fakeRepo{entries: directory}
	cache := newMemCache()
	svc := NewService(repo, &fakeSearcher{}, cache, logger.NewTestLogger(t))

	first, err := svc.Directory(context.Background())
	require.NoError(t, err)
	second, err := svc.Directory(context.Background())
	require.NoError(t, err)

	assert.Equal(t, directory, first)
	assert.Equal(t, directory, second)
	assert.Equal(t, int32(1), repo.calls.Load())
}

func TestService_DirectoryCacheFailureFallsThrough(t *testing.T) {
	repo := &fakeRepo{entries: directory}
	cache := newMemCache()
	cache.readErr = assert.AnError
	svc := NewService(repo, &fakeSearcher{}, cache, logger.NewTestLogger(t))

	got, err := svc.Directory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, directory, got)
}

func TestService_DirectoryRepoError(t *testing.T) {
	svc := NewService(&fakeRepo{err: assert.AnError}, &fakeSearcher{}, nil, logger.NewTestLogger(t))

	_, err := svc.Directory(context.Background())
	se, ok := errors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeInternalServerError, se.Code)
}

func TestService_SearchBlankSkipsIndex(t *testing.T) {
	idx := &fakeSearcher{}
	svc := NewService(&fakeRepo{}, idx, nil, logger.NewTestLogger(t))

	got, err := svc.Search(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, []models.Exercise{}, got)
	assert.Zero(t, idx.calls.Load())
}

func TestService_SearchCachesByQuery(t *testing.T) {
	idx := &fakeSearcher{results: directory[:1]}
	svc := NewService(&fakeRepo{}, idx, newMemCache(), logger.NewTestLogger(t))

	_, err := svc.Search(context.Background(), "Bench")
	require.NoError(t, err)
	got, err := svc.Search(context.Background(), "bench")
	require.NoError(t, err)

	assert.Equal(t, directory[:1], got)
	assert.Equal(t, int32(1), idx.calls.Load())
}

func TestService_SearchIndexError(t *testing.T) {
	svc := NewService(&fakeRepo{}, &fakeSearcher{err: assert.AnError}, nil, logger.NewTestLogger(t))

	_, err := svc.Search(context.Background(), "row")
	se, ok := errors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeInternalServerError, se.Code)
	assert.Equal(t, "row", se.Metadata["query"])
}

func TestService_Reindex(t *testing.T) {
	cache := newMemCache()
	idx := &fakeIndexer{}
	svc := NewService(&fakeRepo{entries: directory}, &fakeSearcher{}, cache, logger.NewTestLogger(t))

	n, err := svc.Reindex(context.Background(), idx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, directory, idx.synced)
	assert.Equal(t, directory, cache.directory)
}

func TestService_Register(t *testing.T) {
	reg := procedure.NewRegistry()
	svc := NewService(&fakeRepo{entries: directory}, &fakeSearcher{results: directory[1:]}, nil, logger.NewTestLogger(t))
	svc.Register(reg, 10)

	assert.Equal(t, []string{PathDirectory, PathSearch}, reg.Paths())

	out, err := reg.Call(context.Background(), nil, procedure.Query, PathSearch, json.RawMessage(`{"query":"squ"}`))
	require.NoError(t, err)
	assert.Equal(t, directory[1:], out)

	_, err = reg.Call(context.Background(), nil, procedure.Query, PathSearch, json.RawMessage(`{"query":"this is far too long"}`))
	se, ok := errors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeBadRequest, se.Code)

	_, err = reg.Call(context.Background(), nil, procedure.Query, PathSearch, nil)
	se, ok = errors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeBadRequest, se.Code)

	out, err = reg.Call(context.Background(), nil, procedure.Query, PathDirectory, nil)
	require.NoError(t, err)
	assert.Equal(t, directory, out)
}
