package exercise

import (
	"context"
	"testing"
	"time"

	"exbuddy/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchKey(t *testing.T) {
	assert.Equal(t, "exercise:search:bench press", SearchKey("  Bench Press "))
}

func TestCache_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cache := NewCache(client, time.Hour)
	ctx := context.Background()

	_, ok, err := cache.Directory(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	entries := []models.Exercise{{ID: "ex-1", Name: "Squat", SetIDs: []string{}}}
	require.NoError(t, cache.SetDirectory(ctx, entries))
	require.NoError(t, cache.SetSearch(ctx, "SQU", entries))

	got, ok, err := cache.Directory(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, entries, got)

	got, ok, err = cache.Search(ctx, "squ")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, entries, got)

	assert.Equal(t, time.Hour, mr.TTL(directoryKey))

	mr.FastForward(time.Hour + time.Second)
	_, ok, err = cache.Search(ctx, "squ")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_GetError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectGet(directoryKey).SetErr(assert.AnError)

	_, ok, err := NewCache(db, time.Hour).Directory(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_CorruptValue(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectGet(SearchKey("row")).SetVal("not json")

	_, ok, err := NewCache(db, time.Hour).Search(context.Background(), "row")
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestCache_SetError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectSet(directoryKey, []byte(`[]`), time.Hour).SetErr(assert.AnError)

	err := NewCache(db, time.Hour).SetDirectory(context.Background(), []models.Exercise{})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestCache_Flush(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cache := NewCache(client, time.Hour)
	ctx := context.Background()

	entries := []models.Exercise{{ID: "ex-1", Name: "Squat", SetIDs: []string{}}}
	require.NoError(t, cache.SetDirectory(ctx, entries))
	require.NoError(t, cache.SetSearch(ctx, "squ", entries))
	require.NoError(t, cache.SetSearch(ctx, "sq", entries))
	require.NoError(t, client.Set(ctx, "other:key", "keep", 0).Err())

	n, err := cache.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.False(t, mr.Exists(directoryKey))
	assert.True(t, mr.Exists("other:key"))
}
