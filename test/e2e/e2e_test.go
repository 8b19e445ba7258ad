// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exbuddy/internal/account"
	"exbuddy/internal/common/auth"
	"exbuddy/internal/common/config"
	"exbuddy/internal/common/database"
	commonhttp "exbuddy/internal/common/http"
	"exbuddy/internal/common/logger"
	"exbuddy/internal/exercise"
	"exbuddy/internal/procedure"
	"exbuddy/internal/reqctx"
	"exbuddy/internal/search"
	"exbuddy/internal/session"
)

// stack is everything a procedure server needs, wired to real services.
type stack struct {
	cfg    *config.Config
	pg     *database.PostgresClient
	rdb    *database.RedisClient
	es     *database.ElasticsearchClient
	server *httptest.Server
}

func TestMain(m *testing.M) {
	if os.Getenv("E2E") == "" {
		// needs postgres, redis and elasticsearch on localhost
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func setup(t *testing.T) *stack {
	t.Helper()
	ctx := context.Background()

	cfg, err := config.Load()
	require.NoError(t, err)

	// force localhost for e2e runs
	cfg.Database.Postgres.Host = "localhost"
	cfg.Database.Redis.Address = "localhost:6379"
	cfg.Database.Elasticsearch.URL = "http://localhost:9200"
	cfg.Database.Elasticsearch.Index = "exercises-e2e"

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	require.NoError(t, err, "postgres connection failed")
	require.NoError(t, pg.Ping(ctx), "postgres ping failed")
	require.NoError(t, pg.Migrate(ctx))
	t.Cleanup(func() { pg.Close() })

	rdb, err := database.NewRedis(cfg.Database.Redis)
	require.NoError(t, err)
	require.NoError(t, rdb.Ping(ctx), "redis ping failed")
	t.Cleanup(func() { rdb.Close() })

	es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	require.NoError(t, err)
	require.NoError(t, es.Ping(ctx), "elasticsearch ping failed")
	require.NoError(t, es.EnsureIndex(ctx, cfg.Database.Elasticsearch.Index))

	log := logger.NewTestLogger(t)
	index := exercise.NewSearchIndex(es.Client, cfg.Database.Elasticsearch.Index)
	cache := exercise.NewCache(rdb.Client, time.Minute)
	_, err = cache.Flush(ctx)
	require.NoError(t, err)

	svc := exercise.NewService(exercise.NewRepository(pg.DB), index, cache, log)

	seedExercises(t, pg.DB)
	_, err = svc.Reindex(ctx, index)
	require.NoError(t, err)

	refreshTimeout := config.GetDuration(cfg.Auth.TokenRefreshTimeout)
	provider := auth.NewProviderClient(cfg.Auth.Provider, commonhttp.NewClient(refreshTimeout).HTTPClient())
	builder := reqctx.NewBuilder(
		session.NewResolver(session.NewPostgresStore(pg.DB), cfg.Auth.Session, log),
		account.NewRefresher(account.NewPostgresStore(pg.DB), provider, refreshTimeout, log),
		log,
	)

	reg := procedure.NewRegistry()
	svc.Register(reg, cfg.Search.MaxQueryLen)
	session.Register(reg)

	srv := httptest.NewServer(procedure.NewServer(reg, builder, log, nil, procedure.ServerOptions{}).Echo())
	t.Cleanup(srv.Close)

	return &stack{cfg: cfg, pg: pg, rdb: rdb, es: es, server: srv}
}

func seedExercises(t *testing.T, db *sql.DB) {
	t.Helper()
	stmts := []string{
		`DELETE FROM exercises WHERE id LIKE 'e2e-%'`,
		`INSERT INTO exercises (id, name, media) VALUES
			('e2e-1', 'Bench Press', 'bench.gif'),
			('e2e-2', 'Bent-over Row', NULL),
			('e2e-3', 'Squat', NULL)`,
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
}

func createSession(t *testing.T, db *sql.DB, expires time.Time) string {
	t.Helper()
	userID := "e2e-user-" + uuid.NewString()
	token := uuid.NewString()

	_, err := db.Exec(`INSERT INTO users (id, name, email) VALUES ($1, 'e2e', $2)`, userID, userID+"@example.com")
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO sessions (session_token, user_id, expires) VALUES ($1, $2, $3)`, token, userID, expires)
	require.NoError(t, err)

	t.Cleanup(func() { db.Exec(`DELETE FROM users WHERE id = $1`, userID) })
	return token
}

func TestPublicProcedures(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	client := search.NewProcedureClient(s.server.URL+"/api/trpc", commonhttp.NewClient(5*time.Second))

	dir, err := client.Directory(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(dir))
	for _, e := range dir {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "Bench Press")
	assert.Contains(t, names, "Squat")

	hits, err := client.Search(ctx, "ben")
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for _, h := range hits {
		assert.Contains(t, []string{"Bench Press", "Bent-over Row"}, h.Name)
	}

	// second call is served from redis
	ok, err := s.rdb.Client.Exists(ctx, exercise.SearchKey("ben")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), ok)

	res, err := http.Get(s.server.URL + "/api/trpc/exercise.public.directory")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, "s-maxage=604800, public, stale-while-revalidate=86400", res.Header.Get("Cache-Control"))
}

func TestPrivateProcedure_Session(t *testing.T) {
	s := setup(t)
	url := s.server.URL + "/api/trpc/auth.get_session"

	res, err := http.Get(url)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	token := createSession(t, s.pg.DB, time.Now().Add(time.Hour))
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: s.cfg.Auth.Session.CookieName, Value: token})

	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, res.Header.Get("Cache-Control"))
}

func TestSearchStore_AgainstServer(t *testing.T) {
	s := setup(t)
	client := search.NewProcedureClient(s.server.URL+"/api/trpc", commonhttp.NewClient(5*time.Second))

	store := search.NewStore(client, client, search.WithLogger(logger.NewTestLogger(t)))
	defer store.Close()

	require.NoError(t, store.LoadDirectory(context.Background()))

	views := make(chan search.View, 16)
	unsubscribe := store.Subscribe(func(v search.View) { views <- v })
	defer unsubscribe()

	store.UpdateQuery("squ", false)

	deadline := time.After(10 * time.Second)
	for {
		select {
		case v := <-views:
			if v.Query == "squ" && len(v.Exercises) == 1 && v.Exercises[0].Name == "Squat" {
				return
			}
		case <-deadline:
			t.Fatalf("store never showed the live result, last view %+v", store.View())
		}
	}
}
