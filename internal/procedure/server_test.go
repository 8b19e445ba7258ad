package procedure

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"exbuddy/internal/common/errors"
	"exbuddy/internal/common/logger"
	"exbuddy/internal/common/metrics"
	"exbuddy/internal/reqctx"
	"exbuddy/internal/route"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBuilder fails private paths unless hasSession is set.
type fakeBuilder struct {
	hasSession bool
	calls      []string
}

func (f *fakeBuilder) Build(ctx context.Context, t reqctx.Transport, path string) (*reqctx.Context, error) {
	f.calls = append(f.calls, path)
	if route.Classify(path) == route.Private && !f.hasSession {
		return nil, errors.NewNoSessionError()
	}
	return nil, nil
}

func newTestServer(t *testing.T, b ContextBuilder, opts ServerOptions) *Server {
	t.Helper()
	reg := NewRegistry()
	reg.Query("exercise.public.directory", nil, func(ctx context.Context, rc *reqctx.Context, input json.RawMessage) (interface{}, error) {
		return []string{"Push-up"}, nil
	})
	reg.Query("exercise.public.echo", nil, func(ctx context.Context, rc *reqctx.Context, input json.RawMessage) (interface{}, error) {
		var in map[string]interface{}
		if len(input) > 0 {
			if err := json.Unmarshal(input, &in); err != nil {
				return nil, err
			}
		}
		return in, nil
	})
	reg.Query("exercise.public.broken", nil, func(ctx context.Context, rc *reqctx.Context, input json.RawMessage) (interface{}, error) {
		return nil, errors.NewInternalError("backend down", nil, map[string]interface{}{"userId": "u1"})
	})
	reg.Query("auth.get_session", nil, func(ctx context.Context, rc *reqctx.Context, input json.RawMessage) (interface{}, error) {
		return map[string]string{"id": "u1"}, nil
	})
	reg.Mutation("exercise.public.touch", nil, func(ctx context.Context, rc *reqctx.Context, input json.RawMessage) (interface{}, error) {
		return string(input), nil
	})
	return NewServer(reg, b, logger.NewTestLogger(t), nil, opts)
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestServer_PublicQuerySetsCacheHeader(t *testing.T) {
	s := newTestServer(t, &fakeBuilder{}, ServerOptions{})

	rec := do(t, s, http.MethodGet, "/api/trpc/exercise.public.directory", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, publicCacheControl, rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	assert.JSONEq(t, `{"result":{"data":["Push-up"]}}`, rec.Body.String())
}

func TestServer_PrivateWithoutSession(t *testing.T) {
	s := newTestServer(t, &fakeBuilder{}, ServerOptions{})

	rec := do(t, s, http.MethodGet, "/api/trpc/auth.get_session", "")

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Header().Get("Cache-Control"))

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	assert.Equal(t, errors.NoSessionMessage, env.Error.Message)
	assert.Equal(t, errors.ErrCodeUnauthorized, env.Error.Code)
	assert.Equal(t, "auth.get_session", env.Error.Data.Path)
}

func TestServer_PrivateWithSessionIsNotCached(t *testing.T) {
	s := newTestServer(t, &fakeBuilder{hasSession: true}, ServerOptions{})

	rec := do(t, s, http.MethodGet, "/api/trpc/auth.get_session", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Cache-Control"))
}

func TestServer_BatchPublicEntrySucceedsWithoutSession(t *testing.T) {
	b := &fakeBuilder{}
	s := newTestServer(t, b, ServerOptions{})

	rec := do(t, s, http.MethodGet, "/api/trpc/exercise.public.directory,auth.get_session?batch=1", "")

	assert.Equal(t, []string{"exercise.public.directory", "auth.get_session"}, b.calls)
	require.Equal(t, http.StatusMultiStatus, rec.Code)
	assert.Empty(t, rec.Header().Get("Cache-Control"))

	var envs []envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envs))
	require.Len(t, envs, 2)
	require.NotNil(t, envs[0].Result)
	assert.Nil(t, envs[0].Error)
	assert.Equal(t, []interface{}{"Push-up"}, envs[0].Result.Data)
	require.NotNil(t, envs[1].Error)
	assert.Equal(t, errors.ErrCodeUnauthorized, envs[1].Error.Code)
	assert.Equal(t, "auth.get_session", envs[1].Error.Data.Path)
}

func TestServer_BatchBuildsOneContextPerVisibility(t *testing.T) {
	b := &fakeBuilder{hasSession: true}
	s := newTestServer(t, b, ServerOptions{})

	rec := do(t, s, http.MethodGet, "/api/trpc/auth.get_session,exercise.public.directory,auth.get_session,exercise.public.echo?batch=1", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"auth.get_session", "exercise.public.directory"}, b.calls)
	assert.Empty(t, rec.Header().Get("Cache-Control"))
}

func TestServer_BatchInputsAndPartialFailure(t *testing.T) {
	s := newTestServer(t, &fakeBuilder{}, ServerOptions{})

	input := url.QueryEscape(`{"0":{"q":"curl"}}`)
	rec := do(t, s, http.MethodGet, "/api/trpc/exercise.public.echo,exercise.public.broken?batch=1&input="+input, "")

	assert.Equal(t, http.StatusMultiStatus, rec.Code)
	assert.Empty(t, rec.Header().Get("Cache-Control"))

	var envs []envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envs))
	require.Len(t, envs, 2)
	require.NotNil(t, envs[0].Result)
	assert.Equal(t, map[string]interface{}{"q": "curl"}, envs[0].Result.Data)
	require.NotNil(t, envs[1].Error)
	assert.Equal(t, errors.ErrCodeInternalServerError, envs[1].Error.Code)
}

func TestServer_AllPublicBatchIsCached(t *testing.T) {
	s := newTestServer(t, &fakeBuilder{}, ServerOptions{})

	rec := do(t, s, http.MethodGet, "/api/trpc/exercise.public.directory,exercise.public.echo?batch=1", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, publicCacheControl, rec.Header().Get("Cache-Control"))
}

func TestServer_MultiplePathsNeedBatchFlag(t *testing.T) {
	s := newTestServer(t, &fakeBuilder{}, ServerOptions{})

	rec := do(t, s, http.MethodGet, "/api/trpc/exercise.public.directory,exercise.public.echo", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_UnknownProcedure(t *testing.T) {
	s := newTestServer(t, &fakeBuilder{}, ServerOptions{})

	rec := do(t, s, http.MethodGet, "/api/trpc/exercise.public.nope", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_KindMismatch(t *testing.T) {
	s := newTestServer(t, &fakeBuilder{}, ServerOptions{})

	rec := do(t, s, http.MethodPost, "/api/trpc/exercise.public.directory", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/trpc/exercise.public.touch", `{"id":1}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"result":{"data":"{\"id\":1}"}}`, rec.Body.String())
}

func TestServer_UnknownRouteUsesErrorShape(t *testing.T) {
	s := newTestServer(t, &fakeBuilder{}, ServerOptions{})

	rec := do(t, s, http.MethodGet, "/nowhere", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	assert.Equal(t, errors.ErrCodeNotFound, env.Error.Code)
}

func TestServer_RateLimit(t *testing.T) {
	s := newTestServer(t, &fakeBuilder{}, ServerOptions{RateLimit: 0.001, RateBurst: 1})

	first := do(t, s, http.MethodGet, "/api/trpc/exercise.public.directory", "")
	second := do(t, s, http.MethodGet, "/api/trpc/exercise.public.directory", "")

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestLimiterStore_Sweep(t *testing.T) {
	store := newLimiterStore(1, 1)
	now := time.Now()

	assert.True(t, store.allow("a", now))
	assert.False(t, store.allow("a", now))

	store.sweep(now.Add(store.idle + time.Second))
	assert.Empty(t, store.limiters)
	assert.True(t, store.allow("a", now.Add(store.idle+time.Second)))
}

func TestBatchStatus(t *testing.T) {
	ok := okEnvelope(1)
	unauthorized := errorEnvelope(errors.NewNoSessionError(), "p", "")
	internal := errorEnvelope(errors.NewInternalError("x", nil, nil), "p", "")

	assert.Equal(t, http.StatusOK, batchStatus([]envelope{ok, ok}))
	assert.Equal(t, http.StatusUnauthorized, batchStatus([]envelope{unauthorized, unauthorized}))
	assert.Equal(t, http.StatusMultiStatus, batchStatus([]envelope{ok, internal}))
}

func TestServer_UnknownPathsShareMetricLabel(t *testing.T) {
	s := newTestServer(t, &fakeBuilder{}, ServerOptions{})
	do(t, s, http.MethodGet, "/api/trpc/exercise.public.nope", "")

	calls := testutil.CollectAndCount(metrics.ProcedureCalls)
	durations := testutil.CollectAndCount(metrics.ProcedureDuration)

	for i := 0; i < 20; i++ {
		rec := do(t, s, http.MethodGet, fmt.Sprintf("/api/trpc/junk.public.p%d", i), "")
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, calls, testutil.CollectAndCount(metrics.ProcedureCalls))
	assert.Equal(t, durations, testutil.CollectAndCount(metrics.ProcedureDuration))
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.ProcedureCalls.WithLabelValues(unknownPathLabel, string(errors.ErrCodeNotFound))), float64(21))
}

func TestServer_MetricPath(t *testing.T) {
	s := newTestServer(t, &fakeBuilder{}, ServerOptions{})

	assert.Equal(t, "exercise.public.directory", s.metricPath("exercise.public.directory"))
	assert.Equal(t, unknownPathLabel, s.metricPath("exercise.public.nope"))
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	reg := NewRegistry()
	h := func(ctx context.Context, rc *reqctx.Context, input json.RawMessage) (interface{}, error) {
		return nil, nil
	}
	reg.Query("a", nil, h)
	assert.Panics(t, func() { reg.Mutation("a", nil, h) })
	assert.Equal(t, []string{"a"}, reg.Paths())
}
