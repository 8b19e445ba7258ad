package procedure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"exbuddy/internal/common/errors"
	"exbuddy/internal/common/logger"
	"exbuddy/internal/common/metrics"
	"exbuddy/internal/common/observability"
	"exbuddy/internal/reqctx"
	"exbuddy/internal/route"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	maxBodyBytes     = 1 << 20
	unknownPathLabel = "unknown"
)

// ContextBuilder builds the per-request context for a path.
type ContextBuilder interface {
	Build(ctx context.Context, t reqctx.Transport, path string) (*reqctx.Context, error)
}

type ServerOptions struct {
	// RateLimit is requests per second per client IP. Zero disables limiting.
	RateLimit float64
	RateBurst int
}

// Server exposes a Registry at /api/trpc/:path.
type Server struct {
	registry *Registry
	builder  ContextBuilder
	logger   logger.Logger
	obs      *observability.Observability
	limiter  *limiterStore
	echo     *echo.Echo
}

func NewServer(registry *Registry, builder ContextBuilder, log logger.Logger, obs *observability.Observability, opts ServerOptions) *Server {
	s := &Server{
		registry: registry,
		builder:  builder,
		logger:   logger.ForComponent(log, "procedure-server"),
		obs:      obs,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(s.logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(accessLog(s.logger))
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = newLimiterStore(opts.RateLimit, burst)
		e.Use(rateLimit(s.limiter))
	}

	e.GET("/api/trpc/:path", s.handle(Query))
	e.POST("/api/trpc/:path", s.handle(Mutation))

	s.echo = e
	return s
}

// Echo returns the underlying router, mostly for tests and for mounting
// extra routes.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Start serves on addr until ctx is cancelled or Shutdown is called.
func (s *Server) Start(ctx context.Context, addr string) error {
	if s.limiter != nil {
		go s.limiter.run(ctx)
	}
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handle(kind Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()
		ctx := req.Context()
		requestID := c.Response().Header().Get(echo.HeaderXRequestID)

		batch := c.QueryParam("batch") == "1"
		rawPath := c.Param("path")
		if unescaped, err := url.PathUnescape(rawPath); err == nil {
			rawPath = unescaped
		}
		paths := route.SplitBatch(rawPath)
		if len(paths) == 0 {
			se := errors.NewBadRequestError("no procedure path")
			return c.JSON(http.StatusBadRequest, errorEnvelope(se, "", requestID))
		}
		if !batch && len(paths) > 1 {
			se := errors.NewBadRequestError("multiple procedures require batch=1")
			return c.JSON(http.StatusBadRequest, errorEnvelope(se, rawPath, requestID))
		}

		envs := make([]envelope, len(paths))
		errs := make([]error, len(paths))

		inputs, err := readInputs(c, kind, batch, len(paths))
		if err != nil {
			for i := range paths {
				errs[i] = err
			}
		} else {
			contexts := s.buildContexts(ctx, reqctx.Transport{
				Request:   req,
				Writer:    c.Response(),
				RequestID: requestID,
			}, paths)
			for i, p := range paths {
				gc := contexts[route.Classify(p)]
				if gc.err != nil {
					errs[i] = gc.err
					continue
				}
				var out interface{}
				out, errs[i] = s.registry.Call(reqctx.WithContext(ctx, gc.rc), gc.rc, kind, p, inputs[i])
				if errs[i] == nil {
					envs[i] = okEnvelope(out)
				}
			}
		}

		failed := false
		for i, p := range paths {
			code := "OK"
			if errs[i] != nil {
				failed = true
				se := errors.Normalize(errs[i])
				s.onError(p, requestID, se)
				envs[i] = errorEnvelope(se, p, requestID)
				code = string(se.Code)
			}
			label := s.metricPath(p)
			elapsed := time.Since(start)
			metrics.ProcedureCalls.WithLabelValues(label, code).Inc()
			metrics.ProcedureDuration.WithLabelValues(label).Observe(elapsed.Seconds())
			s.obs.RecordCall(ctx, label, route.Classify(p).String(), code, elapsed)
		}

		if !failed && route.AllPublic(paths) {
			c.Response().Header().Set("Cache-Control", publicCacheControl)
		}

		status := batchStatus(envs)
		if batch {
			return c.JSON(status, envs)
		}
		return c.JSON(status, envs[0])
	}
}

// onError reports failures; only internal errors are logged at error level.
func (s *Server) onError(path, requestID string, se *errors.StandardError) {
	fields := map[string]interface{}{
		"path":      path,
		"code":      string(se.Code),
		"message":   se.Message,
		"requestId": requestID,
	}
	if se.Code != errors.ErrCodeInternalServerError {
		s.logger.Debug("Procedure failed", fields)
		return
	}
	if se.Details != "" {
		fields["details"] = se.Details
	}
	for k, v := range se.Metadata {
		fields[k] = v
	}
	s.logger.Error("Something went wrong", fields)
}

type groupContext struct {
	rc  *reqctx.Context
	err error
}

// buildContexts builds one context per visibility present in the batch,
// for the first path of each. A private failure never reaches public paths.
func (s *Server) buildContexts(ctx context.Context, t reqctx.Transport, paths []string) map[route.Visibility]groupContext {
	contexts := make(map[route.Visibility]groupContext, 2)
	for _, p := range paths {
		vis := route.Classify(p)
		if _, ok := contexts[vis]; ok {
			continue
		}
		rc, err := s.builder.Build(ctx, t, p)
		contexts[vis] = groupContext{rc: rc, err: err}
	}
	return contexts
}

// metricPath keeps metric label cardinality bounded to registered paths.
func (s *Server) metricPath(path string) string {
	if _, ok := s.registry.Lookup(path); ok {
		return path
	}
	return unknownPathLabel
}

// readInputs returns one raw input per path. Queries carry input in the
// "input" query parameter, mutations in the body. Batched inputs are an
// object keyed by position ("0", "1", ...).
func readInputs(c echo.Context, kind Kind, batch bool, n int) ([]json.RawMessage, error) {
	var raw []byte
	if kind == Query {
		raw = []byte(c.QueryParam("input"))
	} else {
		body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
		if err != nil {
			return nil, errors.NewBadRequestError(fmt.Sprintf("failed to read body: %v", err))
		}
		raw = body
	}

	inputs := make([]json.RawMessage, n)
	if !batch {
		if len(raw) > 0 {
			inputs[0] = json.RawMessage(raw)
		}
		return inputs, nil
	}
	if len(raw) == 0 {
		return inputs, nil
	}

	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keyed); err != nil {
		return nil, errors.NewBadRequestError("batch input must be an object keyed by index")
	}
	for i := range inputs {
		inputs[i] = keyed[strconv.Itoa(i)]
	}
	return inputs, nil
}
