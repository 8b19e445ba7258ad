package procedure

import (
	"context"
	"net/http"
	"sync"
	"time"

	"exbuddy/internal/common/errors"
	"exbuddy/internal/common/logger"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// accessLog logs one line per request.
func accessLog(log logger.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogMethod:    true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := map[string]interface{}{
				"method":    v.Method,
				"uri":       v.URI,
				"status":    v.Status,
				"latencyMs": v.Latency.Milliseconds(),
				"requestId": v.RequestID,
				"remoteIp":  v.RemoteIP,
			}
			if v.Status >= http.StatusInternalServerError {
				log.Warn("request", fields)
			} else {
				log.Info("request", fields)
			}
			return nil
		},
	})
}

// limiterStore hands out one token bucket per client key.
type limiterStore struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rps      rate.Limit
	burst    int
	idle     time.Duration
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterStore(rps float64, burst int) *limiterStore {
	return &limiterStore{
		limiters: make(map[string]*limiterEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
		idle:     10 * time.Minute,
	}
}

func (s *limiterStore) allow(key string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(s.rps, s.burst)}
		s.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// sweep drops limiters idle for longer than s.idle.
func (s *limiterStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.limiters {
		if now.Sub(e.lastSeen) > s.idle {
			delete(s.limiters, k)
		}
	}
}

func (s *limiterStore) run(ctx context.Context) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.sweep(now)
		}
	}
}

func rateLimit(store *limiterStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !store.allow(c.RealIP(), time.Now()) {
				se := errors.NewTooManyRequestsError()
				return c.JSON(http.StatusTooManyRequests, errorEnvelope(se, c.Param("path"), c.Response().Header().Get(echo.HeaderXRequestID)))
			}
			return next(c)
		}
	}
}

// errorHandler renders router level failures (unknown route, wrong method)
// in the procedure error shape.
func errorHandler(log logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var se *errors.StandardError
		if he, ok := err.(*echo.HTTPError); ok {
			switch he.Code {
			case http.StatusNotFound:
				se = errors.NewNotFoundError(c.Request().URL.Path)
			case http.StatusMethodNotAllowed:
				se = errors.NewBadRequestError("method not allowed")
			default:
				se = errors.NewInternalError(http.StatusText(he.Code), err, nil)
			}
		} else {
			se = errors.Normalize(err)
			log.Error("Unhandled server error", map[string]interface{}{"error": err.Error()})
		}
		_ = c.JSON(errors.HTTPStatus(se.Code), errorEnvelope(se, "", c.Response().Header().Get(echo.HeaderXRequestID)))
	}
}
