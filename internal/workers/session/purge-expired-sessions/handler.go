package purgeexpiredsessions

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	stderrors "errors"
	"net"
	"time"

	"exbuddy/internal/common/errors"
	"exbuddy/internal/common/logger"
	"exbuddy/internal/common/metrics"
	"exbuddy/internal/common/observability"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "purge-expired-sessions"

// SessionPurger deletes a user's expired sessions.
type SessionPurger interface {
	DeleteExpiredForUser(ctx context.Context, userID string, now time.Time) (int64, error)
}

// Handler removes a user's expired sessions, as done on sign-in.
type Handler struct {
	config     *Config
	store      SessionPurger
	errHandler *errors.ErrorHandler
	obs        *observability.Observability
	logger     logger.Logger
	now        func() time.Time
}

func NewHandler(config *Config, store SessionPurger, obs *observability.Observability, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		store:      store,
		errHandler: errors.NewErrorHandler(log),
		obs:        obs,
		logger:     log,
		now:        time.Now,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.run(ctx, []byte(job.Variables))
	if err != nil {
		se := errors.Normalize(err)
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(se.Code)).Inc()
		h.obs.RecordJobDuration(ctx, TaskType, time.Since(start), "failed")
		h.errHandler.HandleJobError(ctx, client, job, se)
		return se
	}

	cmd, err := client.NewCompleteJobCommand().JobKey(job.Key).VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{"error": err.Error()})
		return err
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{"error": err.Error()})
		return err
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	h.obs.RecordJobDuration(ctx, TaskType, time.Since(start), "completed")
	return nil
}

func (h *Handler) run(ctx context.Context, variables []byte) (*Output, error) {
	if res := inputSchema.ValidateJSON(variables); !res.Valid {
		return nil, errors.NewInvalidInputError(res.String())
	}
	var input Input
	if err := json.Unmarshal(variables, &input); err != nil {
		return nil, errors.NewInvalidInputError(err.Error())
	}
	return h.Execute(ctx, &input)
}

// Execute deletes sessions of input.UserID that expired before now.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil || input.UserID == "" {
		return nil, errors.NewInvalidInputError("userId is required")
	}

	now := h.now()
	deleted, err := h.store.DeleteExpiredForUser(ctx, input.UserID, now)
	if err != nil {
		if isConnectionError(err) {
			return nil, errors.NewDatabaseConnectionFailedError(err)
		}
		return nil, errors.NewQueryExecutionFailedError(TaskType, err)
	}

	h.logger.Info("purged expired sessions", map[string]interface{}{
		"userId":  input.UserID,
		"deleted": deleted,
	})
	return &Output{Deleted: deleted, PurgedAt: now}, nil
}

func isConnectionError(err error) bool {
	var netErr net.Error
	return stderrors.As(err, &netErr) ||
		stderrors.Is(err, sql.ErrConnDone) ||
		stderrors.Is(err, driver.ErrBadConn)
}
