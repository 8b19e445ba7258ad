package refreshprovidertoken

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"exbuddy/internal/common/errors"
	"exbuddy/internal/common/logger"
	"exbuddy/internal/common/metrics"
	"exbuddy/internal/common/observability"
	"exbuddy/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "refresh-provider-token"

// TokenRefresher is implemented by account.Refresher.
type TokenRefresher interface {
	Provider() models.AuthProvider
	Refresh(ctx context.Context, acct *models.ProviderAccount) (*models.ProviderAccount, error)
}

type AccountFinder interface {
	FindByUserProvider(ctx context.Context, userID string, provider models.AuthProvider) (*models.ProviderAccount, error)
}

// Handler refreshes a user's provider token ahead of the next request.
type Handler struct {
	config     *Config
	accounts   AccountFinder
	refresher  TokenRefresher
	errHandler *errors.ErrorHandler
	obs        *observability.Observability
	logger     logger.Logger
}

func NewHandler(config *Config, accounts AccountFinder, refresher TokenRefresher, obs *observability.Observability, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		accounts:   accounts,
		refresher:  refresher,
		errHandler: errors.NewErrorHandler(log),
		obs:        obs,
		logger:     log,
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

// Execute refreshes the account if its access token is stale. Refresh
// failures are not retried.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil || input.UserID == "" {
		return nil, errors.NewInvalidInputError("userId is required")
	}

	provider := h.refresher.Provider()
	if input.Provider != "" && models.AuthProvider(input.Provider) != provider {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("unsupported provider %q", input.Provider))
	}

	acct, err := h.accounts.FindByUserProvider(ctx, input.UserID, provider)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError(TaskType, err)
	}
	if acct == nil {
		return nil, errors.NewAccountNotFoundError(input.UserID, string(provider))
	}

	before := acct.ExpiresAt
	updated, err := h.refresher.Refresh(ctx, acct)
	if err != nil {
		return nil, err
	}

	return &Output{
		Refreshed: updated.ExpiresAt != before,
		Provider:  string(provider),
		ExpiresAt: updated.ExpiresAt,
	}, nil
}
