package worker

import (
	"context"
	"encoding/json"

	"github.com/sellos-next/internal/logger"
	"github.com/sellos-next/internal/provider"
	"github.com/sellos-next/internal/queue"

	"github.com/hibiken/asynq"
)

// Consumer async task consumer
type Consumer struct {
	*provider.Container
}

// NewConsumer creates the consumer
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register registers task handlers
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskDuplicateScan, c.handleDuplicateScan)
}

func (c *Consumer) handleDuplicateScan(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_duplicate_scan_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.DuplicateScanPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_duplicate_scan_unmarshal_failed", "error", err)
		return err
	}
	if c.IdentityService == nil {
		logger.Warnw("worker_duplicate_scan_skip_identity_service_nil")
		return nil
	}

	groups, err := c.IdentityService.FindDuplicates()
	if err != nil {
		logger.Warnw("worker_duplicate_scan_failed", "error", err)
		return err
	}
	for _, group := range groups {
		logger.Infow("worker_duplicate_group_found",
			"canonical_phone", group.CanonicalPhone,
			"keeper_id", group.Keeper.ID,
			"duplicate_count", len(group.Duplicates),
			"requested_by", payload.RequestedBy,
		)
		if !payload.AutoMerge {
			continue
		}
		if _, err := c.IdentityService.MergeGroup(ctx, group.CanonicalPhone); err != nil {
			logger.Warnw("worker_duplicate_auto_merge_failed",
				"canonical_phone", group.CanonicalPhone,
				"error", err,
			)
			return err
		}
	}
	logger.Infow("worker_duplicate_scan_done",
		"groups", len(groups),
		"auto_merge", payload.AutoMerge,
	)
	return nil
}
