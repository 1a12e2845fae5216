package queue

import (
	"encoding/json"

	"github.com/sellos-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskDuplicateScan sweeps the card table for duplicate phone identities
	TaskDuplicateScan = constants.TaskDuplicateScan
)

// DuplicateScanPayload duplicate scan task payload
type DuplicateScanPayload struct {
	// AutoMerge folds every group into its keeper instead of only reporting.
	AutoMerge   bool   `json:"auto_merge"`
	RequestedBy string `json:"requested_by"`
}

// NewDuplicateScanTask creates a duplicate scan task
func NewDuplicateScanTask(payload DuplicateScanPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDuplicateScan, body), nil
}
