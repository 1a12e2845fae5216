package worker

import (
	"context"
	"testing"

	"github.com/sellos-next/internal/provider"
	"github.com/sellos-next/internal/queue"

	"github.com/hibiken/asynq"
)

func TestHandleDuplicateScanNilTask(t *testing.T) {
	consumer := NewConsumer(&provider.Container{})
	if err := consumer.handleDuplicateScan(context.Background(), nil); err != nil {
		t.Fatalf("nil task should be skipped, got %v", err)
	}
}

func TestHandleDuplicateScanBadPayload(t *testing.T) {
	consumer := NewConsumer(&provider.Container{})
	task := asynq.NewTask(queue.TaskDuplicateScan, []byte("{not json"))
	if err := consumer.handleDuplicateScan(context.Background(), task); err == nil {
		t.Fatalf("expected unmarshal error for malformed payload")
	}
}

func TestHandleDuplicateScanWithoutIdentityService(t *testing.T) {
	consumer := NewConsumer(&provider.Container{})
	task, err := queue.NewDuplicateScanTask(queue.DuplicateScanPayload{RequestedBy: "test"})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if err := consumer.handleDuplicateScan(context.Background(), task); err != nil {
		t.Fatalf("missing identity service should be skipped, got %v", err)
	}
}
