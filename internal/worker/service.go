package worker

import (
	"context"
	"errors"
	"time"

	"github.com/sellos-next/internal/config"
	"github.com/sellos-next/internal/logger"
	"github.com/sellos-next/internal/queue"

	"github.com/hibiken/asynq"
)

const (
	duplicateSweepInterval = time.Hour
)

// Service async queue service
type Service struct {
	name     string
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer
}

// NewService creates the async queue service
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:     "worker",
		server:   server,
		mux:      mux,
		consumer: consumer,
	}, nil
}

// Name service name
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start starts the service
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if s.consumer != nil && s.consumer.IdentityService != nil {
		go s.runDuplicateSweepLoop(ctx)
	}
	return s.server.Run(s.mux)
}

// Stop stops the service
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

// runDuplicateSweepLoop periodically reports duplicate phone identities so
// they show up in the logs without an operator kicking off a scan.
func (s *Service) runDuplicateSweepLoop(ctx context.Context) {
	if s == nil || s.consumer == nil || s.consumer.IdentityService == nil {
		return
	}
	runOnce := func() {
		groups, err := s.consumer.IdentityService.FindDuplicates()
		if err != nil {
			logger.Warnw("worker_duplicate_sweep_failed", "error", err)
			return
		}
		if len(groups) > 0 {
			logger.Warnw("worker_duplicate_sweep_found", "groups", len(groups))
		}
	}
	runOnce()

	ticker := time.NewTicker(duplicateSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
