package pipeline

import (
	"context"
	"errors"
	"sync"

	"alert-bulletin-service/internal/logging"
	"alert-bulletin-service/internal/observability"
)

// ErrQueueFull is returned by QueueRun when no more requests can be buffered.
var ErrQueueFull = errors.New("run queue is full")

// Service feeds queued run requests to a pool of workers.
type Service struct {
	runner     *Runner
	logger     *logging.Logger
	metrics    *observability.Metrics
	requests   chan RunRequest
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         *sync.WaitGroup
}

// NewService constructs a pipeline Service.
func NewService(runner *Runner, queueSize, maxWorkers int, logger *logging.Logger, metrics *observability.Metrics) *Service {
	if queueSize < 1 {
		queueSize = 1
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		runner:     runner,
		logger:     logger,
		metrics:    metrics,
		requests:   make(chan RunRequest, queueSize),
		maxWorkers: maxWorkers,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Logger exposes the Service's logger to the Kafka consumer.
func (s *Service) Logger() *logging.Logger {
	return s.logger
}

// Start launches the worker pool.
func (s *Service) Start(wg *sync.WaitGroup) {
	s.wg = wg
	for i := 0; i < s.maxWorkers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

// Stop cancels running work. In-flight channel sends finish on their own;
// channels not yet launched are recorded as cancelled.
func (s *Service) Stop() {
	s.cancel()
}

// QueueRun enqueues a run request without blocking.
func (s *Service) QueueRun(req RunRequest) error {
	select {
	case s.requests <- req:
		s.metrics.QueueDepth.Set(float64(len(s.requests)))
		s.logger.Infof("Queued run: pipeline=%s period=%s type=%s", req.Name(), req.PeriodStart, req.AlertType)
		return nil
	default:
		s.logger.Errorf("Queue full, dropping run: pipeline=%s period=%s type=%s", req.Name(), req.PeriodStart, req.AlertType)
		return ErrQueueFull
	}
}

// worker processes run requests until the context is cancelled.
func (s *Service) worker(id int) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Infof("Worker %d stopped", id)
			return
		case req := <-s.requests:
			s.metrics.QueueDepth.Set(float64(len(s.requests)))
			if _, err := s.runner.Run(s.ctx, req); err != nil {
				s.logger.Errorf("Run %s failed: %v", req.Name(), err)
			}
		}
	}
}
