package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"alert-bulletin-service/internal/logging"
	"alert-bulletin-service/internal/models"
	"alert-bulletin-service/internal/pipeline"
)

// Config selects the forecast batch topic and consumer group.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Queuer accepts decoded run requests.
type Queuer interface {
	QueueRun(req pipeline.RunRequest) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Consumer reads forecast batches and queues them as pipeline runs.
type Consumer struct {
	reader messageReader
	queue  Queuer
	logger *logging.Logger
}

func NewConsumer(cfg Config, queue Queuer, logger *logging.Logger) *Consumer {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		StartOffset:    kafkago.FirstOffset,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
	return &Consumer{reader: r, queue: queue, logger: logger}
}

// Start consumes until ctx is cancelled. Offsets are committed after a
// message is queued or rejected, so a poison message is not redelivered.
func (c *Consumer) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.logger.Info("Kafka consumer started")
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					c.logger.Info("Kafka consumer stopped")
					return
				}
				c.logger.Errorf("Fetch message failed: %v", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}

			c.handle(msg)

			if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				c.logger.Errorf("Commit offset %d failed: %v", msg.Offset, err)
			}
		}
	}()
}

func (c *Consumer) handle(msg kafkago.Message) {
	log := c.logger.WithFields(logging.Fields{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	req, err := DecodeRunRequest(msg.Value)
	if err != nil {
		log.WithError(err).Error("Dropping forecast batch")
		return
	}
	if err := c.queue.QueueRun(req); err != nil {
		log.WithError(err).Error("Failed to queue forecast batch")
		return
	}
	log.WithField("pipeline", req.Name()).Info("Processed Kafka message")
}

// DecodeRunRequest parses and checks one forecast batch message.
func DecodeRunRequest(value []byte) (pipeline.RunRequest, error) {
	var req pipeline.RunRequest
	if err := json.Unmarshal(value, &req); err != nil {
		return pipeline.RunRequest{}, fmt.Errorf("%w: decode forecast batch: %v", models.ErrValidation, err)
	}
	if req.InitiatedBy == "" {
		req.InitiatedBy = "kafka"
	}
	if err := req.Validate(); err != nil {
		return pipeline.RunRequest{}, err
	}
	return req, nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
