package repository

import (
	"context"
	"time"

	"MetalPulse/internal/domain/models"
	applogger "MetalPulse/pkg/logger"
)

// EventPublisher is the slice of the Kafka producer the cycle publisher needs.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// KafkaPublisher emits every finished PipelineRun on the events topic, keyed by run ID.
type KafkaPublisher struct {
	producer EventPublisher
	topic    string
	timeout  time.Duration
	logger   *applogger.Logger
}

func NewKafkaPublisher(producer EventPublisher, topic string, logger *applogger.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, timeout: 10 * time.Second, logger: logger}
}

func (p *KafkaPublisher) OnCycle(ctx context.Context, run *models.PipelineRun) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	if err := p.producer.Publish(ctx, p.topic, []byte(run.ID.String()), run); err != nil {
		p.logger.Warn("publish cycle event failed",
			applogger.String("topic", p.topic),
			applogger.String("run_id", run.ID.String()),
			applogger.Error(err),
		)
	}
}
