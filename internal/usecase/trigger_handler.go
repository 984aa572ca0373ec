package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"MetalPulse/internal/domain/models"
	pkgkafka "MetalPulse/pkg/kafka"
	applogger "MetalPulse/pkg/logger"
)

// TriggerHandler runs an on-demand cycle for every message on the trigger topic.
type TriggerHandler struct {
	topic  string
	runner CycleRunner
	logger *applogger.Logger
}

func NewTriggerHandler(topic string, runner CycleRunner, logger *applogger.Logger) *TriggerHandler {
	return &TriggerHandler{topic: topic, runner: runner, logger: logger}
}

func (h *TriggerHandler) Topic() string { return h.topic }

// incoming message schema: {reason, requested_at}
func (h *TriggerHandler) Handle(ctx context.Context, b []byte) error {
	var m models.TriggerMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return pkgkafka.Permanent(fmt.Errorf("decode trigger: %w", err))
	}
	if m.Reason == "" {
		m.Reason = "kafka"
	}

	run, err := h.runner.Trigger(ctx, "kafka:"+m.Reason)
	if errors.Is(err, models.ErrCycleBusy) {
		// Another replica is collecting right now; that cycle satisfies the request.
		h.logger.Info("trigger dropped, cycle busy", applogger.String("reason", m.Reason))
		return nil
	}
	if err != nil {
		return err
	}
	h.logger.Info("kafka trigger handled",
		applogger.String("reason", m.Reason),
		applogger.String("run_id", run.ID.String()),
		applogger.Bool("success", run.Success),
	)
	return nil
}

var _ pkgkafka.MessageHandler = (*TriggerHandler)(nil)
