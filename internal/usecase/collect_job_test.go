package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MetalPulse/internal/domain/models"
	applogger "MetalPulse/pkg/logger"
)

func TestCollectJobRunsCycle(t *testing.T) {
	r := &countingRunner{triggers: make(chan string, 2)}
	j := NewCollectJob(r, applogger.NewNop())
	assert.Equal(t, CollectJobType, j.Type())

	require.NoError(t, j.Handle(context.Background(), json.RawMessage(`{"reason":"ops"}`)))
	assert.Equal(t, "queue:ops", <-r.triggers)

	require.NoError(t, j.Handle(context.Background(), json.RawMessage(`null`)))
	assert.Equal(t, "queue:queue", <-r.triggers)
}

func TestCollectJobRejectsGarbage(t *testing.T) {
	r := &countingRunner{}
	j := NewCollectJob(r, applogger.NewNop())

	assert.Error(t, j.Handle(context.Background(), json.RawMessage(`[1,2`)))
	assert.Zero(t, r.calls.Load())
}

func TestCollectJobBusyIsNotRetried(t *testing.T) {
	j := NewCollectJob(&countingRunner{err: models.ErrCycleBusy}, applogger.NewNop())
	assert.NoError(t, j.Handle(context.Background(), models.TriggerMessage{Reason: "x"}))

	j = NewCollectJob(&countingRunner{err: errors.New("lock backend down")}, applogger.NewNop())
	assert.Error(t, j.Handle(context.Background(), models.TriggerMessage{}))
}
