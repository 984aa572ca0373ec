package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	applogger "MetalPulse/pkg/logger"
)

type countingHandler struct {
	failures int
	calls    int
	err      error
	seen     []string
}

func (h *countingHandler) Topic() string { return "metalpulse.collect" }

func (h *countingHandler) Handle(ctx context.Context, data []byte) error {
	h.calls++
	h.seen = append(h.seen, TraceIDFromContext(ctx))
	if h.calls <= h.failures {
		return h.err
	}
	return nil
}

func newTestConsumer(t *testing.T, retryMax int) *Consumer {
	t.Helper()
	c, err := NewConsumer(applogger.NewNop(),
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(retryMax, time.Millisecond, 2*time.Millisecond),
	)
	require.NoError(t, err)
	return c
}

func TestProcessRetriesUntilSuccess(t *testing.T) {
	c := newTestConsumer(t, 3)
	h := &countingHandler{failures: 2, err: errors.New("store unavailable")}

	err := c.process(context.Background(), h, kafka.Message{Topic: h.Topic()})
	require.NoError(t, err)
	assert.Equal(t, 3, h.calls)
}

func TestProcessGivesUpAfterRetryMax(t *testing.T) {
	c := newTestConsumer(t, 1)
	h := &countingHandler{failures: 10, err: errors.New("boom")}

	err := c.process(context.Background(), h, kafka.Message{Topic: h.Topic()})
	require.Error(t, err)
	assert.Equal(t, 2, h.calls)
}

func TestProcessSkipsRetryOnPermanentError(t *testing.T) {
	c := newTestConsumer(t, 5)
	h := &countingHandler{failures: 10, err: Permanent(errors.New("bad json"))}

	err := c.process(context.Background(), h, kafka.Message{Topic: h.Topic()})
	var perm *PermanentError
	require.ErrorAs(t, err, &perm)
	assert.Equal(t, 1, h.calls)
}

func TestLoggingHookPropagatesTraceID(t *testing.T) {
	c := newTestConsumer(t, 0)
	c.WithConsumerHook(NewHookChain(nil, LoggingHook(applogger.NewNop())))
	h := &countingHandler{}

	msg := kafka.Message{Topic: h.Topic(), Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
	require.NoError(t, c.process(context.Background(), h, msg))
	assert.Equal(t, []string{"abc"}, h.seen)
}

func TestHookChainRecoversPanickingHook(t *testing.T) {
	chain := NewHookChain(HookFuncs{
		Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
			panic("bad hook")
		},
	})
	_, _, _, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	assert.Error(t, err)
}

func TestBackoffWithJitterBounds(t *testing.T) {
	for attempt := 1; attempt <= 40; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, time.Second, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
}

func TestNewConsumerRequiresBrokers(t *testing.T) {
	_, err := NewConsumer(applogger.NewNop())
	assert.Error(t, err)
}

func TestEncodeValue(t *testing.T) {
	b, err := encodeValue(map[string]string{"reason": "manual"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"reason":"manual"}`, string(b))

	b, err = encodeValue("raw")
	require.NoError(t, err)
	assert.Equal(t, "raw", string(b))
}
