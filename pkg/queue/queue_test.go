package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trigger struct {
	Reason string `json:"reason"`
}

func TestParsePayload(t *testing.T) {
	cases := map[string]interface{}{
		"raw":     json.RawMessage(`{"reason":"ops"}`),
		"bytes":   []byte(`{"reason":"ops"}`),
		"map":     map[string]interface{}{"reason": "ops"},
		"value":   trigger{Reason: "ops"},
		"pointer": &trigger{Reason: "ops"},
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := ParsePayload[trigger](payload)
			require.NoError(t, err)
			assert.Equal(t, "ops", got.Reason)
		})
	}
}

func TestParsePayloadEmpty(t *testing.T) {
	for _, payload := range []interface{}{nil, json.RawMessage(nil), json.RawMessage(`null`)} {
		got, err := ParsePayload[trigger](payload)
		require.NoError(t, err)
		assert.Empty(t, got.Reason)
	}
}

func TestParsePayloadRejects(t *testing.T) {
	_, err := ParsePayload[trigger](42)
	assert.Error(t, err)

	_, err = ParsePayload[trigger](json.RawMessage(`{"reason":`))
	assert.Error(t, err)
}
