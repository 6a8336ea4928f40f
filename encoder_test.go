package agentmesh

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONEncoderRoundTrip(t *testing.T) {
	enc := &JSONEncoder{}
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	b, err := enc.Encode(payload{Name: "x", Count: 3})
	require.NoError(t, err)

	var out payload
	require.NoError(t, enc.Decode(b, &out))
	require.Equal(t, payload{Name: "x", Count: 3}, out)
}

func TestJSONEncoderDecodeInvalid(t *testing.T) {
	enc := &JSONEncoder{}
	var out map[string]any
	require.Error(t, enc.Decode([]byte("{nope"), &out))
}

func TestNewMessageDefaults(t *testing.T) {
	m := NewMessage("events.ping", []byte("x"))
	require.NotEmpty(t, m.ID)
	require.Equal(t, TypeEvent, m.Type)
	require.Equal(t, "events.ping", m.Topic)
	require.NotZero(t, m.Timestamp)
	require.Empty(t, m.CorrelationID)
}
