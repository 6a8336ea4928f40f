package agentmesh

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusTerminal(t *testing.T) {
	terminal := map[Status]bool{
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
	}
	for _, st := range AllStatuses {
		require.Equal(t, terminal[st], st.Terminal(), "status %s", st)
	}
}

func TestParseStatus(t *testing.T) {
	for _, st := range AllStatuses {
		got, err := ParseStatus(string(st))
		require.NoError(t, err)
		require.Equal(t, st, got)
	}
	_, err := ParseStatus("exploded")
	require.ErrorIs(t, err, ErrUnknownStatus)
}

func TestParseMessageType(t *testing.T) {
	for _, mt := range []MessageType{TypeEvent, TypeRequest, TypeResponse} {
		got, ok := ParseMessageType(mt.String())
		require.True(t, ok)
		require.Equal(t, mt, got)
	}
	_, ok := ParseMessageType("broadcast")
	require.False(t, ok)
}
