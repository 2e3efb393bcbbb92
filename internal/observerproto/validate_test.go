package observerproto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSubscribe(t *testing.T) {
	require.NoError(t, ValidateSubscribe([]byte(`{"type":"SUBSCRIBE","protocol_version":"0.1"}`)))
	require.NoError(t, ValidateSubscribe([]byte(`{"type":"SUBSCRIBE","protocol_version":"0.1","radius":16.5,"max_agents":10,"focus_id":"x"}`)))

	bad := []string{
		`{"type":"HELLO","protocol_version":"0.1"}`,
		`{"type":"SUBSCRIBE"}`,
		`{"type":"SUBSCRIBE","protocol_version":"0.1","radius":-1}`,
		`{"type":"SUBSCRIBE","protocol_version":"0.1","max_agents":1.5}`,
		`{"type":"SUBSCRIBE","protocol_version":"0.1","chunk_radius":4}`,
		`not json`,
	}
	for _, b := range bad {
		assert.Error(t, ValidateSubscribe([]byte(b)), b)
	}
}

func TestValidateTick_EncodedMessage(t *testing.T) {
	msg := TickMsg{
		Type:            "TICK",
		ProtocolVersion: Version,
		Tick:            12,
		Agents: []AgentState{{
			ID: "a", Kind: "zombie", Pos: [3]float64{1, 2, 3}, Health: 20, MaxHP: 20,
		}},
		Removals: []RemovalInfo{{AgentID: "b", Kind: "cow", Reason: "died"}},
	}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, ValidateTick(raw))

	assert.Error(t, ValidateTick([]byte(`{"type":"TICK","protocol_version":"0.1","tick":1,"items":0,"agents":[{"id":""}]}`)))
}

func TestIsKnownCode(t *testing.T) {
	for _, c := range []string{"", ErrProtoBadRequest, ErrWorldBusy, ErrRateLimit, ErrInternal} {
		assert.True(t, IsKnownCode(c), c)
	}
	assert.False(t, IsKnownCode("E_NOT_DEFINED"))
	assert.Equal(t, "ERROR", NewError(ErrWorldBusy, "busy").Type)
}
