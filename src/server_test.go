package wavecraft

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func test_host(t *testing.T) *Host {
	t.Helper()

	var specs = []ParameterSpec{
		{ID: "gain", Name: "Gain", Default: 1.0, Unit: "x",
			Range: ParamRange{Kind: RangeLinear, Min: 0, Max: 2}},
	}
	return NewHost(specs, nil, new_status_cell())
}

func test_server(t *testing.T) (*Server, *Host, *websocket.Conn) {
	t.Helper()

	var host = test_host(t)

	var ln, err = net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var shutdown = make(chan struct{})
	t.Cleanup(func() { close(shutdown); time.Sleep(10 * time.Millisecond) })

	var server = start_server(host, ln, shutdown)

	conn, _, dial_err := websocket.DefaultDialer.Dial("ws://"+server.Addr()+"/ws", nil)
	require.NoError(t, dial_err)
	t.Cleanup(func() { conn.Close() })

	return server, host, conn
}

type test_message struct {
	ID     *json.RawMessage `json:"id"`
	Result json.RawMessage  `json:"result"`
	Error  *rpc_error       `json:"error"`
	Method string           `json:"method"`
	Params json.RawMessage  `json:"params"`
}

// next_message reads until the predicate matches, discarding the messages
// before it; a read error or the 2 s deadline fails the test.
func next_message(t *testing.T, conn *websocket.Conn, match func(*test_message) bool) *test_message {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var _, data, err = conn.ReadMessage()
		require.NoError(t, err)

		var msg test_message
		require.NoError(t, json.Unmarshal(data, &msg))
		if match(&msg) {
			return &msg
		}
	}
}

func send_request(t *testing.T, conn *websocket.Conn, id int, method string, params any) {
	t.Helper()

	var raw, _ = json.Marshal(id)
	var raw_msg = json.RawMessage(raw)
	var req = struct {
		ID     *json.RawMessage `json:"id"`
		Method string           `json:"method"`
		Params any              `json:"params,omitempty"`
	}{&raw_msg, method, params}

	require.NoError(t, conn.WriteJSON(req))
}

func response_for(t *testing.T, conn *websocket.Conn, id int) *test_message {
	return next_message(t, conn, func(m *test_message) bool {
		if m.ID == nil {
			return false
		}
		var got int
		json.Unmarshal(*m.ID, &got)
		return got == id
	})
}

func Test_Server_ListParameters(t *testing.T) {
	var _, _, conn = test_server(t)

	send_request(t, conn, 1, "list_parameters", nil)
	var resp = response_for(t, conn, 1)

	require.Nil(t, resp.Error)
	var specs []ParameterSpec
	require.NoError(t, json.Unmarshal(resp.Result, &specs))
	require.Len(t, specs, 1)
	assert.Equal(t, "gain", specs[0].ID)
}

func Test_Server_SetParameterPropagatesAndNotifies(t *testing.T) {
	var _, host, conn = test_server(t)

	send_request(t, conn, 2, "set_parameter", map[string]any{"id": "gain", "value": 0.5})

	/* Every set broadcasts parameter_changed, whatever the source.  The
	   notification is queued while the request is handled, so it reaches
	   the client ahead of the response. */
	var note = next_message(t, conn, func(m *test_message) bool {
		return m.Method == "parameter_changed"
	})

	var resp = response_for(t, conn, 2)
	require.Nil(t, resp.Error)

	/* The bridge (fast path) and the store (slow path) both moved. */
	var bridged, ok = host.bridge.Read("gain")
	require.True(t, ok)
	assert.Equal(t, float32(0.5), bridged)

	stored, _ := host.GetParameter("gain")
	assert.Equal(t, float32(0.5), stored)

	var pv ParamValue
	require.NoError(t, json.Unmarshal(note.Params, &pv))
	assert.Equal(t, "gain", pv.ID)
	assert.Equal(t, float32(0.5), pv.Value)
}

func Test_Server_OutOfRangeClamps(t *testing.T) {
	var _, _, conn = test_server(t)

	send_request(t, conn, 3, "set_parameter", map[string]any{"id": "gain", "value": 9.9})
	var resp = response_for(t, conn, 3)
	require.Nil(t, resp.Error, "clamp policy: out of range is not an error")

	send_request(t, conn, 4, "get_parameter", map[string]any{"id": "gain"})
	resp = response_for(t, conn, 4)
	require.Nil(t, resp.Error)

	var pv ParamValue
	require.NoError(t, json.Unmarshal(resp.Result, &pv))
	assert.Equal(t, float32(2.0), pv.Value, "set then get returns clamp(v, range)")
}

func Test_Server_SetParameterIdempotent(t *testing.T) {
	var _, host, conn = test_server(t)

	send_request(t, conn, 5, "set_parameter", map[string]any{"id": "gain", "value": 0.7})
	response_for(t, conn, 5)
	send_request(t, conn, 6, "set_parameter", map[string]any{"id": "gain", "value": 0.7})
	response_for(t, conn, 6)

	var v, _ = host.GetParameter("gain")
	assert.Equal(t, float32(0.7), v)
}

func Test_Server_UnknownParameter(t *testing.T) {
	var _, host, conn = test_server(t)

	send_request(t, conn, 7, "set_parameter", map[string]any{"id": "nope", "value": 0.1})
	var resp = response_for(t, conn, 7)

	require.NotNil(t, resp.Error)
	assert.Equal(t, RPC_UNKNOWN_PARAMETER, resp.Error.Code)

	/* No broadcast for a rejected write: the next message the client
	   sees must be the next response, not a parameter_changed. */
	send_request(t, conn, 8, "ping", nil)
	var msg = next_message(t, conn, func(m *test_message) bool { return true })
	assert.Nil(t, msg.Error)
	assert.Empty(t, msg.Method, "expected the ping response, got notification %q", msg.Method)
}

func Test_Server_MeterFrameBeforeAudio(t *testing.T) {
	var _, _, conn = test_server(t)

	send_request(t, conn, 9, "get_meter_frame", nil)
	var resp = response_for(t, conn, 9)

	require.NotNil(t, resp.Error)
	assert.Equal(t, RPC_AUDIO_NOT_RUNNING, resp.Error.Code)
}

func Test_Server_MeterFrameDegradedIsNull(t *testing.T) {
	var _, host, conn = test_server(t)

	host.Status().set(AudioStatus{State: StateDegraded,
		Diag: new_diag(DeviceEnumerationFailed, "device-missing", "no output device")})

	send_request(t, conn, 12, "get_meter_frame", nil)
	var resp = response_for(t, conn, 12)

	require.Nil(t, resp.Error)
	assert.Equal(t, "null", string(resp.Result), "degraded mode answers null, not an error")
}

func Test_Server_MethodNotFound(t *testing.T) {
	var _, _, conn = test_server(t)

	send_request(t, conn, 10, "frobnicate", nil)
	var resp = response_for(t, conn, 10)

	require.NotNil(t, resp.Error)
	assert.Equal(t, RPC_METHOD_NOT_FOUND, resp.Error.Code)
}

func Test_Server_Ping(t *testing.T) {
	var _, _, conn = test_server(t)

	send_request(t, conn, 11, "ping", map[string]any{"client_time": 12345.0})
	var resp = response_for(t, conn, 11)

	require.Nil(t, resp.Error)
	var result struct {
		ClientTime float64 `json:"client_time"`
		ServerTime float64 `json:"server_time"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, 12345.0, result.ClientTime)
	assert.NotZero(t, result.ServerTime)
}

func Test_Server_StatusNotification(t *testing.T) {
	var _, host, conn = test_server(t)

	host.Status().set(AudioStatus{State: StateDegraded,
		Diag: new_diag(DeviceEnumerationFailed, "device-missing", "no output device")})

	var note = next_message(t, conn, func(m *test_message) bool {
		return m.Method == "audio_status"
	})

	var status AudioStatus
	require.NoError(t, json.Unmarshal(note.Params, &status))
	assert.Equal(t, StateDegraded, status.State)
	require.NotNil(t, status.Diag)
	assert.Equal(t, "device-missing", status.Diag.Category)
}
