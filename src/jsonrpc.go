package wavecraft

/*------------------------------------------------------------------
 *
 * Purpose:   	JSON-RPC message shapes and error codes for the
 *		WebSocket IPC surface.
 *
 * Description: Requests carry an id; notifications do not.  Responses
 *		echo the request id and carry either a result or an
 *		error {code, message, data?}.
 *
 *------------------------------------------------------------------*/

import (
	"encoding/json"
)

/* Standard JSON-RPC codes. */
const RPC_METHOD_NOT_FOUND = -32601
const RPC_INVALID_PARAMS = -32602

/* Application codes. */
const RPC_UNKNOWN_PARAMETER = 1001
const RPC_OUT_OF_RANGE = 1002 /* reserved; the clamp policy never emits it */
const RPC_AUDIO_NOT_RUNNING = 1100
const RPC_RELOAD_IN_PROGRESS = 1200 /* reserved; writes succeed during swap */

type rpc_request struct {
	ID     *json.RawMessage `json:"id,omitempty"`
	Method string           `json:"method"`
	Params json.RawMessage  `json:"params,omitempty"`
}

type rpc_error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type rpc_response struct {
	ID     *json.RawMessage `json:"id"`
	Result any              `json:"result,omitempty"`
	Error  *rpc_error       `json:"error,omitempty"`
}

type rpc_notification struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

func rpc_ok(id *json.RawMessage, result any) []byte {
	if result == nil {
		/* omitempty would swallow a nil result; a literal null is the
		   documented "no data" answer. */
		result = json.RawMessage("null")
	}
	var data, err = json.Marshal(rpc_response{ID: id, Result: result})
	if err != nil {
		/* result came from us; this cannot reasonably happen */
		data, _ = json.Marshal(rpc_response{ID: id, Error: &rpc_error{
			Code: RPC_INVALID_PARAMS, Message: "unencodable result"}})
	}
	return data
}

func rpc_fail(id *json.RawMessage, code int, message string, data any) []byte {
	var out, _ = json.Marshal(rpc_response{ID: id, Error: &rpc_error{
		Code: code, Message: message, Data: data}})
	return out
}

func rpc_notify(method string, params any) ([]byte, error) {
	return json.Marshal(rpc_notification{Method: method, Params: params})
}
