package wavecraft

/*------------------------------------------------------------------
 *
 * Purpose:   	WebSocket JSON-RPC server for the browser UI.
 *
 * Description: One goroutine pair per client: a reader dispatching
 *		requests and a writer draining two queues.  Normal
 *		traffic (responses, parameter_changed, audio_status,
 *		reload) goes through a buffered send queue; meter
 *		frames have a one-slot queue of their own where a newer
 *		frame replaces an undelivered older one, so a slow
 *		socket drops meters silently instead of backing the
 *		server up.
 *
 *		Requests on one connection are handled in arrival
 *		order, which is what makes parameter writes from a
 *		single client monotonic.
 *
 *------------------------------------------------------------------*/

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const ws_write_timeout = 5 * time.Second
const ws_send_queue = 64

type Server struct {
	host *Host

	httpsrv *http.Server
	addr    string

	mu      sync.Mutex
	clients map[*ws_client]bool

	shutdown <-chan struct{}
}

type ws_client struct {
	conn  *websocket.Conn
	send  chan []byte   /* responses + non-meter notifications */
	meter chan []byte   /* latest undelivered meter frame only */
	done  chan struct{} /* closed when the writer exits */
}

/*------------------------------------------------------------------
 *
 * Name:	start_server
 *
 * Purpose:	Serve the JSON-RPC WebSocket on an already bound
 *		listener.
 *
 * Description:	The listener comes from the port preflight, so "port in
 *		use" surfaced before anything heavier started.  The
 *		server installs itself as the host's notifier.
 *
 *------------------------------------------------------------------*/

func start_server(host *Host, ln net.Listener, shutdown <-chan struct{}) *Server {
	var s = &Server{
		host:     host,
		clients:  make(map[*ws_client]bool),
		addr:     ln.Addr().String(),
		shutdown: shutdown,
	}

	var mux = http.NewServeMux()
	mux.HandleFunc("/ws", s.handle_ws)
	s.httpsrv = &http.Server{Handler: mux}

	host.set_notifier(s.broadcast)

	go s.httpsrv.Serve(ln)
	go func() {
		<-shutdown
		s.Close()
	}()

	log_sub("ipc").Info("websocket server listening", "addr", "ws://"+s.addr+"/ws")

	return s
}

func (s *Server) Addr() string {
	return s.addr
}

var ws_upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	/* The UI dev server proxies from another port on localhost. */
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) handle_ws(w http.ResponseWriter, r *http.Request) {
	var conn, err = ws_upgrader.Upgrade(w, r, nil)
	if err != nil {
		log_sub("ipc").Warn("upgrade failed", "err", err)
		return
	}

	var c = &ws_client{
		conn:  conn,
		send:  make(chan []byte, ws_send_queue),
		meter: make(chan []byte, 1),
		done:  make(chan struct{}),
	}

	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()

	log_sub("ipc").Debug("client connected", "remote", conn.RemoteAddr())

	go s.write_loop(c)
	s.read_loop(c)

	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()

	close(c.send)
	<-c.done
	conn.Close()
}

func (s *Server) read_loop(c *ws_client) {
	for {
		var _, data, err = c.conn.ReadMessage()
		if err != nil {
			return
		}

		var req rpc_request
		if err := json.Unmarshal(data, &req); err != nil || req.Method == "" {
			c.enqueue(rpc_fail(nil, RPC_INVALID_PARAMS, "malformed request", nil))
			continue
		}

		c.enqueue(s.dispatch(&req))
	}
}

func (s *Server) write_loop(c *ws_client) {
	defer close(c.done)

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(ws_write_timeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case data := <-c.meter:
			c.conn.SetWriteDeadline(time.Now().Add(ws_write_timeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

// enqueue puts a message on the normal queue, dropping it if the client
// has stopped draining.  Dropping beats blocking the reader.
func (c *ws_client) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
	}
}

// enqueue_meter replaces any undelivered meter frame with the newer one:
// at most one meter notification is in flight per client.
func (c *ws_client) enqueue_meter(data []byte) {
	for {
		select {
		case c.meter <- data:
			return
		default:
			select {
			case <-c.meter:
			default:
			}
		}
	}
}

/*------------------------------------------------------------------
 *
 * Name:	broadcast
 *
 * Purpose:	Push one notification to every connected client.
 *
 *------------------------------------------------------------------*/

func (s *Server) broadcast(method string, params any) {
	var data, err = rpc_notify(method, params)
	if err != nil {
		log_sub("ipc").Error("unencodable notification", "method", method, "err", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for c := range s.clients {
		if method == "meter_update" {
			c.enqueue_meter(data)
		} else {
			c.enqueue(data)
		}
	}
}

/*------------------------------------------------------------------
 *
 * Name:	dispatch
 *
 * Purpose:	Handle one request and produce the response bytes.
 *
 *------------------------------------------------------------------*/

func (s *Server) dispatch(req *rpc_request) []byte {
	switch req.Method {

	case "list_parameters":
		return rpc_ok(req.ID, s.host.ListParameters())

	case "get_parameter":
		var params struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil || params.ID == "" {
			return rpc_fail(req.ID, RPC_INVALID_PARAMS, "expected {id}", nil)
		}
		var value, ok = s.host.GetParameter(params.ID)
		if !ok {
			return rpc_fail(req.ID, RPC_UNKNOWN_PARAMETER, "unknown parameter", params.ID)
		}
		return rpc_ok(req.ID, ParamValue{ID: params.ID, Value: value})

	case "set_parameter":
		var params struct {
			ID    string   `json:"id"`
			Value *float32 `json:"value"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil || params.ID == "" || params.Value == nil {
			return rpc_fail(req.ID, RPC_INVALID_PARAMS, "expected {id, value}", nil)
		}
		if _, ok := s.host.SetParameter(params.ID, *params.Value); !ok {
			return rpc_fail(req.ID, RPC_UNKNOWN_PARAMETER, "unknown parameter", params.ID)
		}
		return rpc_ok(req.ID, struct{}{})

	case "get_meter_frame":
		if frame := s.host.LatestMeterFrame(); frame != nil && s.host.AudioRunning() {
			return rpc_ok(req.ID, frame)
		}
		switch s.host.status.get().State {
		case StateUninitialized, StateInitializing:
			return rpc_fail(req.ID, RPC_AUDIO_NOT_RUNNING, "audio not running", nil)
		default:
			return rpc_ok(req.ID, nil) /* null: no audio to meter (degraded, or none yet) */
		}

	case "ping":
		var params struct {
			ClientTime float64 `json:"client_time"`
		}
		json.Unmarshal(req.Params, &params) /* absent timestamp is fine */
		return rpc_ok(req.ID, map[string]any{
			"client_time": params.ClientTime,
			"server_time": float64(time.Now().UnixMilli()),
		})

	default:
		return rpc_fail(req.ID, RPC_METHOD_NOT_FOUND, "method not found", req.Method)
	}
}

func (s *Server) Close() {
	s.httpsrv.Close()

	s.mu.Lock()
	for c := range s.clients {
		c.conn.Close()
	}
	s.mu.Unlock()
}
