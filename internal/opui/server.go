// Package opui implements the operator-facing WebSocket interface (§6): a
// fleet of simulated stations exposes its connector state and lets an
// operator trigger CSMS-style commands without a real CSMS, grounded on
// the teacher's api/websocket_handler.go and api/message_broadcaster.go.
package opui

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ruslanhut/ocpp-stationsim/internal/ocppcore"
	"github.com/ruslanhut/ocpp-stationsim/internal/storage"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Station is the narrow view of a simulated station the operator UI needs:
// its domain state (for read commands) and its C3 router (so operator
// commands run through the same gating/handling path a CSMS call would,
// per §6).
type Station struct {
	Core   *ocppcore.Station
	Router *ocppcore.Router
}

// History is the transaction-history collaborator (§6.1), satisfied by
// *storage.TransactionRepository.
type History interface {
	ListTransactions(ctx context.Context, stationID string, limit int) ([]storage.TransactionRecord, error)
	Stats(ctx context.Context) (storage.FleetStats, error)
}

// Analytics is the message/transaction/error aggregation collaborator
// behind the getStats command, satisfied directly by
// *storage.MongoDBClient (internal/storage/analytics.go).
type Analytics interface {
	GetMessageStats(ctx context.Context, stationID string, since time.Time) (*storage.MessageStats, error)
	GetTransactionStats(ctx context.Context, stationID string, since time.Time) (*storage.TransactionStats, error)
	GetErrorStats(ctx context.Context, stationID string, since time.Time) (*storage.ErrorStats, error)
}

// Server is the operator WebSocket server: one process-wide fleet view,
// fanned out to any number of connected operator clients.
type Server struct {
	mu       sync.RWMutex
	stations map[string]*Station

	history   History
	analytics Analytics
	logger    *slog.Logger

	clientsMu sync.RWMutex
	clients   map[*client]bool
}

// NewServer builds a Server over an initially empty fleet; stations are
// registered with Register as cmd/stationsim brings them up.
func NewServer(history History, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		stations: make(map[string]*Station),
		clients:  make(map[*client]bool),
		history:  history,
		logger:   logger,
	}
}

// WithAnalytics attaches the message/transaction/error stats
// collaborator; getStats returns an error until this is set.
func (s *Server) WithAnalytics(a Analytics) *Server {
	s.analytics = a
	return s
}

// Register makes a station visible to the operator UI.
func (s *Server) Register(stationID string, st *Station) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stations[stationID] = st
}

// Unregister removes a station from the operator UI (e.g. on shutdown).
func (s *Server) Unregister(stationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stations, stationID)
}

func (s *Server) station(id string) (*Station, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stations[id]
	return st, ok
}

func (s *Server) stationIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.stations))
	for id := range s.stations {
		ids = append(ids, id)
	}
	return ids
}

// client is one connected operator WebSocket session.
type client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	server *Server
}

// envelope is a decoded request. Requests use the `[command, payload]`
// JSON array framing (§6); the object form `{"command": ..., "payload": ...}`
// is accepted as well.
type envelope struct {
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload"`
}

// response is the reply framing: either Result or Error is set.
type response struct {
	Command string      `json:"command"`
	Result  interface{} `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HandleWS upgrades an HTTP connection to the operator WebSocket protocol.
// Endpoint: /opui/ws.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("opui: failed to upgrade connection", "error", err)
		return
	}

	c := &client{
		id:     uuid.New().String(),
		conn:   conn,
		send:   make(chan []byte, 64),
		server: s,
	}

	s.clientsMu.Lock()
	s.clients[c] = true
	s.clientsMu.Unlock()

	s.logger.Info("opui: operator connected", "client_id", c.id, "remote_addr", r.RemoteAddr)

	go c.writePump()
	c.readPump()
}

func (c *client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump() {
	defer func() {
		c.server.clientsMu.Lock()
		delete(c.server.clients, c)
		c.server.clientsMu.Unlock()
		close(c.send)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.Warn("opui: read error", "client_id", c.id, "error", err)
			}
			return
		}

		reply := c.server.dispatch(context.Background(), raw)
		data, err := json.Marshal(reply)
		if err != nil {
			c.server.logger.Error("opui: failed to marshal reply", "error", err)
			continue
		}

		select {
		case c.send <- data:
		default:
			c.server.logger.Warn("opui: client send buffer full, dropping reply", "client_id", c.id)
		}
	}
}

// dispatch parses an envelope and routes it to the matching command
// handler, producing a well-formed error response for anything it does not
// recognize (§6).
func (s *Server) dispatch(ctx context.Context, raw []byte) response {
	var env envelope
	var frame []json.RawMessage
	if json.Unmarshal(raw, &frame) == nil {
		if len(frame) != 2 || json.Unmarshal(frame[0], &env.Command) != nil {
			return response{Error: "malformed request: expected [command, payload]"}
		}
		env.Payload = frame[1]
	} else if err := json.Unmarshal(raw, &env); err != nil {
		return response{Error: fmt.Sprintf("malformed request: %v", err)}
	}

	handler, ok := commandTable[env.Command]
	if !ok {
		return response{Command: env.Command, Error: fmt.Sprintf("unknown command %q", env.Command)}
	}

	result, err := handler(ctx, s, env.Payload)
	if err != nil {
		return response{Command: env.Command, Error: err.Error()}
	}
	return response{Command: env.Command, Result: result}
}
