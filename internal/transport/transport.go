// Package transport implements ocppcore.OutboundAdapter (C6) on top of
// the teacher's gorilla/websocket connection plumbing
// (internal/connection), generalizing its per-action pending-response
// channels into one map keyed by message id.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ruslanhut/ocpp-stationsim/internal/config"
	"github.com/ruslanhut/ocpp-stationsim/internal/connection"
	"github.com/ruslanhut/ocpp-stationsim/internal/logging"
	"github.com/ruslanhut/ocpp-stationsim/internal/ocpp"
	"github.com/ruslanhut/ocpp-stationsim/internal/ocppcore"
)

// messageLog is the narrow surface Transport needs from
// internal/logging.MessageLogger, so a nil logger can be swapped in
// without the rest of the package caring.
type messageLog interface {
	LogMessage(stationID, direction string, message interface{}, protocolVersion string) error
}

// Transport dials one WebSocket connection per station and routes OCPP
// frames between the wire and the core.
type Transport struct {
	manager *connection.Manager
	logger  *slog.Logger
	msgLog  messageLog

	mu      sync.Mutex
	pending map[string]chan pendingResult // keyed by "stationID/uniqueID"

	// OnCall is invoked for every inbound CALL frame; the caller (typically
	// cmd/stationsim, one per station) is expected to dispatch it through
	// that station's ocppcore.Router and reply via SendResponse.
	OnCall func(stationID string, call *ocpp.Call)
}

type pendingResult struct {
	payload json.RawMessage
	err     error
}

// New builds a Transport backed by a fresh connection.Manager.
func New(cfg *config.CSMSConfig, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Transport{
		manager: connection.NewManager(cfg, logger),
		logger:  logger,
		pending: make(map[string]chan pendingResult),
	}
	t.manager.OnMessageReceived = t.handleMessage
	return t
}

// WithMessageLog attaches a message logger; every CALL/CALLRESULT/CALLERROR
// the transport sends or receives is recorded through it. Grounded on the
// teacher's MessageLogger, which audited the same three frame types on the
// CSMS side (internal/logging/message_logger.go, internal/api's message
// handlers).
func (t *Transport) WithMessageLog(ml *logging.MessageLogger) *Transport {
	t.msgLog = ml
	return t
}

func (t *Transport) logFrame(stationID, direction string, message interface{}) {
	if t.msgLog == nil {
		return
	}
	if err := t.msgLog.LogMessage(stationID, direction, message, "1.6"); err != nil {
		t.logger.Debug("transport: message log dropped a frame", "station_id", stationID, "error", err)
	}
}

// Connect dials stationID's CSMS endpoint at url over OCPP 1.6-J.
func (t *Transport) Connect(stationID, url string) error {
	return t.manager.ConnectStation(stationID, url, "1.6", nil, nil)
}

func (t *Transport) handleMessage(stationID string, raw []byte) {
	parsed, err := ocpp.ParseMessage(raw)
	if err != nil {
		t.logger.Warn("transport: malformed message", "station_id", stationID, "error", err)
		return
	}

	switch msg := parsed.(type) {
	case *ocpp.Call:
		t.logFrame(stationID, "received", msg)
		if t.OnCall != nil {
			t.OnCall(stationID, msg)
		}
	case *ocpp.CallResult:
		t.logFrame(stationID, "received", msg)
		t.resolve(stationID, msg.UniqueID, pendingResult{payload: msg.Payload})
	case *ocpp.CallError:
		t.logFrame(stationID, "received", msg)
		t.resolve(stationID, msg.UniqueID, pendingResult{err: fmt.Errorf("%s: %s", msg.ErrorCode, msg.ErrorDesc)})
	}
}

func (t *Transport) resolve(stationID, uniqueID string, result pendingResult) {
	key := stationID + "/" + uniqueID
	t.mu.Lock()
	ch, ok := t.pending[key]
	if ok {
		delete(t.pending, key)
	}
	t.mu.Unlock()

	if !ok {
		t.logger.Debug("transport: no pending request for response", "station_id", stationID, "unique_id", uniqueID)
		return
	}
	ch <- result
}

// SendRequest implements ocppcore.OutboundAdapter.
func (t *Transport) SendRequest(ctx context.Context, stationID, command string, payload any, opts ocppcore.SendOptions) (json.RawMessage, error) {
	call, err := ocpp.NewCall(command, payload)
	if err != nil {
		return nil, fmt.Errorf("transport: building %s call: %w", command, err)
	}

	key := stationID + "/" + call.UniqueID
	ch := make(chan pendingResult, 1)
	t.mu.Lock()
	t.pending[key] = ch
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, key)
		t.mu.Unlock()
	}()

	data, err := call.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("transport: encoding %s call: %w", command, err)
	}
	if err := t.manager.SendMessage(stationID, data); err != nil {
		if opts.SkipBufferingOnError {
			return nil, fmt.Errorf("transport: send dropped, station unreachable: %w", err)
		}
		return nil, fmt.Errorf("transport: sending %s: %w", command, err)
	}
	t.logFrame(stationID, "sent", call)

	select {
	case result := <-ch:
		if result.err != nil {
			return nil, result.err
		}
		return result.payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendResponse implements ocppcore.OutboundAdapter.
func (t *Transport) SendResponse(stationID, messageID string, payload any) error {
	result, err := ocpp.NewCallResult(messageID, payload)
	if err != nil {
		return fmt.Errorf("transport: building call result: %w", err)
	}
	data, err := result.ToBytes()
	if err != nil {
		return fmt.Errorf("transport: encoding call result: %w", err)
	}
	if err := t.manager.SendMessage(stationID, data); err != nil {
		return err
	}
	t.logFrame(stationID, "sent", result)
	return nil
}

// SendError emits a CALLERROR frame for a CALL that the router or a
// handler rejected before producing a response.
func (t *Transport) SendError(stationID, messageID string, code ocpp.ErrorCode, description string) error {
	callErr, err := ocpp.NewCallError(messageID, code, description, nil)
	if err != nil {
		return fmt.Errorf("transport: building call error: %w", err)
	}
	data, err := callErr.ToBytes()
	if err != nil {
		return fmt.Errorf("transport: encoding call error: %w", err)
	}
	if err := t.manager.SendMessage(stationID, data); err != nil {
		return err
	}
	t.logFrame(stationID, "sent", callErr)
	return nil
}

// Disconnect tears down stationID's connection.
func (t *Transport) Disconnect(stationID string) error {
	return t.manager.DisconnectStation(stationID)
}

// Shutdown disconnects every station.
func (t *Transport) Shutdown() error {
	return t.manager.Shutdown()
}
