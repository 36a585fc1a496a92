package opui

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ruslanhut/ocpp-stationsim/internal/ocpp"
	"github.com/ruslanhut/ocpp-stationsim/internal/ocpp/v16"
	"github.com/ruslanhut/ocpp-stationsim/internal/storage"
)

// commandHandler is one entry in the operator command table.
type commandHandler func(ctx context.Context, s *Server, payload json.RawMessage) (interface{}, error)

// commandTable grounds the operator protocol's command set on the teacher's
// api/station_handler.go surface, supplemented per §6/§6.1: every trigger
// command runs the corresponding OCPP CALL through the station's own C3/C4
// path, so the operator channel can never diverge from CSMS-driven
// behavior.
var commandTable = map[string]commandHandler{
	"listChargingStations":  cmdListChargingStations,
	"getStation":            cmdGetStation,
	"getConnectors":         cmdGetConnectors,
	"triggerReset":          cmdTriggerReset,
	"triggerRemoteStart":    cmdTriggerRemoteStart,
	"triggerRemoteStop":     cmdTriggerRemoteStop,
	"getTransactionHistory": cmdGetTransactionHistory,
	"getStats":              cmdGetStats,
}

func cmdListChargingStations(_ context.Context, s *Server, _ json.RawMessage) (interface{}, error) {
	return map[string]interface{}{"stationIds": s.stationIDs()}, nil
}

type stationSummary struct {
	StationID    string `json:"stationId"`
	Registration string `json:"registration"`
	Available    bool   `json:"available"`
	ConnectorIDs []int  `json:"connectorIds"`
}

type getStationRequest struct {
	StationID string `json:"stationId"`
}

func cmdGetStation(_ context.Context, s *Server, payload json.RawMessage) (interface{}, error) {
	st, req, err := resolveStation(s, payload)
	if err != nil {
		return nil, err
	}

	return stationSummary{
		StationID:    req.StationID,
		Registration: string(st.Core.Registration),
		Available:    st.Core.IsAvailable(),
		ConnectorIDs: st.Core.ConnectorIDs(),
	}, nil
}

type connectorSummary struct {
	ID                 int    `json:"id"`
	Status             string `json:"status"`
	Availability       string `json:"availability"`
	TransactionStarted bool   `json:"transactionStarted"`
	TransactionID      int    `json:"transactionId,omitempty"`
}

func cmdGetConnectors(_ context.Context, s *Server, payload json.RawMessage) (interface{}, error) {
	st, _, err := resolveStation(s, payload)
	if err != nil {
		return nil, err
	}

	var out []connectorSummary
	st.Core.Execute(func() {
		ids := st.Core.ConnectorIDs()
		out = make([]connectorSummary, 0, len(ids))
		for _, id := range ids {
			c, ok := st.Core.Connector(id)
			if !ok {
				continue
			}
			out = append(out, connectorSummary{
				ID:                 c.ID,
				Status:             string(c.Status),
				Availability:       string(c.Availability),
				TransactionStarted: c.TransactionStarted,
				TransactionID:      c.TransactionID,
			})
		}
	})
	return out, nil
}

type triggerResetRequest struct {
	StationID string        `json:"stationId"`
	Type      v16.ResetType `json:"type"`
}

func cmdTriggerReset(_ context.Context, s *Server, payload json.RawMessage) (interface{}, error) {
	var req triggerResetRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("parsing triggerReset payload: %w", err)
	}
	if req.Type == "" {
		req.Type = v16.ResetTypeSoft
	}

	st, ok := s.station(req.StationID)
	if !ok {
		return nil, fmt.Errorf("unknown station %q", req.StationID)
	}

	return routeCall(st, req.StationID, "Reset", v16.ResetRequest{Type: req.Type})
}

type triggerRemoteStartRequest struct {
	StationID   string `json:"stationId"`
	ConnectorID *int   `json:"connectorId,omitempty"`
	IDTag       string `json:"idTag"`
}

func cmdTriggerRemoteStart(_ context.Context, s *Server, payload json.RawMessage) (interface{}, error) {
	var req triggerRemoteStartRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("parsing triggerRemoteStart payload: %w", err)
	}
	if req.IDTag == "" {
		return nil, fmt.Errorf("triggerRemoteStart requires idTag")
	}

	st, ok := s.station(req.StationID)
	if !ok {
		return nil, fmt.Errorf("unknown station %q", req.StationID)
	}

	return routeCall(st, req.StationID, "RemoteStartTransaction", v16.RemoteStartTransactionRequest{
		ConnectorId: req.ConnectorID,
		IdTag:       req.IDTag,
	})
}

type triggerRemoteStopRequest struct {
	StationID     string `json:"stationId"`
	TransactionID int    `json:"transactionId"`
}

func cmdTriggerRemoteStop(_ context.Context, s *Server, payload json.RawMessage) (interface{}, error) {
	var req triggerRemoteStopRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("parsing triggerRemoteStop payload: %w", err)
	}

	st, ok := s.station(req.StationID)
	if !ok {
		return nil, fmt.Errorf("unknown station %q", req.StationID)
	}

	return routeCall(st, req.StationID, "RemoteStopTransaction", v16.RemoteStopTransactionRequest{
		TransactionId: req.TransactionID,
	})
}

type getTransactionHistoryRequest struct {
	StationID string `json:"stationId"`
	Limit     int    `json:"limit"`
}

func cmdGetTransactionHistory(ctx context.Context, s *Server, payload json.RawMessage) (interface{}, error) {
	if s.history == nil {
		return nil, fmt.Errorf("transaction history is not configured")
	}

	var req getTransactionHistoryRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("parsing getTransactionHistory payload: %w", err)
	}
	if req.Limit <= 0 {
		req.Limit = 50
	}

	if req.StationID == "" {
		stats, err := s.history.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetching fleet stats: %w", err)
		}
		return stats, nil
	}

	records, err := s.history.ListTransactions(ctx, req.StationID, req.Limit)
	if err != nil {
		return nil, fmt.Errorf("listing transactions for %s: %w", req.StationID, err)
	}
	return records, nil
}

type getStatsRequest struct {
	StationID    string `json:"stationId"`
	SinceMinutes int    `json:"sinceMinutes"`
}

type statsResponse struct {
	Messages     *storage.MessageStats     `json:"messages"`
	Transactions *storage.TransactionStats `json:"transactions"`
	Errors       *storage.ErrorStats       `json:"errors"`
}

// cmdGetStats aggregates message, transaction, and error counts over the
// message log and transaction history MongoDB already keeps
// (internal/storage/analytics.go), scoped to stationId (or fleet-wide, if
// omitted) and a trailing window of sinceMinutes (default 60).
func cmdGetStats(ctx context.Context, s *Server, payload json.RawMessage) (interface{}, error) {
	if s.analytics == nil {
		return nil, fmt.Errorf("analytics is not configured")
	}

	var req getStatsRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("parsing getStats payload: %w", err)
	}
	if req.SinceMinutes <= 0 {
		req.SinceMinutes = 60
	}
	since := time.Now().Add(-time.Duration(req.SinceMinutes) * time.Minute)

	msgStats, err := s.analytics.GetMessageStats(ctx, req.StationID, since)
	if err != nil {
		return nil, fmt.Errorf("fetching message stats: %w", err)
	}
	txStats, err := s.analytics.GetTransactionStats(ctx, req.StationID, since)
	if err != nil {
		return nil, fmt.Errorf("fetching transaction stats: %w", err)
	}
	errStats, err := s.analytics.GetErrorStats(ctx, req.StationID, since)
	if err != nil {
		return nil, fmt.Errorf("fetching error stats: %w", err)
	}

	return statsResponse{Messages: msgStats, Transactions: txStats, Errors: errStats}, nil
}

// resolveStation unmarshals a {"stationId": "..."} payload and looks up the
// named station.
func resolveStation(s *Server, payload json.RawMessage) (*Station, getStationRequest, error) {
	var req getStationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, req, fmt.Errorf("parsing request payload: %w", err)
	}
	st, ok := s.station(req.StationID)
	if !ok {
		return nil, req, fmt.Errorf("unknown station %q", req.StationID)
	}
	return st, req, nil
}

// routeCall builds an OCPP CALL for action and runs it through the
// station's C3 router, exactly as an inbound CSMS message would.
func routeCall(st *Station, stationID, action string, payload interface{}) (interface{}, error) {
	call, err := ocpp.NewCall(action, payload)
	if err != nil {
		return nil, fmt.Errorf("building %s call: %w", action, err)
	}
	return st.Router.Route(st.Core, stationID, call)
}
