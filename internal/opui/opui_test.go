package opui

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/ruslanhut/ocpp-stationsim/internal/ocpp/v16"
	"github.com/ruslanhut/ocpp-stationsim/internal/ocppcore"
	"github.com/ruslanhut/ocpp-stationsim/internal/storage"
)

// fakeAdapter accepts every outbound request, simulating a CSMS that
// always says yes, grounded on internal/atg's test fake of the same shape.
type fakeAdapter struct {
	nextTxID int
}

func (f *fakeAdapter) SendRequest(ctx context.Context, stationID, command string, payload any, opts ocppcore.SendOptions) (json.RawMessage, error) {
	switch command {
	case string(v16.ActionStartTransaction):
		f.nextTxID++
		return json.Marshal(v16.StartTransactionResponse{
			IdTagInfo:     v16.IdTagInfo{Status: v16.AuthorizationStatusAccepted},
			TransactionId: f.nextTxID,
		})
	case string(v16.ActionStopTransaction):
		return json.Marshal(v16.StopTransactionResponse{})
	}
	return json.Marshal(struct{}{})
}

func (f *fakeAdapter) SendResponse(stationID, messageID string, payload any) error { return nil }

type fakeHistory struct {
	records []storage.TransactionRecord
	stats   storage.FleetStats
}

func (f *fakeHistory) ListTransactions(ctx context.Context, stationID string, limit int) ([]storage.TransactionRecord, error) {
	return f.records, nil
}

func (f *fakeHistory) Stats(ctx context.Context) (storage.FleetStats, error) {
	return f.stats, nil
}

func testServer(t *testing.T) (*Server, string) {
	t.Helper()
	d := ocppcore.Descriptor{
		ChargingStationID: "CP001",
		ConnectorCount:    2,
		ConnectorMaxPower: 22000,
		HeartbeatIntervalSeconds:        60,
		MeterValueSampleIntervalSeconds: 30,
	}
	core := ocppcore.NewStation(d, slog.Default())
	core.Registration = ocppcore.RegistrationRegistered
	core.SetAdapter(&fakeAdapter{})
	go core.Run(context.Background())

	handlers := &ocppcore.Handlers{Station: core, Adapter: core.Adapter(), Logger: slog.Default()}
	handler := v16.NewHandler(slog.Default())
	handler.OnReset = handlers.Reset
	handler.OnRemoteStartTransaction = handlers.RemoteStartTransaction
	handler.OnRemoteStopTransaction = handlers.RemoteStopTransaction
	router := ocppcore.NewRouter(handler.HandleCall)

	s := NewServer(&fakeHistory{}, slog.Default())
	s.Register("CP001", &Station{Core: core, Router: router})
	return s, "CP001"
}

func TestServer_ListChargingStations(t *testing.T) {
	s, id := testServer(t)

	reply := s.dispatch(context.Background(), []byte(`{"command":"listChargingStations","payload":{}}`))
	if reply.Error != "" {
		t.Fatalf("unexpected error: %s", reply.Error)
	}
	result, ok := reply.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected result type %T", reply.Result)
	}
	ids, ok := result["stationIds"].([]string)
	if !ok || len(ids) != 1 || ids[0] != id {
		t.Errorf("expected [%s], got %v", id, result["stationIds"])
	}
}

func TestServer_UnknownCommand_ReturnsError(t *testing.T) {
	s, _ := testServer(t)

	reply := s.dispatch(context.Background(), []byte(`{"command":"doesNotExist","payload":{}}`))
	if reply.Error == "" {
		t.Error("expected an error for an unknown command")
	}
}

func TestServer_GetConnectors_ReturnsEveryConnector(t *testing.T) {
	s, id := testServer(t)

	payload, _ := json.Marshal(map[string]string{"stationId": id})
	result, err := cmdGetConnectors(context.Background(), s, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	connectors, ok := result.([]connectorSummary)
	if !ok || len(connectors) != 2 {
		t.Fatalf("expected 2 connectors, got %v", result)
	}
}

func TestServer_TriggerReset_RoutesThroughC3C4(t *testing.T) {
	s, id := testServer(t)

	payload, _ := json.Marshal(map[string]string{"stationId": id})
	result, err := cmdTriggerReset(context.Background(), s, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp, ok := result.(*v16.ResetResponse)
	if !ok || resp.Status != v16.ResetStatusAccepted {
		t.Errorf("expected an accepted reset response, got %v", result)
	}
}

func TestServer_TriggerRemoteStart_AcceptsAvailableConnector(t *testing.T) {
	s, id := testServer(t)

	connID := 1
	payload, _ := json.Marshal(triggerRemoteStartRequest{StationID: id, ConnectorID: &connID, IDTag: "TAG1"})
	result, err := cmdTriggerRemoteStart(context.Background(), s, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp, ok := result.(*v16.RemoteStartTransactionResponse)
	if !ok || resp.Status != v16.RemoteStartStopStatusAccepted {
		t.Errorf("expected an accepted remote start response, got %v", result)
	}
}

func TestServer_GetTransactionHistory_FleetWide(t *testing.T) {
	s, _ := testServer(t)
	s.history = &fakeHistory{stats: storage.FleetStats{TotalTransactions: 3}}

	result, err := cmdGetTransactionHistory(context.Background(), s, []byte(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stats, ok := result.(storage.FleetStats)
	if !ok || stats.TotalTransactions != 3 {
		t.Errorf("expected fleet stats with 3 transactions, got %v", result)
	}
}

type fakeAnalytics struct {
	msgStats *storage.MessageStats
	txStats  *storage.TransactionStats
	errStats *storage.ErrorStats
}

func (f *fakeAnalytics) GetMessageStats(ctx context.Context, stationID string, since time.Time) (*storage.MessageStats, error) {
	return f.msgStats, nil
}

func (f *fakeAnalytics) GetTransactionStats(ctx context.Context, stationID string, since time.Time) (*storage.TransactionStats, error) {
	return f.txStats, nil
}

func (f *fakeAnalytics) GetErrorStats(ctx context.Context, stationID string, since time.Time) (*storage.ErrorStats, error) {
	return f.errStats, nil
}

func TestServer_GetStats_NotConfigured_ReturnsError(t *testing.T) {
	s, _ := testServer(t)

	if _, err := cmdGetStats(context.Background(), s, []byte(`{}`)); err == nil {
		t.Error("expected an error when analytics is not configured")
	}
}

func TestServer_GetStats_ReturnsCombinedStats(t *testing.T) {
	s, _ := testServer(t)
	s.analytics = &fakeAnalytics{msgStats: &storage.MessageStats{TotalMessages: 5}}

	result, err := cmdGetStats(context.Background(), s, []byte(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stats, ok := result.(statsResponse)
	if !ok || stats.Messages == nil || stats.Messages.TotalMessages != 5 {
		t.Errorf("expected combined stats with 5 messages, got %v", result)
	}
}

func TestServer_GetStation_UnknownStation_ReturnsError(t *testing.T) {
	s, _ := testServer(t)

	payload, _ := json.Marshal(map[string]string{"stationId": "does-not-exist"})
	if _, err := cmdGetStation(context.Background(), s, payload); err == nil {
		t.Error("expected an error for an unknown station")
	}
}
