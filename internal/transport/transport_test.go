package transport

import (
	"context"
	"log/slog"
	"testing"

	"github.com/ruslanhut/ocpp-stationsim/internal/config"
	"github.com/ruslanhut/ocpp-stationsim/internal/ocpp"
	"github.com/ruslanhut/ocpp-stationsim/internal/ocppcore"
)

func TestTransport_SendRequest_FailsWhenDisconnected(t *testing.T) {
	tr := New(&config.CSMSConfig{}, slog.Default())

	_, err := tr.SendRequest(context.Background(), "CP001", "Heartbeat", struct{}{}, ocppcore.SendOptions{})
	if err == nil {
		t.Fatal("expected an error sending to a station with no connection")
	}
}

func TestTransport_HandleMessage_UnknownCallResultIsIgnored(t *testing.T) {
	tr := New(&config.CSMSConfig{}, slog.Default())

	result, err := ocpp.NewCallResult("not-pending", struct{}{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := result.ToBytes()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tr.handleMessage("CP001", data) // must not panic
}

func TestTransport_HandleMessage_DispatchesCall(t *testing.T) {
	tr := New(&config.CSMSConfig{}, slog.Default())

	var gotStation, gotAction string
	tr.OnCall = func(stationID string, call *ocpp.Call) {
		gotStation = stationID
		gotAction = call.Action
	}

	call, err := ocpp.NewCall("Reset", struct{ Type string }{Type: "Soft"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := call.ToBytes()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tr.handleMessage("CP001", data)

	if gotStation != "CP001" || gotAction != "Reset" {
		t.Errorf("expected OnCall to be invoked with (CP001, Reset), got (%s, %s)", gotStation, gotAction)
	}
}
