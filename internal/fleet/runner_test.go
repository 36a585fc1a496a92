package fleet

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"

	"github.com/ruslanhut/ocpp-stationsim/internal/ocpp"
	"github.com/ruslanhut/ocpp-stationsim/internal/ocpp/v16"
	"github.com/ruslanhut/ocpp-stationsim/internal/ocppcore"
)

// fakeTransport implements outboundTransport (and SendError, for CALLERROR
// frames) without a real socket, grounded on internal/atg's fakeAdapter.
type fakeTransport struct {
	mu            sync.Mutex
	bootStatus    v16.RegistrationStatus
	connected     bool
	responses     []json.RawMessage
	errorsSent    int
	lastErrorCode ocpp.ErrorCode
}

func (f *fakeTransport) Connect(stationID, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeTransport) SendRequest(ctx context.Context, stationID, command string, payload any, opts ocppcore.SendOptions) (json.RawMessage, error) {
	switch command {
	case string(v16.ActionBootNotification):
		return json.Marshal(v16.BootNotificationResponse{Status: f.bootStatus, Interval: 5})
	case string(v16.ActionHeartbeat):
		return json.Marshal(v16.HeartbeatResponse{})
	case string(v16.ActionStatusNotification):
		return json.Marshal(v16.StatusNotificationResponse{})
	}
	return json.Marshal(struct{}{})
}

func (f *fakeTransport) SendResponse(stationID, messageID string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, _ := json.Marshal(payload)
	f.responses = append(f.responses, data)
	return nil
}

func (f *fakeTransport) SendError(stationID, messageID string, code ocpp.ErrorCode, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errorsSent++
	f.lastErrorCode = code
	return nil
}

func testDescriptor() ocppcore.Descriptor {
	return ocppcore.Descriptor{
		ChargingStationID:               "CP001",
		ConnectorCount:                  2,
		ConnectorMaxPower:               22000,
		HeartbeatIntervalSeconds:        60,
		MeterValueSampleIntervalSeconds: 30,
	}
}

func TestRunner_Start_AcceptedBoot_RegistersStation(t *testing.T) {
	ft := &fakeTransport{bootStatus: v16.RegistrationStatusAccepted}
	r := New(Params{Descriptor: testDescriptor(), CSMSURL: "ws://example.invalid", Transport: ft, Logger: slog.Default()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var reg ocppcore.RegistrationState
	r.Station.Execute(func() { reg = r.Station.Registration })
	if reg != ocppcore.RegistrationRegistered {
		t.Errorf("expected station to be registered, got %s", reg)
	}
	if !ft.connected {
		t.Error("expected transport.Connect to have been called")
	}
}

func TestRunner_Start_PendingBoot_LeavesStationPending(t *testing.T) {
	ft := &fakeTransport{bootStatus: v16.RegistrationStatusPending}
	r := New(Params{Descriptor: testDescriptor(), CSMSURL: "ws://example.invalid", Transport: ft, Logger: slog.Default()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var reg ocppcore.RegistrationState
	r.Station.Execute(func() { reg = r.Station.Registration })
	if reg != ocppcore.RegistrationPending {
		t.Errorf("expected station to be pending, got %s", reg)
	}
}

func TestRunner_HandleCall_RejectsBeforeRegistration(t *testing.T) {
	ft := &fakeTransport{bootStatus: v16.RegistrationStatusPending}
	r := New(Params{Descriptor: testDescriptor(), CSMSURL: "ws://example.invalid", Transport: ft, Logger: slog.Default()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Station.Run(ctx)

	call, err := ocpp.NewCall("Reset", v16.ResetRequest{Type: v16.ResetTypeSoft})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r.HandleCall(call)

	if ft.errorsSent != 1 {
		t.Fatalf("expected exactly one CALLERROR to be sent, got %d", ft.errorsSent)
	}
	if ft.lastErrorCode != ocpp.ErrorCodeSecurityError {
		t.Errorf("expected SecurityError, got %s", ft.lastErrorCode)
	}
}

func TestRunner_HandleCall_DispatchesAfterRegistration(t *testing.T) {
	ft := &fakeTransport{bootStatus: v16.RegistrationStatusAccepted}
	r := New(Params{Descriptor: testDescriptor(), CSMSURL: "ws://example.invalid", Transport: ft, Logger: slog.Default()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Station.Run(ctx)
	r.Station.Execute(func() { r.Station.Registration = ocppcore.RegistrationRegistered })

	call, err := ocpp.NewCall("Reset", v16.ResetRequest{Type: v16.ResetTypeSoft})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r.HandleCall(call)

	if len(ft.responses) != 1 {
		t.Fatalf("expected exactly one CALLRESULT to be sent, got %d", len(ft.responses))
	}
}
