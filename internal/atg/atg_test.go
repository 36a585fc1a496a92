package atg

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ruslanhut/ocpp-stationsim/internal/ocpp/v16"
	"github.com/ruslanhut/ocpp-stationsim/internal/ocppcore"
	"github.com/ruslanhut/ocpp-stationsim/internal/perf"
)

// fakeAdapter accepts every StartTransaction/StopTransaction/Authorize
// immediately, simulating a CSMS that always says yes.
type fakeAdapter struct {
	mu          sync.Mutex
	nextTxID    int
	startCalls  int
	stopCalls   int
}

func (f *fakeAdapter) SendRequest(ctx context.Context, stationID, command string, payload any, opts ocppcore.SendOptions) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch command {
	case string(v16.ActionStartTransaction):
		f.startCalls++
		f.nextTxID++
		resp := v16.StartTransactionResponse{
			IdTagInfo:     v16.IdTagInfo{Status: v16.AuthorizationStatusAccepted},
			TransactionId: f.nextTxID,
		}
		return json.Marshal(resp)
	case string(v16.ActionStopTransaction):
		f.stopCalls++
		return json.Marshal(v16.StopTransactionResponse{})
	case string(v16.ActionAuthorize):
		return json.Marshal(v16.AuthorizeResponse{IdTagInfo: v16.IdTagInfo{Status: v16.AuthorizationStatusAccepted}})
	}
	return json.Marshal(struct{}{})
}

func (f *fakeAdapter) SendResponse(stationID, messageID string, payload any) error { return nil }

func testFleetStation(t *testing.T) *ocppcore.Station {
	t.Helper()
	d := ocppcore.Descriptor{
		ChargingStationID: "CP001",
		ConnectorCount:    1,
		ConnectorMaxPower: 22000,
		HeartbeatIntervalSeconds:        60,
		MeterValueSampleIntervalSeconds: 30,
		ATG: ocppcore.ATGParams{
			Enabled:                        true,
			ProbabilityOfStart:             1.0,
			MinDurationSeconds:             1,
			MaxDurationSeconds:             1,
			MinDelayBetweenTwoTransactions: 0,
			MaxDelayBetweenTwoTransactions: 0,
			StopAfterHours:                 1.0 / 3600, // 1 second, for a fast test
		},
	}
	s := ocppcore.NewStation(d, slog.Default())
	s.Registration = ocppcore.RegistrationRegistered
	s.SetAdapter(&fakeAdapter{})
	return s
}

func TestATG_HappyCycle_StartsAndStopsTransaction(t *testing.T) {
	s := testFleetStation(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	sink := perf.NewSink()
	a := New(s, sink, slog.Default())
	a.Start()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		summary, _ := sink.Report()
		if summary.StartCount > 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	summary, err := sink.Report()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.StartCount == 0 {
		t.Error("expected at least one recorded start cycle")
	}
}

func TestATG_Stop_IsCooperative(t *testing.T) {
	s := testFleetStation(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	sink := perf.NewSink()
	a := New(s, sink, slog.Default())
	a.Start()
	time.Sleep(100 * time.Millisecond)

	a.Stop(v16.ReasonNone)

	if !a.timeToStop {
		t.Error("expected timeToStop to be set after Stop")
	}
}
