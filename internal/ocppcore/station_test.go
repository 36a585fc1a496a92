package ocppcore

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func testStation(t *testing.T) *Station {
	t.Helper()
	d := Descriptor{
		ChargingStationID: "CP001",
		ConnectorCount:    2,
		ConnectorMaxPower: 22000,
		HeartbeatIntervalSeconds:        60,
		MeterValueSampleIntervalSeconds: 30,
	}
	return NewStation(d, slog.Default())
}

func TestNewStation_BuildsConnectors(t *testing.T) {
	s := testStation(t)

	if _, ok := s.Connector(0); !ok {
		t.Fatal("expected pseudo-connector 0 to exist")
	}
	if _, ok := s.Connector(2); !ok {
		t.Fatal("expected connector 2 to exist")
	}
	if _, ok := s.Connector(3); ok {
		t.Fatal("did not expect connector 3 to exist")
	}
}

func TestStation_ConnectorIDs_ExcludesZero(t *testing.T) {
	s := testStation(t)

	ids := s.ConnectorIDs()
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Errorf("expected [1 2], got %v", ids)
	}
}

func TestStation_NextTransactionID_Increments(t *testing.T) {
	s := testStation(t)

	if s.NextTransactionID() != 1 {
		t.Error("expected first transaction id to be 1")
	}
	if s.NextTransactionID() != 2 {
		t.Error("expected second transaction id to be 2")
	}
}

func TestStation_CommandAllowed(t *testing.T) {
	s := testStation(t)

	s.Registration = RegistrationUnregistered
	if s.CommandAllowed() {
		t.Error("expected unregistered station to reject commands")
	}

	s.Registration = RegistrationRegistered
	if !s.CommandAllowed() {
		t.Error("expected registered station to allow commands")
	}

	s.Registration = RegistrationUnknown
	s.Descriptor.OCPPStrictCompliance = true
	if s.CommandAllowed() {
		t.Error("expected strict-compliance unknown station to reject commands")
	}
	s.Descriptor.OCPPStrictCompliance = false
	if !s.CommandAllowed() {
		t.Error("expected lenient unknown station to allow commands")
	}
}

func TestStation_Execute_RunsOnOwningGoroutine(t *testing.T) {
	s := testStation(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	done := make(chan struct{})
	s.Execute(func() {
		s.Connectors[1].EnergyRegister = 42
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Execute did not run fn")
	}

	if s.Connectors[1].EnergyRegister != 42 {
		t.Error("expected Execute to mutate connector state synchronously")
	}
}
