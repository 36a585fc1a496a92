package ocppcore

import (
	"testing"

	"github.com/ruslanhut/ocpp-stationsim/internal/ocpp/v16"
)

func TestNewConnector(t *testing.T) {
	c := NewConnector(1, "Type2", 22000)

	if c.ID != 1 {
		t.Errorf("expected ID 1, got %d", c.ID)
	}
	if c.Status != v16.ChargePointStatusAvailable {
		t.Errorf("expected status Available, got %s", c.Status)
	}
	if c.Availability != v16.AvailabilityTypeOperative {
		t.Errorf("expected Operative, got %s", c.Availability)
	}
}

func TestConnector_SetStatus_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		from    v16.ChargePointStatus
		to      v16.ChargePointStatus
		wantErr bool
	}{
		{"Available to Preparing", v16.ChargePointStatusAvailable, v16.ChargePointStatusPreparing, false},
		{"Preparing to Charging", v16.ChargePointStatusPreparing, v16.ChargePointStatusCharging, false},
		{"Charging to Finishing", v16.ChargePointStatusCharging, v16.ChargePointStatusFinishing, false},
		{"Finishing to Available", v16.ChargePointStatusFinishing, v16.ChargePointStatusAvailable, false},
		{"Available to Charging (invalid)", v16.ChargePointStatusAvailable, v16.ChargePointStatusCharging, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConnector(1, "Type2", 22000)
			c.Status = tt.from
			err := c.SetStatus(tt.to, v16.ChargePointErrorNoError, "")
			if (err != nil) != tt.wantErr {
				t.Errorf("SetStatus(%s) error = %v, wantErr %v", tt.to, err, tt.wantErr)
			}
		})
	}
}

func TestConnector_StartTransaction_RejectsDouble(t *testing.T) {
	c := NewConnector(1, "Type2", 22000)

	if err := c.StartTransaction(1, "TAG1", 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.StartTransaction(2, "TAG2", 200); err == nil {
		t.Error("expected error starting a second transaction on the same connector")
	}
}

func TestConnector_EndTransaction_ResetsTransientFields(t *testing.T) {
	c := NewConnector(1, "Type2", 22000)
	_ = c.StartTransaction(7, "TAG1", 100)
	c.EnergyRegister = 500
	c.AuthorizeIDTag = "TAG1"

	c.EndTransaction()

	if c.TransactionStarted {
		t.Error("expected TransactionStarted to be false")
	}
	if c.TransactionID != 0 || c.EnergyRegister != 0 || c.AuthorizeIDTag != "" {
		t.Error("expected transient transaction fields to be reset")
	}
}

func TestConnector_SetChargingProfile_ReplacesByID(t *testing.T) {
	c := NewConnector(1, "Type2", 22000)
	p1 := v16.ChargingProfile{ChargingProfileId: 1, StackLevel: 0, ChargingProfilePurpose: v16.ChargingProfilePurposeTxDefaultProfile}
	p2 := v16.ChargingProfile{ChargingProfileId: 1, StackLevel: 0, ChargingProfilePurpose: v16.ChargingProfilePurposeTxDefaultProfile, ChargingProfileKind: v16.ChargingProfileKindAbsolute}

	c.SetChargingProfile(p1)
	c.SetChargingProfile(p2)

	if len(c.ChargingProfiles) != 1 {
		t.Fatalf("expected 1 profile after replace, got %d", len(c.ChargingProfiles))
	}
	if c.ChargingProfiles[0].ChargingProfileKind != v16.ChargingProfileKindAbsolute {
		t.Error("expected the second profile to have replaced the first")
	}
}

func TestConnector_SetChargingProfile_ReplacesByPurposeAndStackLevel(t *testing.T) {
	c := NewConnector(1, "Type2", 22000)
	p1 := v16.ChargingProfile{ChargingProfileId: 1, StackLevel: 1, ChargingProfilePurpose: v16.ChargingProfilePurposeTxProfile}
	p2 := v16.ChargingProfile{ChargingProfileId: 2, StackLevel: 1, ChargingProfilePurpose: v16.ChargingProfilePurposeTxProfile}

	c.SetChargingProfile(p1)
	c.SetChargingProfile(p2)

	if len(c.ChargingProfiles) != 1 {
		t.Fatalf("expected 1 profile after stack-level replace, got %d", len(c.ChargingProfiles))
	}
	if c.ChargingProfiles[0].ChargingProfileId != 2 {
		t.Error("expected the profile with id 2 to have replaced id 1")
	}
}

func TestConnector_ClearMatching(t *testing.T) {
	c := NewConnector(1, "Type2", 22000)
	c.SetChargingProfile(v16.ChargingProfile{ChargingProfileId: 1, StackLevel: 1, ChargingProfilePurpose: v16.ChargingProfilePurposeTxProfile})
	c.SetChargingProfile(v16.ChargingProfile{ChargingProfileId: 2, StackLevel: 2, ChargingProfilePurpose: v16.ChargingProfilePurposeTxDefaultProfile})

	id := 1
	if !c.clearMatching(&id, "", nil) {
		t.Fatal("expected clearMatching by id to remove a profile")
	}
	if len(c.ChargingProfiles) != 1 {
		t.Fatalf("expected 1 profile remaining, got %d", len(c.ChargingProfiles))
	}
	if c.ChargingProfiles[0].ChargingProfileId != 2 {
		t.Error("expected profile id 2 to remain")
	}
}
