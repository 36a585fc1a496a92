package ocppcore

import (
	"context"
	"log/slog"
)

// RegistrationState gates which incoming commands a station will process
// (§3, §4.3).
type RegistrationState string

const (
	RegistrationUnregistered RegistrationState = "Unregistered"
	RegistrationPending      RegistrationState = "Pending"
	RegistrationRegistered   RegistrationState = "Registered"
	RegistrationUnknown      RegistrationState = "Unknown"
)

// FeatureProfiles controls which optional OCPP 1.6 profiles a station
// advertises and enforces (§4.4 GetDiagnostics/SetChargingProfile/
// TriggerMessage all gate on these).
type FeatureProfiles struct {
	SmartCharging       bool
	FirmwareManagement  bool
	RemoteTrigger       bool
}

// Descriptor is the boot-time shape of a simulated station, loaded by the
// out-of-scope configuration collaborator (§6 "Station descriptor").
type Descriptor struct {
	ChargingStationID string
	ConnectorCount    int
	ConnectorMaxPower int

	ResetTimeSeconds int

	Features FeatureProfiles

	AuthorizedTags []string

	RequireAuthorize          bool
	AuthorizeRemoteTxRequests bool
	LocalAuthListEnabled      bool
	MayAuthorizeAtRemoteStart bool
	OCPPStrictCompliance      bool
	BeginEndMeterValues       bool
	OutOfOrderEndMeterValues  bool

	HeartbeatIntervalSeconds        int
	MeterValueSampleIntervalSeconds int

	ATG ATGParams
}

// ATGParams mirrors the spec's stationInfo.AutomaticTransactionGenerator
// block (§6, §4.5).
type ATGParams struct {
	Enabled                           bool
	ProbabilityOfStart                float64
	MinDurationSeconds                int
	MaxDurationSeconds                int
	MinDelayBetweenTwoTransactions    int
	MaxDelayBetweenTwoTransactions    int
	StopAfterHours                    float64
}

// Station is one simulated charge point: its connectors, configuration
// store, and registration state. Every field is owned by the station's
// single execution goroutine (§5) — nothing here is independently locked.
type Station struct {
	Descriptor Descriptor
	Logger     *slog.Logger

	Registration RegistrationState
	Connectors   map[int]*Connector // keyed by connector id, 0 = station pseudo-connector

	Config *ConfigStore

	nextTransactionID int
	compatibilityClearAllOnConnector bool
	adapter OutboundAdapter

	cmds chan func()
}

// SetAdapter wires the outbound adapter (C6) the station will use to reach
// the CSMS. Must be called once, before the station starts processing.
func (s *Station) SetAdapter(a OutboundAdapter) { s.adapter = a }

// Adapter satisfies ocppcore.CapabilitySet for the ATG.
func (s *Station) Adapter() OutboundAdapter { return s.adapter }

// StationDescriptor satisfies ocppcore.CapabilitySet; named to avoid
// colliding with the Descriptor field.
func (s *Station) StationDescriptor() Descriptor { return s.Descriptor }

// NewStation builds a station in its pre-registration boot state: every
// connector Available/Operative, connector 0 present as the station-level
// pseudo-connector.
func NewStation(d Descriptor, logger *slog.Logger) *Station {
	connectors := make(map[int]*Connector, d.ConnectorCount+1)
	connectors[0] = NewConnector(0, "station", 0)
	for i := 1; i <= d.ConnectorCount; i++ {
		connectors[i] = NewConnector(i, "Type2", d.ConnectorMaxPower)
	}

	cfg := NewConfigStore(DefaultConfigEntries(d.ConnectorCount, d.HeartbeatIntervalSeconds, d.MeterValueSampleIntervalSeconds))

	return &Station{
		Descriptor:   d,
		Logger:       logger,
		Registration: RegistrationUnregistered,
		Connectors:   connectors,
		Config:       cfg,
		// compatibilityClearAllOnConnector reproduces the observed source
		// behavior verbatim (DESIGN.md Open Question 1) rather than the
		// OCPP-conformant matching semantics; flagged for future correction.
		compatibilityClearAllOnConnector: true,
		cmds:                             make(chan func(), 64),
	}
}

// Run is the station's single execution goroutine (§5): every mutation of
// this station's connectors, config store, or registration state happens
// here, serialized through cmds, instead of behind per-field locks. It
// returns when ctx is done.
func (s *Station) Run(ctx context.Context) {
	for {
		select {
		case fn := <-s.cmds:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// Execute submits fn to run on the station's execution goroutine and blocks
// until it has run. Callers outside that goroutine (the ATG's per-connector
// drivers, a transport callback) must go through Execute rather than
// touching Connectors/Config directly.
func (s *Station) Execute(fn func()) {
	done := make(chan struct{})
	s.cmds <- func() {
		defer close(done)
		fn()
	}
	<-done
}

// Submit queues fn to run on the execution goroutine without waiting for it
// to complete, used for fire-and-forget scheduling (Reset's delayed
// completion log, TriggerMessage's delayed re-emission).
func (s *Station) Submit(fn func()) {
	s.cmds <- fn
}

// Connector looks up a connector by id, including the connector-0
// pseudo-connector.
func (s *Station) Connector(id int) (*Connector, bool) {
	c, ok := s.Connectors[id]
	return c, ok
}

// NextTransactionID hands out a monotonically increasing transaction id,
// grounded on the teacher's station.Manager.nextTransactionID counter
// (station/manager.go).
func (s *Station) NextTransactionID() int {
	s.nextTransactionID++
	return s.nextTransactionID
}

// IsAuthorizedTag reports whether idTag is in the station's local
// authorized-tag list (§6 station descriptor, §4.4 RemoteStartTransaction
// local-auth path).
func (s *Station) IsAuthorizedTag(idTag string) bool {
	for _, t := range s.Descriptor.AuthorizedTags {
		if t == idTag {
			return true
		}
	}
	return false
}

// CommandAllowed implements the C3 gating predicate of §4.3.
func (s *Station) CommandAllowed() bool {
	if s.Registration == RegistrationRegistered {
		return true
	}
	if s.Registration == RegistrationUnknown && !s.Descriptor.OCPPStrictCompliance {
		return true
	}
	return false
}
