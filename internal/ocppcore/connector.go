// Package ocppcore implements the OCPP 1.6 charge-point core: connector
// state, the configuration store, incoming-command routing/handling, and
// the outbound request adapter contract. Every exported type here is meant
// to be touched only from a station's single execution goroutine; nothing
// in this package takes its own lock (see Station.run).
package ocppcore

import (
	"fmt"
	"time"

	"github.com/ruslanhut/ocpp-stationsim/internal/ocpp/v16"
)

// Connector is one physical socket on a station. Connector 0 is the
// station-level pseudo-connector used for station-wide availability.
type Connector struct {
	ID        int
	Type      string
	MaxPower  int
	Status    v16.ChargePointStatus
	ErrorCode v16.ChargePointErrorCode
	Info      string

	Availability v16.AvailabilityType

	TransactionStarted    bool
	TransactionID         int
	TransactionIDTag      string
	TransactionStartMeter int
	EnergyRegister        int // Wh, current meter reading for the running transaction
	TransactionRemoteStarted bool

	AuthorizeIDTag        string
	LocalAuthorizeIDTag   string
	IDTagLocalAuthorized  bool

	ChargingProfiles []v16.ChargingProfile

	LastStateChange time.Time
}

// NewConnector builds a connector in its boot state: Available, Operative,
// no transaction, empty profile stack.
func NewConnector(id int, connectorType string, maxPower int) *Connector {
	return &Connector{
		ID:              id,
		Type:            connectorType,
		MaxPower:        maxPower,
		Status:          v16.ChargePointStatusAvailable,
		ErrorCode:       v16.ChargePointErrorNoError,
		Availability:    v16.AvailabilityTypeOperative,
		LastStateChange: time.Now(),
	}
}

var validConnectorTransitions = map[v16.ChargePointStatus][]v16.ChargePointStatus{
	v16.ChargePointStatusAvailable: {
		v16.ChargePointStatusPreparing,
		v16.ChargePointStatusReserved,
		v16.ChargePointStatusUnavailable,
		v16.ChargePointStatusFaulted,
	},
	v16.ChargePointStatusPreparing: {
		v16.ChargePointStatusCharging,
		v16.ChargePointStatusAvailable,
		v16.ChargePointStatusSuspendedEVSE,
		v16.ChargePointStatusSuspendedEV,
		v16.ChargePointStatusFaulted,
	},
	v16.ChargePointStatusCharging: {
		v16.ChargePointStatusSuspendedEVSE,
		v16.ChargePointStatusSuspendedEV,
		v16.ChargePointStatusFinishing,
		v16.ChargePointStatusFaulted,
	},
	v16.ChargePointStatusSuspendedEVSE: {
		v16.ChargePointStatusCharging,
		v16.ChargePointStatusFinishing,
		v16.ChargePointStatusFaulted,
	},
	v16.ChargePointStatusSuspendedEV: {
		v16.ChargePointStatusCharging,
		v16.ChargePointStatusFinishing,
		v16.ChargePointStatusFaulted,
	},
	v16.ChargePointStatusFinishing: {
		v16.ChargePointStatusAvailable,
		v16.ChargePointStatusReserved,
		v16.ChargePointStatusFaulted,
	},
	v16.ChargePointStatusReserved: {
		v16.ChargePointStatusAvailable,
		v16.ChargePointStatusPreparing,
		v16.ChargePointStatusFaulted,
	},
	v16.ChargePointStatusUnavailable: {
		v16.ChargePointStatusAvailable,
		v16.ChargePointStatusFaulted,
	},
	v16.ChargePointStatusFaulted: {
		v16.ChargePointStatusAvailable,
		v16.ChargePointStatusUnavailable,
	},
}

func (c *Connector) canTransitionTo(newStatus v16.ChargePointStatus) bool {
	for _, allowed := range validConnectorTransitions[c.Status] {
		if allowed == newStatus {
			return true
		}
	}
	return false
}

// SetStatus moves the connector to newStatus, rejecting transitions the
// OCPP 1.6 status machine doesn't allow.
func (c *Connector) SetStatus(newStatus v16.ChargePointStatus, errorCode v16.ChargePointErrorCode, info string) error {
	if newStatus == c.Status {
		c.ErrorCode = errorCode
		c.Info = info
		return nil
	}
	if !c.canTransitionTo(newStatus) {
		return fmt.Errorf("connector %d: invalid status transition %s -> %s", c.ID, c.Status, newStatus)
	}
	c.Status = newStatus
	c.ErrorCode = errorCode
	c.Info = info
	c.LastStateChange = time.Now()
	return nil
}

// ForceStatus sets status without transition validation, used when a
// dominating station-level availability change pushes every connector to
// Unavailable (invariant 3, see ocppcore.Station.SetAvailability).
func (c *Connector) ForceStatus(newStatus v16.ChargePointStatus) {
	if newStatus == c.Status {
		return
	}
	c.Status = newStatus
	c.LastStateChange = time.Now()
}

// StartTransaction installs a new running transaction on the connector.
// Enforces invariant 5: at most one transaction per connector.
func (c *Connector) StartTransaction(transactionID int, idTag string, meterStart int) error {
	if c.TransactionStarted {
		return fmt.Errorf("connector %d already has a running transaction", c.ID)
	}
	c.TransactionStarted = true
	c.TransactionID = transactionID
	c.TransactionIDTag = idTag
	c.TransactionStartMeter = meterStart
	c.EnergyRegister = meterStart
	return nil
}

// EndTransaction clears every transient field associated with a finished
// transaction (per §3 lifecycle: "on destruction all transient fields...
// reset").
func (c *Connector) EndTransaction() {
	c.TransactionStarted = false
	c.TransactionID = 0
	c.TransactionIDTag = ""
	c.TransactionStartMeter = 0
	c.EnergyRegister = 0
	c.TransactionRemoteStarted = false
	c.AuthorizeIDTag = ""
	c.LocalAuthorizeIDTag = ""
	c.IDTagLocalAuthorized = false
	c.ChargingProfiles = clearPurpose(c.ChargingProfiles, v16.ChargingProfilePurposeTxProfile)
}

// UpdateMeter advances the connector's energy register, used by meter value
// simulation and by handlers that need the current reading for a
// transaction-end sample.
func (c *Connector) UpdateMeter(value int) {
	c.EnergyRegister = value
}

// IsAvailable reports whether the connector can accept a new transaction.
func (c *Connector) IsAvailable() bool {
	return c.Availability == v16.AvailabilityTypeOperative &&
		(c.Status == v16.ChargePointStatusAvailable || c.Status == v16.ChargePointStatusPreparing)
}

// SetChargingProfile installs cp on the stack, replacing any profile that
// shares its chargingProfileId or its (purpose, stackLevel) pair — OCPP 1.6
// SetChargingProfile replacement semantics (§4.4).
func (c *Connector) SetChargingProfile(cp v16.ChargingProfile) {
	filtered := c.ChargingProfiles[:0:0]
	for _, existing := range c.ChargingProfiles {
		sameID := existing.ChargingProfileId == cp.ChargingProfileId
		samePurposeLevel := existing.ChargingProfilePurpose == cp.ChargingProfilePurpose && existing.StackLevel == cp.StackLevel
		if sameID || samePurposeLevel {
			continue
		}
		filtered = append(filtered, existing)
	}
	c.ChargingProfiles = append(filtered, cp)
}

// clearAllProfiles empties the connector's profile stack, reproducing the
// observed (non-conformant) ClearChargingProfile behavior — see
// ocppcore.ClearChargingProfile and DESIGN.md Open Question 1.
func (c *Connector) clearAllProfiles() bool {
	cleared := len(c.ChargingProfiles) > 0
	c.ChargingProfiles = nil
	return cleared
}

func clearPurpose(profiles []v16.ChargingProfile, purpose v16.ChargingProfilePurpose) []v16.ChargingProfile {
	kept := profiles[:0:0]
	for _, p := range profiles {
		if p.ChargingProfilePurpose == purpose {
			continue
		}
		kept = append(kept, p)
	}
	return kept
}

// clearMatching removes every profile matching the ClearChargingProfile
// criteria (any combination of id/purpose/stackLevel being present), per
// §4.4. Returns whether anything was removed.
func (c *Connector) clearMatching(id *int, purpose v16.ChargingProfilePurpose, stackLevel *int) bool {
	kept := c.ChargingProfiles[:0:0]
	removedAny := false
	for _, p := range c.ChargingProfiles {
		if profileMatches(p, id, purpose, stackLevel) {
			removedAny = true
			continue
		}
		kept = append(kept, p)
	}
	c.ChargingProfiles = kept
	return removedAny
}

func profileMatches(p v16.ChargingProfile, id *int, purpose v16.ChargingProfilePurpose, stackLevel *int) bool {
	if id != nil && p.ChargingProfileId == *id {
		return true
	}
	if purpose != "" && stackLevel != nil {
		return p.ChargingProfilePurpose == purpose && p.StackLevel == *stackLevel
	}
	if purpose != "" && stackLevel == nil {
		return p.ChargingProfilePurpose == purpose
	}
	if purpose == "" && stackLevel != nil {
		return p.StackLevel == *stackLevel
	}
	return false
}
