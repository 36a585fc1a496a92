package ocppcore

import (
	"context"
	"encoding/json"

	"github.com/ruslanhut/ocpp-stationsim/internal/ocpp/v16"
)

// SendOptions tunes how an outbound request is dispatched (§4.6).
type SendOptions struct {
	// SkipBufferingOnError drops the send instead of queuing it when the
	// transport is currently down.
	SkipBufferingOnError bool
	// TriggerMessage marks the send as a one-shot response to a
	// TriggerMessage request: it bypasses normal retry/buffering gating.
	TriggerMessage bool
}

// OutboundAdapter is the core's only egress point (C6, §4.6). The core
// never touches a socket directly; a concrete transport collaborator
// (internal/transport) implements this interface on top of
// gorilla/websocket framing.
type OutboundAdapter interface {
	// SendRequest blocks until the paired CALLRESULT arrives (or ctx is
	// done / the transport reports failure) and returns its payload.
	SendRequest(ctx context.Context, stationID, command string, payload any, opts SendOptions) (json.RawMessage, error)
	// SendResponse emits a CALLRESULT frame for a previously received CALL.
	SendResponse(stationID, messageID string, payload any) error
}

// CapabilitySet is the narrow view of a station that the ATG (C5) depends
// on, breaking the station<->ATG cyclic reference called out in §9: the
// ATG never holds a *Station, only this interface.
type CapabilitySet interface {
	Connector(id int) (*Connector, bool)
	ConnectorIDs() []int
	NextTransactionID() int
	IsRegistered() bool
	IsAvailable() bool
	StationDescriptor() Descriptor
	Adapter() OutboundAdapter
	// Execute runs fn on the station's single execution goroutine and
	// blocks until it completes (§5) — the ATG must go through this
	// rather than mutating a Connector from its own goroutine.
	Execute(fn func())
}

// ConnectorIDs returns every connector id greater than 0, in ascending
// order, for ATG fan-out.
func (s *Station) ConnectorIDs() []int {
	ids := make([]int, 0, len(s.Connectors))
	for id := range s.Connectors {
		if id == 0 {
			continue
		}
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}

// IsRegistered reports whether the station has completed OCPP boot
// registration.
func (s *Station) IsRegistered() bool {
	return s.Registration == RegistrationRegistered
}

// IsAvailable reports whether the station-level pseudo-connector is
// operative (invariant 3).
func (s *Station) IsAvailable() bool {
	c, ok := s.Connectors[0]
	return ok && c.Availability != v16.AvailabilityTypeInoperative
}
