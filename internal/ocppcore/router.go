package ocppcore

import (
	"fmt"

	"github.com/ruslanhut/ocpp-stationsim/internal/ocpp"
)

// GateError is returned by the router when a command is refused before it
// ever reaches a C4 handler (§4.3, §7). The transport collaborator
// converts it to an OCPP CALLERROR via ocpp.NewCallError.
type GateError struct {
	Code ocpp.ErrorCode
	Msg  string
}

func (e *GateError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Msg) }

// Router implements C3: it gates an incoming command against the station's
// registration state before dispatching to the registered v16.Handler.
type Router struct {
	handle func(stationID string, call *ocpp.Call) (interface{}, error)
}

// NewRouter wraps a dispatch function (typically *v16.Handler.HandleCall)
// with the gating predicate of §4.3.
func NewRouter(handle func(stationID string, call *ocpp.Call) (interface{}, error)) *Router {
	return &Router{handle: handle}
}

// remoteTxCommands are rejected outright while the station is Pending and
// strict compliance is enabled (§4.3 rule 1).
var remoteTxCommands = map[string]bool{
	"RemoteStartTransaction": true,
	"RemoteStopTransaction":  true,
}

// Route applies the §4.3 gating rules and, if the command is accepted,
// dispatches it to the wrapped handler.
func (r *Router) Route(station *Station, stationID string, call *ocpp.Call) (interface{}, error) {
	if station.Registration == RegistrationPending && station.Descriptor.OCPPStrictCompliance && remoteTxCommands[call.Action] {
		return nil, &GateError{Code: ocpp.ErrorCodeSecurityError, Msg: fmt.Sprintf("station pending registration, rejecting %s under strict compliance", call.Action)}
	}

	if !station.CommandAllowed() {
		return nil, &GateError{Code: ocpp.ErrorCodeSecurityError, Msg: "station is not registered"}
	}

	resp, err := r.handle(stationID, call)
	if err != nil {
		return nil, fmt.Errorf("dispatching %s: %w", call.Action, err)
	}
	return resp, nil
}
