// Package fleet wires one simulated station's collaborators together:
// ocppcore.Station/Handlers/Router, the transport adapter, the ATG, and the
// boot/heartbeat lifecycle a real charge point runs through on connect.
// Grounded on internal/station/manager.go's OnStationConnected /
// sendBootNotification / handleBootNotificationResponse / startHeartbeat
// sequence (station/manager.go), adapted from its async pendingRequests
// dance to a direct synchronous call since internal/transport's
// OutboundAdapter already blocks for the paired CALLRESULT.
package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ruslanhut/ocpp-stationsim/internal/atg"
	"github.com/ruslanhut/ocpp-stationsim/internal/ocpp"
	"github.com/ruslanhut/ocpp-stationsim/internal/ocpp/v16"
	"github.com/ruslanhut/ocpp-stationsim/internal/ocppcore"
	"github.com/ruslanhut/ocpp-stationsim/internal/perf"
)

const defaultHeartbeatIntervalSeconds = 60

// Runner owns one simulated station end to end: its core state, its
// transport, its ATG, and the boot/heartbeat loop that keeps it talking to
// the CSMS.
type Runner struct {
	StationID string
	CSMSURL   string

	Station  *ocppcore.Station
	Handlers *ocppcore.Handlers
	Router   *ocppcore.Router
	ATG      *atg.ATG

	transport outboundTransport
	logger    *slog.Logger

	heartbeatInterval chan int
}

// outboundTransport is the narrow transport surface Runner depends on,
// satisfied by *internal/transport.Transport.
type outboundTransport interface {
	Connect(stationID, url string) error
	ocppcore.OutboundAdapter
}

// Params bundles the collaborators a Runner is built from.
type Params struct {
	Descriptor  ocppcore.Descriptor
	CSMSURL     string
	Transport   outboundTransport
	Diagnostics ocppcore.DiagnosticsUploader
	Sink        *perf.Sink
	Logger      *slog.Logger
}

// New builds a Runner from its descriptor and collaborators, wiring the
// station's command handlers, router, and (if enabled) ATG, but does not
// connect or start anything — call Start for that.
func New(p Params) *Runner {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("station_id", p.Descriptor.ChargingStationID)

	core := ocppcore.NewStation(p.Descriptor, logger)
	core.SetAdapter(p.Transport)

	r := &Runner{
		StationID:         p.Descriptor.ChargingStationID,
		CSMSURL:           p.CSMSURL,
		Station:           core,
		transport:         p.Transport,
		logger:            logger,
		heartbeatInterval: make(chan int, 1),
	}

	handlers := &ocppcore.Handlers{
		Station:                    core,
		Adapter:                    p.Transport,
		Diagnostics:                p.Diagnostics,
		Logger:                     logger,
		Schedule:                   r.schedule,
		OnHeartbeatIntervalChanged: r.setHeartbeatInterval,
	}
	r.Handlers = handlers

	h := v16.NewHandler(logger)
	h.OnReset = handlers.Reset
	h.OnClearCache = handlers.ClearCache
	h.OnUnlockConnector = handlers.UnlockConnector
	h.OnGetConfiguration = handlers.GetConfiguration
	h.OnChangeConfiguration = handlers.ChangeConfiguration
	h.OnSetChargingProfile = handlers.SetChargingProfile
	h.OnClearChargingProfile = handlers.ClearChargingProfile
	h.OnChangeAvailability = handlers.ChangeAvailability
	h.OnRemoteStartTransaction = handlers.RemoteStartTransaction
	h.OnRemoteStopTransaction = handlers.RemoteStopTransaction
	h.OnGetDiagnostics = handlers.GetDiagnostics
	h.OnTriggerMessage = handlers.TriggerMessage

	r.Router = ocppcore.NewRouter(h.HandleCall)

	if p.Descriptor.ATG.Enabled {
		r.ATG = atg.New(core, p.Sink, logger)
	}

	return r
}

// schedule implements ocppcore.Handlers.Schedule: run fn on the station's
// execution goroutine after delay, used by Reset and TriggerMessage.
func (r *Runner) schedule(delay time.Duration, fn func()) {
	time.AfterFunc(delay, func() { r.Station.Submit(fn) })
}

func (r *Runner) setHeartbeatInterval(seconds int) {
	select {
	case r.heartbeatInterval <- seconds:
	default:
		<-r.heartbeatInterval
		r.heartbeatInterval <- seconds
	}
}

// HandleCall routes an inbound CALL through the station's C3/C4 path and
// replies with a CALLRESULT (or CALLERROR for a gating rejection).
func (r *Runner) HandleCall(call *ocpp.Call) {
	resp, err := r.Router.Route(r.Station, r.StationID, call)
	if err != nil {
		if gateErr, ok := err.(*ocppcore.GateError); ok {
			if sendErr := sendGateError(r.transport, r.StationID, call.UniqueID, gateErr); sendErr != nil {
				r.logger.Error("failed to send CALLERROR", "error", sendErr)
			}
			return
		}
		r.logger.Error("command handling failed", "action", call.Action, "error", err)
		return
	}
	if err := r.transport.SendResponse(r.StationID, call.UniqueID, resp); err != nil {
		r.logger.Error("failed to send CALLRESULT", "action", call.Action, "error", err)
	}
}

func sendGateError(t outboundTransport, stationID, messageID string, gateErr *ocppcore.GateError) error {
	type errorSender interface {
		SendError(stationID, messageID string, code ocpp.ErrorCode, description string) error
	}
	if es, ok := t.(errorSender); ok {
		return es.SendError(stationID, messageID, gateErr.Code, gateErr.Msg)
	}
	return fmt.Errorf("transport does not support sending CALLERROR frames")
}

// Start connects the station, runs it through BootNotification, begins the
// heartbeat loop, and starts the ATG if the descriptor enables it. It
// returns once the station's execution goroutine and background loops are
// running; Stop (via ctx cancellation) tears them down.
func (r *Runner) Start(ctx context.Context) error {
	go r.Station.Run(ctx)

	if err := r.transport.Connect(r.StationID, r.CSMSURL); err != nil {
		return fmt.Errorf("connecting station %s: %w", r.StationID, err)
	}

	interval, err := r.bootNotification(ctx)
	if err != nil {
		return fmt.Errorf("booting station %s: %w", r.StationID, err)
	}

	r.sendInitialStatusNotifications(ctx)

	go r.heartbeatLoop(ctx, interval)

	if r.ATG != nil {
		r.ATG.Start()
	}

	return nil
}

// Stop halts the ATG cooperatively; the heartbeat loop and station
// goroutine stop when ctx (passed to Start) is cancelled.
func (r *Runner) Stop() {
	if r.ATG != nil {
		r.ATG.Stop(v16.ReasonOther)
	}
}

func (r *Runner) bootNotification(ctx context.Context) (int, error) {
	req := v16.BootNotificationRequest{
		ChargePointVendor: "stationsim",
		ChargePointModel:  r.StationID,
	}
	payload, err := r.transport.SendRequest(ctx, r.StationID, string(v16.ActionBootNotification), req, ocppcore.SendOptions{})
	if err != nil {
		return 0, fmt.Errorf("sending BootNotification: %w", err)
	}

	var resp v16.BootNotificationResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return 0, fmt.Errorf("parsing BootNotification response: %w", err)
	}

	switch resp.Status {
	case v16.RegistrationStatusAccepted:
		r.Station.Execute(func() { r.Station.Registration = ocppcore.RegistrationRegistered })
	case v16.RegistrationStatusPending:
		r.Station.Execute(func() { r.Station.Registration = ocppcore.RegistrationPending })
	default:
		r.Station.Execute(func() { r.Station.Registration = ocppcore.RegistrationUnregistered })
	}

	r.logger.Info("boot notification complete", "status", resp.Status, "interval", resp.Interval)

	interval := resp.Interval
	if interval <= 0 {
		interval = r.Station.Descriptor.HeartbeatIntervalSeconds
	}
	if interval <= 0 {
		interval = defaultHeartbeatIntervalSeconds
	}
	return interval, nil
}

func (r *Runner) sendInitialStatusNotifications(ctx context.Context) {
	for _, id := range r.Station.ConnectorIDs() {
		c, ok := r.Station.Connector(id)
		if !ok {
			continue
		}
		req := v16.StatusNotificationRequest{
			ConnectorId: c.ID,
			ErrorCode:   c.ErrorCode,
			Status:      c.Status,
		}
		if _, err := r.transport.SendRequest(ctx, r.StationID, string(v16.ActionStatusNotification), req, ocppcore.SendOptions{}); err != nil {
			r.logger.Warn("initial StatusNotification failed", "connector_id", id, "error", err)
		}
	}
}

func (r *Runner) heartbeatLoop(ctx context.Context, intervalSeconds int) {
	ticker := time.NewTicker(time.Duration(intervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case newInterval := <-r.heartbeatInterval:
			ticker.Reset(time.Duration(newInterval) * time.Second)
		case <-ticker.C:
			if _, err := r.transport.SendRequest(ctx, r.StationID, string(v16.ActionHeartbeat), v16.HeartbeatRequest{}, ocppcore.SendOptions{}); err != nil {
				r.logger.Warn("heartbeat failed", "error", err)
			}
		}
	}
}

// Registry is a concurrency-safe StationID -> Runner map, used by
// cmd/stationsim to dispatch inbound transport callbacks and feed the
// operator UI.
type Registry struct {
	mu      sync.RWMutex
	runners map[string]*Runner
}

// NewRegistry builds an empty Runner registry.
func NewRegistry() *Registry {
	return &Registry{runners: make(map[string]*Runner)}
}

func (reg *Registry) Add(r *Runner) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.runners[r.StationID] = r
}

func (reg *Registry) Get(stationID string) (*Runner, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.runners[stationID]
	return r, ok
}

func (reg *Registry) All() []*Runner {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]*Runner, 0, len(reg.runners))
	for _, r := range reg.runners {
		out = append(out, r)
	}
	return out
}
