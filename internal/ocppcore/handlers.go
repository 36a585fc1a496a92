package ocppcore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/ruslanhut/ocpp-stationsim/internal/ocpp/v16"
)

// defaultRequestTimeout bounds how long a C4 handler waits for a paired
// CALLRESULT before giving up (§5 "Timeouts").
const defaultRequestTimeout = 30 * time.Second

// triggerMessageDelay is the fixed delay TriggerMessage schedules its
// re-emission after (§4.4).
const triggerMessageDelay = 2 * time.Second

// DiagnosticsUploader is the out-of-scope collaborator that collects log
// files and ships them to the location GetDiagnostics names (§4.4). The
// concrete implementation lives in internal/diagnostics.
type DiagnosticsUploader interface {
	Upload(ctx context.Context, stationID, location, archiveName string, onProgress func(status v16.DiagnosticsStatus)) error
}

// Handlers implements C4: one method per incoming OCPP 1.6 command,
// grounded on the teacher's station.Manager callback wiring
// (station/manager.go setupV16HandlerCallbacks) but with real command
// semantics instead of TODO stubs.
type Handlers struct {
	Station     *Station
	Adapter     OutboundAdapter
	Diagnostics DiagnosticsUploader
	Logger      *slog.Logger

	// Schedule submits fn to run on the station's single execution
	// goroutine after delay has elapsed (§5 cooperative scheduling). Used
	// by TriggerMessage and Reset.
	Schedule func(delay time.Duration, fn func())

	// OnHeartbeatIntervalChanged and OnPingIntervalChanged let the
	// ambient stack (heartbeat/ping loops owned by the transport
	// collaborator) react to ChangeConfiguration side effects (§4.2).
	OnHeartbeatIntervalChanged func(seconds int)
	OnPingIntervalChanged      func(seconds int)
}

func (h *Handlers) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), defaultRequestTimeout)
}

func (h *Handlers) stationID() string { return h.Station.Descriptor.ChargingStationID }

// ==================== Reset ====================

func (h *Handlers) Reset(stationID string, req *v16.ResetRequest) (*v16.ResetResponse, error) {
	delay := time.Duration(h.Station.Descriptor.ResetTimeSeconds) * time.Second
	if h.Schedule != nil {
		h.Schedule(delay, func() {
			h.Logger.Info("station reset complete", "station_id", stationID, "type", req.Type)
		})
	}
	return &v16.ResetResponse{Status: v16.ResetStatusAccepted}, nil
}

// ==================== ClearCache ====================

func (h *Handlers) ClearCache(stationID string, req *v16.ClearCacheRequest) (*v16.ClearCacheResponse, error) {
	return &v16.ClearCacheResponse{Status: "Accepted"}, nil
}

// ==================== UnlockConnector ====================

func (h *Handlers) UnlockConnector(stationID string, req *v16.UnlockConnectorRequest) (*v16.UnlockConnectorResponse, error) {
	if req.ConnectorId == 0 {
		return &v16.UnlockConnectorResponse{Status: v16.UnlockStatusNotSupported}, nil
	}

	c, ok := h.Station.Connector(req.ConnectorId)
	if !ok {
		return &v16.UnlockConnectorResponse{Status: v16.UnlockStatusNotSupported}, nil
	}

	if c.TransactionStarted {
		if h.shouldEmitEndMeterValue() {
			h.sendTransactionEndMeterValue(c)
		}

		resp, err := h.sendStopTransaction(c, v16.ReasonUnlockCommand)
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return &v16.UnlockConnectorResponse{Status: v16.UnlockStatusUnlockFailed}, nil
		}
		return &v16.UnlockConnectorResponse{Status: v16.UnlockStatusUnlocked}, nil
	}

	h.sendStatusNotification(c, v16.ChargePointStatusAvailable, v16.ChargePointErrorNoError, "")
	c.ForceStatus(v16.ChargePointStatusAvailable)
	return &v16.UnlockConnectorResponse{Status: v16.UnlockStatusUnlocked}, nil
}

// ==================== GetConfiguration / ChangeConfiguration ====================

func (h *Handlers) GetConfiguration(stationID string, req *v16.GetConfigurationRequest) (*v16.GetConfigurationResponse, error) {
	found, unknown := h.Station.Config.ListVisible(req.Key)
	kv := make([]v16.KeyValue, 0, len(found))
	for _, e := range found {
		kv = append(kv, v16.KeyValue{Key: e.Key, Readonly: e.Readonly, Value: e.Value})
	}
	return &v16.GetConfigurationResponse{ConfigurationKey: kv, UnknownKey: unknown}, nil
}

func (h *Handlers) ChangeConfiguration(stationID string, req *v16.ChangeConfigurationRequest) (*v16.ChangeConfigurationResponse, error) {
	result := h.Station.Config.Set(req.Key, req.Value)
	switch result {
	case SetUnknownKey:
		// Normalized per the spec's resolved Open Question 2: unknown
		// keys are always NotSupported, never silently accepted.
		return &v16.ChangeConfigurationResponse{Status: v16.ConfigurationStatusNotSupported}, nil
	case SetRejectedReadonly:
		return &v16.ChangeConfigurationResponse{Status: v16.ConfigurationStatusRejected}, nil
	}

	if isHeartbeatAlias(req.Key) && h.OnHeartbeatIntervalChanged != nil {
		if seconds, err := parseSeconds(req.Value); err == nil {
			h.OnHeartbeatIntervalChanged(seconds)
		}
	}
	if req.Key == "WebSocketPingInterval" && h.OnPingIntervalChanged != nil {
		if seconds, err := parseSeconds(req.Value); err == nil {
			h.OnPingIntervalChanged(seconds)
		}
	}

	if result == SetRebootRequired {
		return &v16.ChangeConfigurationResponse{Status: v16.ConfigurationStatusRebootRequired}, nil
	}
	return &v16.ChangeConfigurationResponse{Status: v16.ConfigurationStatusAccepted}, nil
}

func parseSeconds(value string) (int, error) {
	var seconds int
	_, err := fmt.Sscanf(value, "%d", &seconds)
	return seconds, err
}

// ==================== SetChargingProfile / ClearChargingProfile ====================

func (h *Handlers) SetChargingProfile(stationID string, req *v16.SetChargingProfileRequest) (*v16.SetChargingProfileResponse, error) {
	if !h.Station.Descriptor.Features.SmartCharging {
		return &v16.SetChargingProfileResponse{Status: v16.ChargingProfileStatusNotSupported}, nil
	}

	c, ok := h.Station.Connector(req.ConnectorId)
	if !ok {
		return &v16.SetChargingProfileResponse{Status: v16.ChargingProfileStatusRejected}, nil
	}

	purpose := req.CsChargingProfiles.ChargingProfilePurpose
	if purpose == v16.ChargingProfilePurposeChargePointMaxProfile && req.ConnectorId != 0 {
		return &v16.SetChargingProfileResponse{Status: v16.ChargingProfileStatusRejected}, nil
	}
	if purpose == v16.ChargingProfilePurposeTxProfile && (req.ConnectorId == 0 || !c.TransactionStarted) {
		return &v16.SetChargingProfileResponse{Status: v16.ChargingProfileStatusRejected}, nil
	}

	c.SetChargingProfile(req.CsChargingProfiles)
	return &v16.SetChargingProfileResponse{Status: v16.ChargingProfileStatusAccepted}, nil
}

func (h *Handlers) ClearChargingProfile(stationID string, req *v16.ClearChargingProfileRequest) (*v16.ClearChargingProfileResponse, error) {
	if !h.Station.Descriptor.Features.SmartCharging {
		return &v16.ClearChargingProfileResponse{Status: v16.ClearChargingProfileStatusUnknown}, nil
	}

	if req.ConnectorId != nil && *req.ConnectorId > 0 {
		c, ok := h.Station.Connector(*req.ConnectorId)
		if !ok {
			return &v16.ClearChargingProfileResponse{Status: v16.ClearChargingProfileStatusUnknown}, nil
		}
		// Reproduces the observed source behavior verbatim: any
		// connectorId > 0 clears every profile on that connector
		// regardless of id/purpose/stackLevel (DESIGN.md Open Question 1).
		if h.Station.compatibilityClearAllOnConnector && c.clearAllProfiles() {
			return &v16.ClearChargingProfileResponse{Status: v16.ClearChargingProfileStatusAccepted}, nil
		}
		return &v16.ClearChargingProfileResponse{Status: v16.ClearChargingProfileStatusUnknown}, nil
	}

	clearedAny := false
	for _, c := range h.Station.Connectors {
		if c.clearMatching(req.Id, req.ChargingProfilePurpose, req.StackLevel) {
			clearedAny = true
		}
	}
	if !clearedAny {
		return &v16.ClearChargingProfileResponse{Status: v16.ClearChargingProfileStatusUnknown}, nil
	}
	return &v16.ClearChargingProfileResponse{Status: v16.ClearChargingProfileStatusAccepted}, nil
}

// ==================== ChangeAvailability ====================

func (h *Handlers) ChangeAvailability(stationID string, req *v16.ChangeAvailabilityRequest) (*v16.ChangeAvailabilityResponse, error) {
	targetStatus := v16.ChargePointStatusUnavailable
	if req.Type == v16.AvailabilityTypeOperative {
		targetStatus = v16.ChargePointStatusAvailable
	}

	if req.ConnectorId == 0 {
		scheduled := false
		for id, c := range h.Station.Connectors {
			if id == 0 {
				continue
			}
			if c.TransactionStarted {
				scheduled = true
				c.Availability = req.Type
				continue
			}
			c.Availability = req.Type
			h.sendStatusNotification(c, targetStatus, v16.ChargePointErrorNoError, "")
			c.ForceStatus(targetStatus)
		}
		h.Station.Connectors[0].Availability = req.Type
		if scheduled {
			return &v16.ChangeAvailabilityResponse{Status: v16.AvailabilityStatusScheduled}, nil
		}
		return &v16.ChangeAvailabilityResponse{Status: v16.AvailabilityStatusAccepted}, nil
	}

	c, ok := h.Station.Connector(req.ConnectorId)
	if !ok {
		return &v16.ChangeAvailabilityResponse{Status: v16.AvailabilityStatusRejected}, nil
	}

	stationOperative := h.Station.IsAvailable()
	bothInoperative := !stationOperative && req.Type == v16.AvailabilityTypeInoperative
	if !stationOperative && !bothInoperative {
		return &v16.ChangeAvailabilityResponse{Status: v16.AvailabilityStatusRejected}, nil
	}

	if c.TransactionStarted {
		c.Availability = req.Type
		return &v16.ChangeAvailabilityResponse{Status: v16.AvailabilityStatusScheduled}, nil
	}

	c.Availability = req.Type
	h.sendStatusNotification(c, targetStatus, v16.ChargePointErrorNoError, "")
	c.ForceStatus(targetStatus)
	return &v16.ChangeAvailabilityResponse{Status: v16.AvailabilityStatusAccepted}, nil
}

// ==================== RemoteStartTransaction / RemoteStopTransaction ====================

func (h *Handlers) RemoteStartTransaction(stationID string, req *v16.RemoteStartTransactionRequest) (*v16.RemoteStartTransactionResponse, error) {
	if req.ConnectorId == nil || *req.ConnectorId <= 0 {
		return &v16.RemoteStartTransactionResponse{Status: v16.RemoteStartStopStatusRejected}, nil
	}
	connectorID := *req.ConnectorId

	c, ok := h.Station.Connector(connectorID)
	if !ok {
		return &v16.RemoteStartTransactionResponse{Status: v16.RemoteStartStopStatusRejected}, nil
	}

	if !h.Station.IsAvailable() || !c.IsAvailable() || c.TransactionStarted {
		return &v16.RemoteStartTransactionResponse{Status: v16.RemoteStartStopStatusRejected}, nil
	}

	h.sendStatusNotification(c, v16.ChargePointStatusPreparing, v16.ChargePointErrorNoError, "")
	c.ForceStatus(v16.ChargePointStatusPreparing)

	d := h.Station.Descriptor
	authorized := true
	if d.AuthorizeRemoteTxRequests {
		authorized = false
		if d.LocalAuthListEnabled && len(d.AuthorizedTags) > 0 && h.Station.IsAuthorizedTag(req.IdTag) {
			c.LocalAuthorizeIDTag = req.IdTag
			c.IDTagLocalAuthorized = true
			authorized = true
		} else if d.MayAuthorizeAtRemoteStart {
			c.AuthorizeIDTag = req.IdTag
			resp, err := h.sendAuthorize(req.IdTag)
			if err != nil {
				return nil, err
			}
			authorized = resp != nil && resp.IdTagInfo.Status == v16.AuthorizationStatusAccepted
		} else {
			h.Logger.Warn("RemoteStartTransaction: authorizeRemoteTxRequests set but no authorization path configured", "station_id", stationID)
		}
	}
	if !authorized {
		return h.notifyRejected(c, req.IdTag)
	}

	if req.ChargingProfile != nil {
		if req.ChargingProfile.ChargingProfilePurpose != v16.ChargingProfilePurposeTxProfile {
			h.Logger.Warn("RemoteStartTransaction: rejecting non-TxProfile chargingProfile", "station_id", stationID)
			return h.notifyRejected(c, req.IdTag)
		}
		c.SetChargingProfile(*req.ChargingProfile)
	}

	c.TransactionRemoteStarted = true
	resp, err := h.sendStartTransaction(c, req.IdTag)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return h.notifyRejected(c, req.IdTag)
	}
	return &v16.RemoteStartTransactionResponse{Status: v16.RemoteStartStopStatusAccepted}, nil
}

func (h *Handlers) notifyRejected(c *Connector, idTag string) (*v16.RemoteStartTransactionResponse, error) {
	if c.Status != v16.ChargePointStatusAvailable {
		h.sendStatusNotification(c, v16.ChargePointStatusAvailable, v16.ChargePointErrorNoError, "")
		c.ForceStatus(v16.ChargePointStatusAvailable)
	}
	h.Logger.Info("RemoteStartTransaction rejected", "connector_id", c.ID, "id_tag", idTag)
	return &v16.RemoteStartTransactionResponse{Status: v16.RemoteStartStopStatusRejected}, nil
}

func (h *Handlers) RemoteStopTransaction(stationID string, req *v16.RemoteStopTransactionRequest) (*v16.RemoteStopTransactionResponse, error) {
	var target *Connector
	for id, c := range h.Station.Connectors {
		if id == 0 {
			continue
		}
		if c.TransactionStarted && c.TransactionID == req.TransactionId {
			target = c
			break
		}
	}
	if target == nil {
		h.Logger.Info("RemoteStopTransaction: no connector has transaction", "transaction_id", req.TransactionId)
		return &v16.RemoteStopTransactionResponse{Status: v16.RemoteStartStopStatusRejected}, nil
	}

	h.sendStatusNotification(target, v16.ChargePointStatusFinishing, v16.ChargePointErrorNoError, "")
	target.ForceStatus(v16.ChargePointStatusFinishing)

	if h.shouldEmitEndMeterValue() {
		h.sendTransactionEndMeterValue(target)
	}

	if _, err := h.sendStopTransaction(target, v16.ReasonRemote); err != nil {
		return nil, err
	}
	return &v16.RemoteStopTransactionResponse{Status: v16.RemoteStartStopStatusAccepted}, nil
}

// ==================== GetDiagnostics ====================

func (h *Handlers) GetDiagnostics(stationID string, req *v16.GetDiagnosticsRequest) (*v16.GetDiagnosticsResponse, error) {
	if !h.Station.Descriptor.Features.FirmwareManagement {
		return &v16.GetDiagnosticsResponse{}, nil
	}
	if h.Diagnostics == nil {
		return &v16.GetDiagnosticsResponse{}, nil
	}

	u, err := url.Parse(req.Location)
	if err != nil || u.Scheme != "ftp" {
		h.Logger.Warn("GetDiagnostics: unsupported location scheme", "station_id", stationID, "location", req.Location)
		h.sendDiagnosticsStatus(v16.DiagnosticsStatusUploadFailed)
		return &v16.GetDiagnosticsResponse{}, nil
	}

	archiveName := fmt.Sprintf("%s_logs.tar.gz", stationID)

	go func() {
		uploadCtx, uploadCancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer uploadCancel()
		err := h.Diagnostics.Upload(uploadCtx, stationID, req.Location, archiveName, func(status v16.DiagnosticsStatus) {
			h.sendDiagnosticsStatus(status)
		})
		if err != nil {
			h.Logger.Error("diagnostics upload failed", "station_id", stationID, "error", err)
		}
	}()

	return &v16.GetDiagnosticsResponse{FileName: archiveName}, nil
}

// ==================== TriggerMessage ====================

func (h *Handlers) TriggerMessage(stationID string, req *v16.TriggerMessageRequest) (*v16.TriggerMessageResponse, error) {
	if !h.Station.Descriptor.Features.RemoteTrigger {
		return &v16.TriggerMessageResponse{Status: v16.TriggerMessageStatusNotImplemented}, nil
	}
	if req.ConnectorId != nil && *req.ConnectorId < 0 {
		return &v16.TriggerMessageResponse{Status: v16.TriggerMessageStatusRejected}, nil
	}

	switch req.RequestedMessage {
	case v16.MessageTriggerBootNotification, v16.MessageTriggerHeartbeat:
		h.scheduleTrigger(func() { h.emitTrigger(req.RequestedMessage, nil) })
	case v16.MessageTriggerStatusNotification:
		if req.ConnectorId != nil {
			id := *req.ConnectorId
			h.scheduleTrigger(func() { h.emitTrigger(req.RequestedMessage, &id) })
		} else {
			for _, id := range h.Station.ConnectorIDs() {
				id := id
				h.scheduleTrigger(func() { h.emitTrigger(req.RequestedMessage, &id) })
			}
		}
	default:
		return &v16.TriggerMessageResponse{Status: v16.TriggerMessageStatusNotImplemented}, nil
	}

	return &v16.TriggerMessageResponse{Status: v16.TriggerMessageStatusAccepted}, nil
}

func (h *Handlers) scheduleTrigger(fn func()) {
	if h.Schedule != nil {
		h.Schedule(triggerMessageDelay, fn)
		return
	}
	go func() {
		time.Sleep(triggerMessageDelay)
		fn()
	}()
}

func (h *Handlers) emitTrigger(msg v16.MessageTrigger, connectorID *int) {
	switch msg {
	case v16.MessageTriggerBootNotification:
		h.sendBootNotification()
	case v16.MessageTriggerHeartbeat:
		h.sendHeartbeat()
	case v16.MessageTriggerStatusNotification:
		if connectorID == nil {
			return
		}
		c, ok := h.Station.Connector(*connectorID)
		if !ok {
			return
		}
		h.sendStatusNotification(c, c.Status, c.ErrorCode, c.Info)
	}
}

// ==================== outbound helpers ====================

func (h *Handlers) shouldEmitEndMeterValue() bool {
	d := h.Station.Descriptor
	return d.BeginEndMeterValues && d.OCPPStrictCompliance && !d.OutOfOrderEndMeterValues
}

func (h *Handlers) sendTransactionEndMeterValue(c *Connector) {
	ctx, cancel := h.ctx()
	defer cancel()
	req := v16.MeterValuesRequest{
		ConnectorId:   c.ID,
		TransactionId: &c.TransactionID,
		MeterValue: []v16.MeterValue{{
			Timestamp: v16.DateTime{Time: time.Now()},
			SampledValue: []v16.SampledValue{{
				Value:     fmt.Sprintf("%d", c.EnergyRegister),
				Context:   v16.ReadingContextTransactionEnd,
				Measurand: v16.MeasurandEnergyActiveImportRegister,
				Unit:      v16.UnitOfMeasureWh,
			}},
		}},
	}
	if _, err := h.Adapter.SendRequest(ctx, h.stationID(), string(v16.ActionMeterValues), req, SendOptions{}); err != nil {
		h.Logger.Warn("transaction-end MeterValues failed", "connector_id", c.ID, "error", err)
	}
}

func (h *Handlers) sendStatusNotification(c *Connector, status v16.ChargePointStatus, errCode v16.ChargePointErrorCode, info string) {
	ctx, cancel := h.ctx()
	defer cancel()
	req := v16.StatusNotificationRequest{ConnectorId: c.ID, Status: status, ErrorCode: errCode, Info: info}
	if _, err := h.Adapter.SendRequest(ctx, h.stationID(), string(v16.ActionStatusNotification), req, SendOptions{}); err != nil {
		h.Logger.Warn("StatusNotification failed", "connector_id", c.ID, "error", err)
	}
}

func (h *Handlers) sendAuthorize(idTag string) (*v16.AuthorizeResponse, error) {
	ctx, cancel := h.ctx()
	defer cancel()
	raw, err := h.Adapter.SendRequest(ctx, h.stationID(), string(v16.ActionAuthorize), v16.AuthorizeRequest{IdTag: idTag}, SendOptions{})
	if err != nil {
		return nil, fmt.Errorf("Authorize: %w", err)
	}
	var resp v16.AuthorizeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("Authorize response: %w", err)
	}
	return &resp, nil
}

func (h *Handlers) sendStartTransaction(c *Connector, idTag string) (*v16.StartTransactionResponse, error) {
	ctx, cancel := h.ctx()
	defer cancel()
	req := v16.StartTransactionRequest{
		ConnectorId: c.ID,
		IdTag:       idTag,
		MeterStart:  c.EnergyRegister,
		Timestamp:   v16.DateTime{Time: time.Now()},
	}
	raw, err := h.Adapter.SendRequest(ctx, h.stationID(), string(v16.ActionStartTransaction), req, SendOptions{})
	if err != nil {
		return nil, fmt.Errorf("StartTransaction: %w", err)
	}
	var resp v16.StartTransactionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("StartTransaction response: %w", err)
	}
	if resp.IdTagInfo.Status != v16.AuthorizationStatusAccepted {
		return nil, nil
	}
	if err := c.StartTransaction(resp.TransactionId, idTag, c.EnergyRegister); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (h *Handlers) sendStopTransaction(c *Connector, reason v16.Reason) (*v16.StopTransactionResponse, error) {
	ctx, cancel := h.ctx()
	defer cancel()
	req := v16.StopTransactionRequest{
		IdTag:         c.TransactionIDTag,
		MeterStop:     c.EnergyRegister,
		Timestamp:     v16.DateTime{Time: time.Now()},
		TransactionId: c.TransactionID,
		Reason:        reason,
	}
	raw, err := h.Adapter.SendRequest(ctx, h.stationID(), string(v16.ActionStopTransaction), req, SendOptions{})
	if err != nil {
		return nil, fmt.Errorf("StopTransaction: %w", err)
	}
	var resp v16.StopTransactionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("StopTransaction response: %w", err)
	}
	c.EndTransaction()
	return &resp, nil
}

func (h *Handlers) sendDiagnosticsStatus(status v16.DiagnosticsStatus) {
	ctx, cancel := h.ctx()
	defer cancel()
	req := v16.DiagnosticsStatusNotificationRequest{Status: status}
	if _, err := h.Adapter.SendRequest(ctx, h.stationID(), string(v16.ActionDiagnosticsStatusNotification), req, SendOptions{}); err != nil {
		h.Logger.Warn("DiagnosticsStatusNotification failed", "status", status, "error", err)
	}
}

func (h *Handlers) sendBootNotification() {
	ctx, cancel := h.ctx()
	defer cancel()
	req := v16.BootNotificationRequest{ChargePointVendor: "stationsim", ChargePointModel: h.stationID()}
	if _, err := h.Adapter.SendRequest(ctx, h.stationID(), string(v16.ActionBootNotification), req, SendOptions{TriggerMessage: true}); err != nil {
		h.Logger.Warn("triggered BootNotification failed", "error", err)
	}
}

func (h *Handlers) sendHeartbeat() {
	ctx, cancel := h.ctx()
	defer cancel()
	if _, err := h.Adapter.SendRequest(ctx, h.stationID(), string(v16.ActionHeartbeat), v16.HeartbeatRequest{}, SendOptions{TriggerMessage: true}); err != nil {
		h.Logger.Warn("triggered Heartbeat failed", "error", err)
	}
}
