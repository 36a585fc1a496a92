// Package atg implements the Automatic Transaction Generator: a
// per-connector randomized workload driver that starts and stops
// transactions on a station the way a fleet of real EVs would, so the
// simulated station produces OCPP traffic without an operator driving it by
// hand.
package atg

import (
	"context"
	crand "crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/ruslanhut/ocpp-stationsim/internal/ocpp/v16"
	"github.com/ruslanhut/ocpp-stationsim/internal/ocppcore"
	"github.com/ruslanhut/ocpp-stationsim/internal/perf"
)

// initTime is how long a per-connector loop sleeps before retrying when the
// outbound adapter (C6) isn't wired up yet.
const initTime = 2 * time.Second

// waitTime is how long a per-connector loop sleeps after a rejected
// StartTransaction before it tries again.
const waitTime = 5 * time.Second

// ATG drives one station's connectors. One instance per station.
type ATG struct {
	station ocppcore.CapabilitySet
	logger  *slog.Logger
	sink    *perf.Sink
	rng     *rand.Rand

	timeToStop      bool
	startDate       time.Time
	stopDate        time.Time
	runningDuration time.Duration

	wg *conc.WaitGroup
}

// New builds an ATG over station, which must satisfy ocppcore.CapabilitySet
// rather than hold a concrete *ocppcore.Station — this is what breaks the
// station<->ATG cyclic reference (DESIGN.md).
func New(station ocppcore.CapabilitySet, sink *perf.Sink, logger *slog.Logger) *ATG {
	return &ATG{
		station:    station,
		logger:     logger,
		sink:       sink,
		rng:        newCryptoSeededRand(),
		timeToStop: true,
	}
}

// newCryptoSeededRand seeds a ChaCha8 PRNG from crypto/rand once, per
// DESIGN.md: no PRNG library exists anywhere in the examples corpus, and
// every example that needs randomness reaches for math/rand, so this draws
// from the same family seeded cryptographically instead of from a fixed or
// time-based seed.
func newCryptoSeededRand() *rand.Rand {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		panic(fmt.Sprintf("atg: failed to seed PRNG: %v", err))
	}
	return rand.New(rand.NewChaCha8(seed))
}

// Start spawns one independent driver per connector (id > 0), each
// supervised by a conc.WaitGroup so a panicking driver is recovered and
// logged instead of crashing the station.
func (a *ATG) Start() {
	params := a.station.StationDescriptor().ATG
	a.startDate = time.Now()
	a.stopDate = a.startDate.Add(time.Duration(params.StopAfterHours*float64(time.Hour)) - a.runningDuration)
	a.timeToStop = false

	a.wg = conc.NewWaitGroup()
	for _, id := range a.station.ConnectorIDs() {
		connectorID := id
		a.wg.Go(func() {
			defer func() {
				if r := recover(); r != nil {
					a.logger.Error("atg: connector driver panicked", "connector_id", connectorID, "recovered", r)
				}
			}()
			a.runConnectorLoop(connectorID)
		})
	}
}

// Stop requests cooperative shutdown — sending StopTransaction for every
// connector with a running transaction — then blocks until every connector
// driver goroutine has exited. Call this from outside the ATG's own driver
// goroutines (e.g. fleet.Runner.Stop()); a conc.WaitGroup can never return
// from Wait while one of its own tracked goroutines is still running it, so
// a driver loop that needs to halt itself calls requestStop instead (§4.5
// step 1/3).
func (a *ATG) Stop(reason v16.Reason) {
	a.requestStop(reason)
	if a.wg != nil {
		a.wg.Wait()
	}
}

// requestStop sends StopTransaction for every connector with a running
// transaction and marks the ATG for cooperative shutdown, without joining
// the driver goroutines. Safe to call from within a driver loop.
func (a *ATG) requestStop(reason v16.Reason) {
	for _, id := range a.station.ConnectorIDs() {
		c, ok := a.station.Connector(id)
		if !ok || !c.TransactionStarted {
			continue
		}
		a.stopTransaction(id, reason)
	}
	a.timeToStop = true
}

func (a *ATG) runConnectorLoop(connectorID int) {
	for !a.timeToStop {
		if time.Now().After(a.stopDate) {
			a.requestStop(v16.ReasonNone)
			return
		}

		if !a.station.IsRegistered() {
			a.logger.Error("atg: station not registered, halting connector driver", "connector_id", connectorID)
			return
		}

		if !a.station.IsAvailable() {
			a.requestStop(v16.ReasonNone)
			return
		}

		c, ok := a.station.Connector(connectorID)
		if !ok || !c.IsAvailable() {
			return
		}

		if a.station.Adapter() == nil {
			time.Sleep(initTime)
			continue
		}

		params := a.station.StationDescriptor().ATG
		a.sleepBetween(params.MinDelayBetweenTwoTransactions, params.MaxDelayBetweenTwoTransactions)

		if a.rng.Float64() >= params.ProbabilityOfStart {
			continue
		}

		start := time.Now()
		accepted := a.startTransaction(connectorID)
		a.sink.RecordStart(time.Since(start))
		if !accepted {
			time.Sleep(waitTime)
			continue
		}

		durationSeconds := params.MinDurationSeconds
		if params.MaxDurationSeconds > params.MinDurationSeconds {
			durationSeconds += a.rng.IntN(params.MaxDurationSeconds - params.MinDurationSeconds + 1)
		}
		time.Sleep(time.Duration(durationSeconds) * time.Second)

		if c, ok := a.station.Connector(connectorID); ok && c.TransactionStarted {
			stopStart := time.Now()
			a.stopTransaction(connectorID, v16.ReasonNone)
			a.sink.RecordStop(time.Since(stopStart))
		}

		a.runningDuration = time.Since(a.startDate)
	}
}

func (a *ATG) sleepBetween(minSeconds, maxSeconds int) {
	d := minSeconds
	if maxSeconds > minSeconds {
		d += a.rng.IntN(maxSeconds - minSeconds + 1)
	}
	time.Sleep(time.Duration(d) * time.Second)
}

// startTransaction picks an idTag (authorizing it first if the station
// requires it), then sends StartTransaction. Returns whether the
// transaction was accepted.
func (a *ATG) startTransaction(connectorID int) bool {
	descriptor := a.station.StationDescriptor()
	idTag := ""
	if len(descriptor.AuthorizedTags) > 0 {
		idTag = descriptor.AuthorizedTags[a.rng.IntN(len(descriptor.AuthorizedTags))]
		if descriptor.RequireAuthorize {
			if !a.authorize(idTag) {
				return false
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, ok := a.station.Connector(connectorID)
	if !ok {
		return false
	}
	req := v16.StartTransactionRequest{
		ConnectorId: connectorID,
		IdTag:       idTag,
		MeterStart:  c.EnergyRegister,
		Timestamp:   v16.DateTime{Time: time.Now()},
	}
	raw, err := a.station.Adapter().SendRequest(ctx, descriptor.ChargingStationID, string(v16.ActionStartTransaction), req, ocppcore.SendOptions{})
	if err != nil {
		a.logger.Warn("atg: StartTransaction failed", "connector_id", connectorID, "error", err)
		return false
	}
	var resp v16.StartTransactionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		a.logger.Warn("atg: StartTransaction response decode failed", "connector_id", connectorID, "error", err)
		return false
	}
	if resp.IdTagInfo.Status != v16.AuthorizationStatusAccepted {
		return false
	}

	accepted := false
	a.station.Execute(func() {
		c, ok := a.station.Connector(connectorID)
		if !ok || c.TransactionStarted {
			return
		}
		if err := c.StartTransaction(resp.TransactionId, idTag, c.EnergyRegister); err == nil {
			accepted = true
		}
	})
	return accepted
}

func (a *ATG) authorize(idTag string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	descriptor := a.station.StationDescriptor()
	raw, err := a.station.Adapter().SendRequest(ctx, descriptor.ChargingStationID, string(v16.ActionAuthorize), v16.AuthorizeRequest{IdTag: idTag}, ocppcore.SendOptions{})
	if err != nil {
		a.logger.Warn("atg: Authorize failed", "id_tag", idTag, "error", err)
		return false
	}
	var resp v16.AuthorizeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return false
	}
	return resp.IdTagInfo.Status == v16.AuthorizationStatusAccepted
}

func (a *ATG) stopTransaction(connectorID int, reason v16.Reason) {
	c, ok := a.station.Connector(connectorID)
	if !ok || !c.TransactionStarted {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	descriptor := a.station.StationDescriptor()
	req := v16.StopTransactionRequest{
		IdTag:         c.TransactionIDTag,
		MeterStop:     c.EnergyRegister,
		Timestamp:     v16.DateTime{Time: time.Now()},
		TransactionId: c.TransactionID,
		Reason:        reason,
	}
	_, err := a.station.Adapter().SendRequest(ctx, descriptor.ChargingStationID, string(v16.ActionStopTransaction), req, ocppcore.SendOptions{})
	if err != nil {
		a.logger.Warn("atg: StopTransaction failed", "connector_id", connectorID, "error", err)
		return
	}

	a.station.Execute(func() {
		if c, ok := a.station.Connector(connectorID); ok {
			c.EndTransaction()
		}
	})
}
