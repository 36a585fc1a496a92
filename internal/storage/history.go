package storage

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// TransactionRecord is the operator-facing projection of a Transaction,
// grounded on Transaction (models.go) but trimmed to what the operator UI's
// getTransactionHistory command needs.
type TransactionRecord struct {
	TransactionID  int    `json:"transactionId"`
	ConnectorID    int    `json:"connectorId"`
	IDTag          string `json:"idTag"`
	StartTimestamp string `json:"startTimestamp"`
	StopTimestamp  string `json:"stopTimestamp,omitempty"`
	EnergyConsumed int    `json:"energyConsumedWh"`
	Status         string `json:"status"`
	Reason         string `json:"reason,omitempty"`
}

// FleetStats is a fleet-wide summary across every station's transactions,
// grounded on TransactionRepository.GetStats' per-station aggregation but
// run without a station_id filter.
type FleetStats struct {
	TotalTransactions     int64   `json:"totalTransactions"`
	ActiveTransactions    int64   `json:"activeTransactions"`
	CompletedTransactions int64   `json:"completedTransactions"`
	FailedTransactions    int64   `json:"failedTransactions"`
	TotalEnergyConsumedWh float64 `json:"totalEnergyConsumedWh"`
}

// ListTransactions returns the most recent limit transactions for
// stationID, newest first, as the operator-facing projection.
func (r *TransactionRepository) ListTransactions(ctx context.Context, stationID string, limit int) ([]TransactionRecord, error) {
	txs, err := r.GetByStation(ctx, stationID, limit, 0)
	if err != nil {
		return nil, fmt.Errorf("listing transactions for %s: %w", stationID, err)
	}

	records := make([]TransactionRecord, 0, len(txs))
	for _, tx := range txs {
		rec := TransactionRecord{
			TransactionID:  tx.TransactionID,
			ConnectorID:    tx.ConnectorID,
			IDTag:          tx.IDTag,
			StartTimestamp: tx.StartTimestamp.Format("2006-01-02T15:04:05Z07:00"),
			EnergyConsumed: tx.EnergyConsumed,
			Status:         tx.Status,
			Reason:         tx.Reason,
		}
		if !tx.StopTimestamp.IsZero() {
			rec.StopTimestamp = tx.StopTimestamp.Format("2006-01-02T15:04:05Z07:00")
		}
		records = append(records, rec)
	}
	return records, nil
}

// Stats aggregates transaction counts and energy across the whole fleet,
// the no-station_id-filter counterpart of GetStats.
func (r *TransactionRepository) Stats(ctx context.Context) (FleetStats, error) {
	var stats FleetStats

	total, err := r.Count(ctx, bson.M{})
	if err != nil {
		return stats, fmt.Errorf("counting transactions: %w", err)
	}
	stats.TotalTransactions = total

	active, err := r.Count(ctx, bson.M{"status": "active"})
	if err != nil {
		return stats, fmt.Errorf("counting active transactions: %w", err)
	}
	stats.ActiveTransactions = active

	completed, err := r.Count(ctx, bson.M{"status": "completed"})
	if err != nil {
		return stats, fmt.Errorf("counting completed transactions: %w", err)
	}
	stats.CompletedTransactions = completed

	failed, err := r.Count(ctx, bson.M{"status": "failed"})
	if err != nil {
		return stats, fmt.Errorf("counting failed transactions: %w", err)
	}
	stats.FailedTransactions = failed

	pipeline := []bson.M{
		{"$match": bson.M{"status": "completed"}},
		{"$group": bson.M{"_id": nil, "total_energy": bson.M{"$sum": "$energy_consumed"}}},
	}
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return stats, fmt.Errorf("aggregating fleet energy: %w", err)
	}
	defer cursor.Close(ctx)

	if cursor.Next(ctx) {
		var result bson.M
		if err := cursor.Decode(&result); err != nil {
			return stats, fmt.Errorf("decoding fleet energy aggregation: %w", err)
		}
		if energy, ok := result["total_energy"].(int32); ok {
			stats.TotalEnergyConsumedWh = float64(energy)
		} else if energy, ok := result["total_energy"].(int64); ok {
			stats.TotalEnergyConsumedWh = float64(energy)
		} else if energy, ok := result["total_energy"].(float64); ok {
			stats.TotalEnergyConsumedWh = energy
		}
	}

	return stats, nil
}
