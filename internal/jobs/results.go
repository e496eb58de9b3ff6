package jobs

import (
	"context"

	"rateshop-backend/internal/shipping"
)

// ResultStore is the durable record of per-shipment results. Append must be
// idempotent per (job id, shipment id): a later write for the same shipment
// replaces the earlier one.
type ResultStore interface {
	Append(ctx context.Context, jobID string, batch []shipping.ShipmentResult) error
	List(ctx context.Context, jobID string) ([]shipping.ShipmentResult, error)
	// ProcessedIDs returns the shipment ids that already have a result.
	ProcessedIDs(ctx context.Context, jobID string) (map[string]struct{}, error)
}

// mergeResults appends batch to existing, replacing entries that share a
// shipment id. The first-seen position of each shipment is kept.
func mergeResults(existing, batch []shipping.ShipmentResult) []shipping.ShipmentResult {
	pos := make(map[string]int, len(existing)+len(batch))
	out := make([]shipping.ShipmentResult, 0, len(existing)+len(batch))
	for _, r := range existing {
		if i, ok := pos[r.ShipmentID]; ok {
			out[i] = r
			continue
		}
		pos[r.ShipmentID] = len(out)
		out = append(out, r)
	}
	for _, r := range batch {
		if i, ok := pos[r.ShipmentID]; ok {
			out[i] = r
			continue
		}
		pos[r.ShipmentID] = len(out)
		out = append(out, r)
	}
	return out
}

func idSet(results []shipping.ShipmentResult) map[string]struct{} {
	ids := make(map[string]struct{}, len(results))
	for _, r := range results {
		ids[r.ShipmentID] = struct{}{}
	}
	return ids
}
