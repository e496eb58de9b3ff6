package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"rateshop-backend/internal/shipping"
)

// PGResultStore stores one row per shipment result in job_results.
type PGResultStore struct {
	DB *sql.DB
}

// Append upserts the batch in one transaction.
func (s *PGResultStore) Append(ctx context.Context, jobID string, batch []shipping.ShipmentResult) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const query = `
INSERT INTO job_results (job_id, shipment_id, shipment_index, orphaned, payload)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (job_id, shipment_id) DO UPDATE SET
	shipment_index = EXCLUDED.shipment_index,
	orphaned = EXCLUDED.orphaned,
	payload = EXCLUDED.payload`
	for _, r := range batch {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode result %s: %w", r.ShipmentID, err)
		}
		if _, err := tx.ExecContext(ctx, query, jobID, r.ShipmentID, r.Index, r.Orphaned, string(payload)); err != nil {
			return fmt.Errorf("upsert result %s: %w", r.ShipmentID, err)
		}
	}
	return tx.Commit()
}

// List returns the job's results ordered by input position.
func (s *PGResultStore) List(ctx context.Context, jobID string) ([]shipping.ShipmentResult, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT payload FROM job_results WHERE job_id = $1 ORDER BY shipment_index ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []shipping.ShipmentResult{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var r shipping.ShipmentResult
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ProcessedIDs returns the shipment ids stored for the job.
func (s *PGResultStore) ProcessedIDs(ctx context.Context, jobID string) (map[string]struct{}, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT shipment_id FROM job_results WHERE job_id = $1`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}
