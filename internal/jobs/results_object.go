package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"rateshop-backend/internal/shared/storage/object"
	"rateshop-backend/internal/shipping"
)

// ObjectResultStore keeps one JSON document per job in an object store and
// appends by read-merge-write. It relies on a single writer per job, which
// the persister and the job lease provide.
type ObjectResultStore struct {
	Store object.ObjectStore
}

type resultDocument struct {
	JobID     string                    `json:"jobId"`
	UpdatedAt time.Time                 `json:"updatedAt"`
	Results   []shipping.ShipmentResult `json:"results"`
}

// ResultsKey is the object key of a job's result document.
func ResultsKey(jobID string) string {
	return "jobs/" + jobID + "/results.json"
}

// Append merges the batch into the stored document and writes it back.
func (s *ObjectResultStore) Append(ctx context.Context, jobID string, batch []shipping.ShipmentResult) error {
	if len(batch) == 0 {
		return nil
	}
	doc, err := s.load(ctx, jobID)
	if err != nil {
		return err
	}
	doc.Results = mergeResults(doc.Results, batch)
	doc.UpdatedAt = time.Now().UTC()

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode results document: %w", err)
	}
	if _, err := s.Store.Put(ctx, ResultsKey(jobID), "application/json", bytes.NewReader(payload)); err != nil {
		return fmt.Errorf("write results document: %w", err)
	}
	return nil
}

// List returns the stored results in write order.
func (s *ObjectResultStore) List(ctx context.Context, jobID string) ([]shipping.ShipmentResult, error) {
	doc, err := s.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return doc.Results, nil
}

// ProcessedIDs returns the shipment ids in the stored document.
func (s *ObjectResultStore) ProcessedIDs(ctx context.Context, jobID string) (map[string]struct{}, error) {
	doc, err := s.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return idSet(doc.Results), nil
}

func (s *ObjectResultStore) load(ctx context.Context, jobID string) (resultDocument, error) {
	doc := resultDocument{JobID: jobID, Results: []shipping.ShipmentResult{}}
	body, err := s.Store.Open(ctx, ResultsKey(jobID))
	if err != nil {
		if errors.Is(err, object.ErrNotExist) {
			return doc, nil
		}
		return doc, fmt.Errorf("open results document: %w", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return doc, fmt.Errorf("read results document: %w", err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("decode results document: %w", err)
	}
	if doc.Results == nil {
		doc.Results = []shipping.ShipmentResult{}
	}
	return doc, nil
}
