package ratetable

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// Source loads rate table entries for a set of carrier accounts.
type Source interface {
	ListEntries(ctx context.Context, accountIDs []string) ([]Entry, error)
}

// Store is an in-memory rate index for one job. It is read-only after Load and
// safe for concurrent lookups.
type Store struct {
	// account -> service -> zone -> tiers sorted by weight break
	index map[string]map[string]map[string][]Entry
}

// Load builds a fresh Store from the entries of the given accounts.
func Load(ctx context.Context, src Source, accountIDs []string) (*Store, error) {
	entries, err := src.ListEntries(ctx, accountIDs)
	if err != nil {
		return nil, fmt.Errorf("load rate tables: %w", err)
	}
	return NewStore(entries), nil
}

// NewStore indexes entries. Rows with a non-positive weight break or an invalid
// amount are ignored.
func NewStore(entries []Entry) *Store {
	s := &Store{index: make(map[string]map[string]map[string][]Entry)}
	for _, e := range entries {
		if e.WeightBreak <= 0 || e.Amount < 0 || math.IsNaN(e.Amount) {
			continue
		}
		e.ServiceCode = NormalizeService(e.ServiceCode)
		e.Zone = NormalizeZone(e.Zone)
		if e.Currency == "" {
			e.Currency = "USD"
		}
		byService, ok := s.index[e.CarrierAccountID]
		if !ok {
			byService = make(map[string]map[string][]Entry)
			s.index[e.CarrierAccountID] = byService
		}
		byZone, ok := byService[e.ServiceCode]
		if !ok {
			byZone = make(map[string][]Entry)
			byService[e.ServiceCode] = byZone
		}
		byZone[e.Zone] = append(byZone[e.Zone], e)
	}
	for _, byService := range s.index {
		for _, byZone := range byService {
			for zone, tiers := range byZone {
				sort.SliceStable(tiers, func(i, j int) bool {
					if tiers[i].WeightBreak != tiers[j].WeightBreak {
						return tiers[i].WeightBreak < tiers[j].WeightBreak
					}
					return tiers[i].Amount < tiers[j].Amount
				})
				byZone[zone] = tiers
			}
		}
	}
	return s
}

// Lookup returns the entry with the smallest weight break that still covers
// weight. The second result is false when no tier covers the shipment.
func (s *Store) Lookup(accountID, serviceCode, zone string, weight float64) (Entry, bool) {
	if s == nil || weight <= 0 || math.IsNaN(weight) {
		return Entry{}, false
	}
	tiers := s.index[accountID][NormalizeService(serviceCode)][NormalizeZone(zone)]
	i := sort.Search(len(tiers), func(i int) bool {
		return tiers[i].WeightBreak >= weight
	})
	if i == len(tiers) {
		return Entry{}, false
	}
	return tiers[i], true
}

// Services returns the service codes known for an account, sorted.
func (s *Store) Services(accountID string) []string {
	if s == nil {
		return nil
	}
	byService := s.index[accountID]
	out := make([]string, 0, len(byService))
	for code := range byService {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of indexed entries.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, byService := range s.index {
		for _, byZone := range byService {
			for _, tiers := range byZone {
				n += len(tiers)
			}
		}
	}
	return n
}
