// Package bestrate picks the cheapest candidate for a shipment and records
// the resulting ShipmentResult.
package bestrate

import (
	"math"
	"strings"
	"time"

	"rateshop-backend/internal/shipping"
)

// Select returns the candidate with the minimum amount. Ties prefer rate-card
// candidates, then negotiated ones, then the earlier position. Candidates with
// a negative or non-finite amount are ignored.
func Select(candidates []shipping.RateCandidate) (shipping.RateCandidate, bool) {
	best := -1
	for i, c := range candidates {
		if !usable(c) {
			continue
		}
		if best < 0 || better(c, candidates[best]) {
			best = i
		}
	}
	if best < 0 {
		return shipping.RateCandidate{}, false
	}
	return candidates[best], true
}

func usable(c shipping.RateCandidate) bool {
	return !math.IsNaN(c.Amount) && !math.IsInf(c.Amount, 0) && c.Amount >= 0
}

// better reports whether a strictly beats b.
func better(a, b shipping.RateCandidate) bool {
	if a.Amount != b.Amount {
		return a.Amount < b.Amount
	}
	aCard := a.Source == shipping.SourceRateCard
	bCard := b.Source == shipping.SourceRateCard
	if aCard != bCard {
		return aCard
	}
	if a.Negotiated != b.Negotiated {
		return a.Negotiated
	}
	return false
}

// Savings is currently paid minus the selected amount. Negative values mean
// the new rate costs more and are kept as is.
func Savings(currentlyPaid float64, selected shipping.RateCandidate) float64 {
	return currentlyPaid - selected.Amount
}

// BuildResult collapses the candidates of one shipment into its result. When
// nothing is usable the result is orphaned with reasons joined for display.
func BuildResult(index int, shipment shipping.ShipmentInput, candidates []shipping.RateCandidate, reasons []string) shipping.ShipmentResult {
	result := shipping.ShipmentResult{
		ShipmentID:           shipment.ID,
		Index:                index,
		CurrentRate:          shipment.CurrentRate,
		CandidatesConsidered: len(candidates),
		Passthrough:          shipment.Passthrough,
		ProcessedAt:          time.Now().UTC(),
	}
	best, ok := Select(candidates)
	if !ok {
		result.Orphaned = true
		result.OrphanReason = orphanReason(reasons)
		return result
	}
	savings := Savings(shipment.CurrentRate, best)
	result.Best = &best
	result.Savings = &savings
	return result
}

// Orphan builds an orphaned result with a single reason.
func Orphan(index int, shipment shipping.ShipmentInput, reason string) shipping.ShipmentResult {
	return BuildResult(index, shipment, nil, []string{reason})
}

func orphanReason(reasons []string) string {
	seen := make(map[string]struct{}, len(reasons))
	var parts []string
	for _, r := range reasons {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		parts = append(parts, r)
	}
	if len(parts) == 0 {
		return "no rate available"
	}
	return strings.Join(parts, "; ")
}
