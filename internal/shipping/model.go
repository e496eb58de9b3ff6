package shipping

import (
	"math"
	"strings"
	"time"
)

const (
	SourceRateCard   = "rate_card"
	SourceCarrierAPI = "carrier_api"
)

// Address holds the address fragments carriers need for rating.
type Address struct {
	PostalCode string `json:"postalCode"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Dimensions are package dimensions in inches.
type Dimensions struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ShipmentInput is one unit of work submitted by the caller.
type ShipmentInput struct {
	ID             string         `json:"id"`
	Origin         Address        `json:"origin"`
	Destination    Address        `json:"destination"`
	Zone           string         `json:"zone"`
	WeightLbs      float64        `json:"weight"`
	Dimensions     Dimensions     `json:"dimensions"`
	Service        string         `json:"service,omitempty"`
	CurrentRate    float64        `json:"currentRate"`
	Currency       string         `json:"currency,omitempty"`
	CurrentCarrier string         `json:"currentCarrier,omitempty"`
	Passthrough    map[string]any `json:"passthrough,omitempty"`
}

// BillableWeight returns the greater of actual and dimensional weight.
// A divisor of zero disables dimensional weight.
func (s ShipmentInput) BillableWeight(divisor float64) float64 {
	if divisor <= 0 {
		return s.WeightLbs
	}
	d := s.Dimensions
	if d.Length <= 0 || d.Width <= 0 || d.Height <= 0 {
		return s.WeightLbs
	}
	dim := d.Length * d.Width * d.Height / divisor
	// carriers bill dimensional weight in whole pounds
	dim = math.Ceil(dim)
	if dim > s.WeightLbs {
		return dim
	}
	return s.WeightLbs
}

// Valid reports whether the shipment carries enough data to be rated.
// The returned reason is empty when the shipment is valid.
func (s ShipmentInput) Valid() (bool, string) {
	if math.IsNaN(s.WeightLbs) || s.WeightLbs <= 0 {
		return false, "weight must be greater than zero"
	}
	if math.IsNaN(s.CurrentRate) || math.IsInf(s.CurrentRate, 0) {
		return false, "current rate is not a number"
	}
	if strings.TrimSpace(s.Zone) == "" && strings.TrimSpace(s.Destination.PostalCode) == "" {
		return false, "zone or destination postal code is required"
	}
	return true, ""
}

// RateCandidate is one priced option for a shipment.
type RateCandidate struct {
	CarrierAccountID string  `json:"carrierAccountId"`
	Carrier          string  `json:"carrier"`
	ServiceCode      string  `json:"serviceCode"`
	ServiceName      string  `json:"serviceName,omitempty"`
	Amount           float64 `json:"amount"`
	Currency         string  `json:"currency"`
	Source           string  `json:"source"`
	Negotiated       bool    `json:"negotiated"`
	PublishedAmount  float64 `json:"publishedAmount,omitempty"`
	TransitDays      int     `json:"transitDays,omitempty"`
}

// ShipmentResult is the outcome recorded for one shipment.
type ShipmentResult struct {
	ShipmentID           string         `json:"shipmentId"`
	Index                int            `json:"index"`
	Best                 *RateCandidate `json:"best,omitempty"`
	CurrentRate          float64        `json:"currentRate"`
	Savings              *float64       `json:"savings,omitempty"`
	CandidatesConsidered int            `json:"candidatesConsidered"`
	Orphaned             bool           `json:"orphaned"`
	OrphanReason         string         `json:"orphanReason,omitempty"`
	Passthrough          map[string]any `json:"passthrough,omitempty"`
	ProcessedAt          time.Time      `json:"processedAt"`
}
