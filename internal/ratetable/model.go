package ratetable

import (
	"strings"
)

// Entry is one row of a carrier account's rate table.
type Entry struct {
	CarrierAccountID string  `json:"carrierAccountId" yaml:"carrierAccountId"`
	ServiceCode      string  `json:"serviceCode" yaml:"serviceCode"`
	ServiceName      string  `json:"serviceName,omitempty" yaml:"serviceName"`
	Zone             string  `json:"zone" yaml:"zone"`
	WeightBreak      float64 `json:"weightBreak" yaml:"weightBreak"`
	Amount           float64 `json:"amount" yaml:"amount"`
	Currency         string  `json:"currency" yaml:"currency"`
}

// NormalizeService upper-cases and trims a service code.
func NormalizeService(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NormalizeZone trims a zone and strips leading zeros so "02" and "2" match.
func NormalizeZone(zone string) string {
	z := strings.TrimSpace(zone)
	trimmed := strings.TrimLeft(z, "0")
	if trimmed == "" && z != "" {
		return "0"
	}
	return strings.ToUpper(trimmed)
}
