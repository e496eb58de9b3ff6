package carriers

import (
	"errors"
	"strings"
)

const (
	CarrierUPS     = "ups"
	CarrierFedEx   = "fedex"
	CarrierGeneric = "generic"

	RateSourceCard = "rate_card"
	RateSourceAPI  = "api"
)

// ErrNotFound is returned when a carrier account does not exist.
var ErrNotFound = errors.New("carrier account not found")

// Account is a configured carrier identity. It is read-only while a job runs.
type Account struct {
	ID             string   `json:"id" yaml:"id"`
	OwnerID        string   `json:"ownerId,omitempty" yaml:"ownerId"`
	Carrier        string   `json:"carrier" yaml:"carrier"`
	Name           string   `json:"name" yaml:"name"`
	RateSource     string   `json:"rateSource" yaml:"rateSource"`
	FallbackToAPI  bool     `json:"fallbackToApi" yaml:"fallbackToApi"`
	Sandbox        bool     `json:"sandbox" yaml:"sandbox"`
	CredentialsRef string   `json:"credentialsRef,omitempty" yaml:"credentialsRef"`
	AccountNumber  string   `json:"accountNumber,omitempty" yaml:"accountNumber"`
	ServiceCodes   []string `json:"serviceCodes,omitempty" yaml:"serviceCodes"`
	// DimDivisor enables dimensional weight when greater than zero (e.g. 139).
	DimDivisor float64 `json:"dimDivisor,omitempty" yaml:"dimDivisor"`
	Endpoint   string  `json:"endpoint,omitempty" yaml:"endpoint"`
	TokenURL   string  `json:"tokenUrl,omitempty" yaml:"tokenUrl"`

	RequestsPerSecond float64 `json:"requestsPerSecond,omitempty" yaml:"requestsPerSecond"`
	Burst             int     `json:"burst,omitempty" yaml:"burst"`
}

// UsesRateCard reports whether the account prices from a local rate table.
func (a Account) UsesRateCard() bool {
	return a.RateSource == RateSourceCard
}

// UsesAPI reports whether the account may call the carrier rating API.
func (a Account) UsesAPI() bool {
	return a.RateSource == RateSourceAPI || (a.UsesRateCard() && a.FallbackToAPI)
}

// VisibleTo reports whether the user may use this account. Accounts without an
// owner are shared.
func (a Account) VisibleTo(userID string) bool {
	return a.OwnerID == "" || a.OwnerID == userID
}

// Normalize lower-cases enumerations and upper-cases service codes.
func (a Account) Normalize() Account {
	a.Carrier = strings.ToLower(strings.TrimSpace(a.Carrier))
	if a.Carrier == "" {
		a.Carrier = CarrierGeneric
	}
	a.RateSource = strings.ToLower(strings.TrimSpace(a.RateSource))
	if a.RateSource != RateSourceCard {
		a.RateSource = RateSourceAPI
	}
	codes := make([]string, 0, len(a.ServiceCodes))
	for _, c := range a.ServiceCodes {
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
			codes = append(codes, c)
		}
	}
	a.ServiceCodes = codes
	return a
}
