package ratetable

import (
	"rateshop-backend/internal/carriers"
	"rateshop-backend/internal/shipping"
)

// Resolver prices shipments against a Store.
type Resolver struct {
	Store *Store
}

// Resolve returns at most one candidate per service code of a rate-card
// account. Accounts that list no service codes are matched against every
// service in their table.
func (r Resolver) Resolve(shipment shipping.ShipmentInput, account carriers.Account) []shipping.RateCandidate {
	if r.Store == nil || !account.UsesRateCard() {
		return nil
	}
	services := account.ServiceCodes
	if len(services) == 0 {
		services = r.Store.Services(account.ID)
	}
	weight := shipment.BillableWeight(account.DimDivisor)

	var out []shipping.RateCandidate
	for _, code := range services {
		entry, ok := r.Store.Lookup(account.ID, code, shipment.Zone, weight)
		if !ok {
			continue
		}
		out = append(out, shipping.RateCandidate{
			CarrierAccountID: account.ID,
			Carrier:          account.Carrier,
			ServiceCode:      entry.ServiceCode,
			ServiceName:      entry.ServiceName,
			Amount:           entry.Amount,
			Currency:         entry.Currency,
			Source:           shipping.SourceRateCard,
			Negotiated:       true,
		})
	}
	return out
}
