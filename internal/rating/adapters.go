package rating

import (
	"net/http"
	"strconv"
	"strings"

	"rateshop-backend/internal/carriers"
	"rateshop-backend/internal/shipping"
)

// requestInput is everything a builder needs for one rating request.
type requestInput struct {
	Shipment    shipping.ShipmentInput
	Account     carriers.Account
	ServiceCode string
	Weight      float64
}

// adapter describes how to talk to one carrier family.
type adapter struct {
	name          string
	liveEndpoint  string
	sandEndpoint  string
	liveTokenURL  string
	sandTokenURL  string
	requiresOAuth bool
	build         func(in requestInput) any
	headers       func(h http.Header, in requestInput)
	shapes        []responseShape
}

var adapters = map[string]adapter{
	carriers.CarrierUPS: {
		name:          carriers.CarrierUPS,
		liveEndpoint:  "https://onlinetools.ups.com/api/rating/v2409/Rate",
		sandEndpoint:  "https://wwwcie.ups.com/api/rating/v2409/Rate",
		liveTokenURL:  "https://onlinetools.ups.com/security/v1/oauth/token",
		sandTokenURL:  "https://wwwcie.ups.com/security/v1/oauth/token",
		requiresOAuth: true,
		build:         buildUPS,
		headers: func(h http.Header, in requestInput) {
			h.Set("transId", in.Shipment.ID)
			h.Set("transactionSrc", "rateshop")
		},
		shapes: upsShapes,
	},
	carriers.CarrierFedEx: {
		name:          carriers.CarrierFedEx,
		liveEndpoint:  "https://apis.fedex.com/rate/v1/rates/quotes",
		sandEndpoint:  "https://apis-sandbox.fedex.com/rate/v1/rates/quotes",
		liveTokenURL:  "https://apis.fedex.com/oauth/token",
		sandTokenURL:  "https://apis-sandbox.fedex.com/oauth/token",
		requiresOAuth: true,
		build:         buildFedEx,
		headers: func(h http.Header, in requestInput) {
			h.Set("X-locale", "en_US")
		},
		shapes: fedexShapes,
	},
	carriers.CarrierGeneric: {
		name:   carriers.CarrierGeneric,
		build:  buildGeneric,
		shapes: genericShapes,
	},
}

func adapterFor(carrier string) adapter {
	if a, ok := adapters[carrier]; ok {
		return a
	}
	return adapters[carriers.CarrierGeneric]
}

func (a adapter) endpoint(account carriers.Account) string {
	if account.Endpoint != "" {
		return account.Endpoint
	}
	if account.Sandbox {
		return a.sandEndpoint
	}
	return a.liveEndpoint
}

func (a adapter) tokenURL(account carriers.Account) string {
	if account.TokenURL != "" {
		return account.TokenURL
	}
	if account.Sandbox {
		return a.sandTokenURL
	}
	return a.liveTokenURL
}

func country(c string) string {
	if c == "" {
		return "US"
	}
	return strings.ToUpper(c)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func upsAddress(a shipping.Address) map[string]any {
	return map[string]any{
		"PostalCode":        a.PostalCode,
		"City":              a.City,
		"StateProvinceCode": a.State,
		"CountryCode":       country(a.Country),
	}
}

func buildUPS(in requestInput) any {
	option := "Rate"
	if in.ServiceCode == "" {
		option = "Shop"
	}
	pkg := map[string]any{
		"PackagingType": map[string]any{"Code": "02"},
		"PackageWeight": map[string]any{
			"UnitOfMeasurement": map[string]any{"Code": "LBS"},
			"Weight":            num(in.Weight),
		},
	}
	if d := in.Shipment.Dimensions; d.Length > 0 && d.Width > 0 && d.Height > 0 {
		pkg["Dimensions"] = map[string]any{
			"UnitOfMeasurement": map[string]any{"Code": "IN"},
			"Length":            num(d.Length),
			"Width":             num(d.Width),
			"Height":            num(d.Height),
		}
	}
	shipment := map[string]any{
		"Shipper": map[string]any{
			"ShipperNumber": in.Account.AccountNumber,
			"Address":       upsAddress(in.Shipment.Origin),
		},
		"ShipFrom":              map[string]any{"Address": upsAddress(in.Shipment.Origin)},
		"ShipTo":                map[string]any{"Address": upsAddress(in.Shipment.Destination)},
		"ShipmentRatingOptions": map[string]any{"NegotiatedRatesIndicator": ""},
		"Package":               pkg,
	}
	if in.ServiceCode != "" {
		shipment["Service"] = map[string]any{"Code": in.ServiceCode}
	}
	return map[string]any{
		"RateRequest": map[string]any{
			"Request":  map[string]any{"RequestOption": option},
			"Shipment": shipment,
		},
	}
}

func fedexAddress(a shipping.Address) map[string]any {
	return map[string]any{
		"address": map[string]any{
			"postalCode":          a.PostalCode,
			"city":                a.City,
			"stateOrProvinceCode": a.State,
			"countryCode":         country(a.Country),
		},
	}
}

func buildFedEx(in requestInput) any {
	item := map[string]any{
		"weight": map[string]any{"units": "LB", "value": in.Weight},
	}
	if d := in.Shipment.Dimensions; d.Length > 0 && d.Width > 0 && d.Height > 0 {
		item["dimensions"] = map[string]any{
			"length": d.Length, "width": d.Width, "height": d.Height, "units": "IN",
		}
	}
	requested := map[string]any{
		"shipper":                   fedexAddress(in.Shipment.Origin),
		"recipient":                 fedexAddress(in.Shipment.Destination),
		"pickupType":                "DROPOFF_AT_FEDEX_LOCATION",
		"rateRequestType":           []string{"ACCOUNT", "LIST"},
		"requestedPackageLineItems": []any{item},
	}
	if in.ServiceCode != "" {
		requested["serviceType"] = in.ServiceCode
	}
	return map[string]any{
		"accountNumber":                map[string]any{"value": in.Account.AccountNumber},
		"rateRequestControlParameters": map[string]any{"returnTransitTimes": true},
		"requestedShipment":            requested,
	}
}

func buildGeneric(in requestInput) any {
	var codes []string
	if in.ServiceCode != "" {
		codes = []string{in.ServiceCode}
	}
	return map[string]any{
		"accountNumber": in.Account.AccountNumber,
		"shipper":       in.Shipment.Origin,
		"recipient":     in.Shipment.Destination,
		"zone":          in.Shipment.Zone,
		"package": map[string]any{
			"weight":     in.Weight,
			"dimensions": in.Shipment.Dimensions,
		},
		"serviceCodes": codes,
	}
}
