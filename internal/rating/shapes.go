package rating

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jmespath-community/go-jmespath"
)

// responseShape is one known response layout of a carrier integration. Each
// field is a JMESPath expression evaluated against one quote item.
type responseShape struct {
	name        string
	items       string
	service     string
	serviceName string
	account     string
	list        string
	currency    string
	transit     string
}

var upsShapes = []responseShape{
	{
		name:        "ups.rating.v2",
		items:       "RateResponse.RatedShipment",
		service:     "Service.Code",
		serviceName: "Service.Description",
		account:     "NegotiatedRateCharges.TotalCharge.MonetaryValue",
		list:        "TotalCharges.MonetaryValue",
		currency:    "NegotiatedRateCharges.TotalCharge.CurrencyCode || TotalCharges.CurrencyCode",
		transit:     "GuaranteedDelivery.BusinessDaysInTransit",
	},
	{
		name:     "ups.rating.legacy",
		items:    "RatingServiceSelectionResponse.RatedShipment",
		service:  "Service.Code",
		account:  "NegotiatedRates.NetSummaryCharges.GrandTotal.MonetaryValue",
		list:     "TotalCharges.MonetaryValue",
		currency: "TotalCharges.CurrencyCode",
		transit:  "GuaranteedDaysToDelivery",
	},
}

var fedexShapes = []responseShape{
	{
		name:        "fedex.rate.v1",
		items:       "output.rateReplyDetails",
		service:     "serviceType",
		serviceName: "serviceName",
		account:     "ratedShipmentDetails[?rateType=='ACCOUNT'] | [0].totalNetCharge",
		list:        "ratedShipmentDetails[?rateType=='LIST'] | [0].totalNetCharge",
		currency:    "ratedShipmentDetails[0].currency",
		transit:     "operationalDetail.transitTime || commit.transitDays.minimumTransitTime",
	},
	{
		name:     "fedex.rate.legacy",
		items:    "RateReplyDetails",
		service:  "ServiceType",
		account:  "RatedShipmentDetails[?ShipmentRateDetail.RateType=='PAYOR_ACCOUNT_PACKAGE'] | [0].ShipmentRateDetail.TotalNetCharge.Amount",
		list:     "RatedShipmentDetails[?ShipmentRateDetail.RateType=='PAYOR_LIST_PACKAGE'] | [0].ShipmentRateDetail.TotalNetCharge.Amount",
		currency: "RatedShipmentDetails[0].ShipmentRateDetail.TotalNetCharge.Currency",
		transit:  "TransitTime",
	},
}

var genericShapes = []responseShape{
	{
		name:        "generic.v2",
		items:       "rates",
		service:     "serviceCode",
		serviceName: "serviceName",
		account:     "accountAmount",
		list:        "listAmount",
		currency:    "currency",
		transit:     "transitDays",
	},
	{
		name:     "generic.v1",
		items:    "quotes",
		service:  "service",
		account:  "negotiatedTotal",
		list:     "total",
		currency: "currency",
		transit:  "days",
	},
}

func init() {
	for _, group := range [][]responseShape{upsShapes, fedexShapes, genericShapes} {
		for _, s := range group {
			for _, expr := range []string{s.items, s.service, s.serviceName, s.account, s.list, s.currency, s.transit} {
				if expr == "" {
					continue
				}
				if _, err := jmespath.Compile(expr); err != nil {
					panic(fmt.Sprintf("rating: shape %s: invalid expression %q: %v", s.name, expr, err))
				}
			}
		}
	}
}

// rawQuote is one quote item after shape extraction.
type rawQuote struct {
	Shape       string
	Service     string
	ServiceName string
	Account     *float64
	List        *float64
	Currency    string
	TransitDays int
}

// matchShape returns the quotes of the first shape whose items expression
// resolves in doc.
func matchShape(shapes []responseShape, doc any) ([]rawQuote, error) {
	for _, s := range shapes {
		quotes, ok, err := s.extract(doc)
		if err != nil {
			return nil, err
		}
		if ok {
			return quotes, nil
		}
	}
	return nil, fmt.Errorf("no known response shape")
}

func (s responseShape) extract(doc any) ([]rawQuote, bool, error) {
	items, err := jmespath.Search(s.items, doc)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", s.name, err)
	}
	var list []any
	switch v := items.(type) {
	case nil:
		return nil, false, nil
	case []any:
		list = v
	case map[string]any:
		// single-item responses are not wrapped in an array
		list = []any{v}
	default:
		return nil, true, fmt.Errorf("%s: unexpected quote container %T", s.name, items)
	}

	quotes := make([]rawQuote, 0, len(list))
	for _, item := range list {
		quotes = append(quotes, rawQuote{
			Shape:       s.name,
			Service:     asString(search(s.service, item)),
			ServiceName: asString(search(s.serviceName, item)),
			Account:     asAmount(search(s.account, item)),
			List:        asAmount(search(s.list, item)),
			Currency:    asString(search(s.currency, item)),
			TransitDays: asTransitDays(search(s.transit, item)),
		})
	}
	return quotes, true, nil
}

func search(expr string, data any) any {
	if expr == "" {
		return nil
	}
	v, err := jmespath.Search(expr, data)
	if err != nil {
		return nil
	}
	return v
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func asAmount(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return nil
	}
	return &f
}

var transitWords = map[string]int{
	"ONE": 1, "TWO": 2, "THREE": 3, "FOUR": 4, "FIVE": 5,
	"SIX": 6, "SEVEN": 7, "EIGHT": 8, "NINE": 9, "TEN": 10,
}

func asTransitDays(v any) int {
	switch t := v.(type) {
	case float64:
		if t > 0 {
			return int(math.Ceil(t))
		}
	case string:
		s := strings.ToUpper(strings.TrimSpace(t))
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
		// FedEx enums such as TWO_DAYS
		word, _, _ := strings.Cut(s, "_")
		return transitWords[word]
	}
	return 0
}
