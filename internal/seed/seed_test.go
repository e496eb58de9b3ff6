package seed

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rateshop-backend/internal/carriers"
	"rateshop-backend/internal/ratetable"
)

const sample = `
accounts:
  - id: acct-card
    carrier: UPS
    name: Negotiated UPS
    rateSource: rate_card
  - id: acct-api
    carrier: fedex
    name: FedEx API
    rateSource: api
rateTables:
  - account: acct-card
    service: gnd
    serviceName: Ground
    currency: USD
    zones:
      "5": [{weight: 1, amount: 6}, {weight: 5, amount: 8}]
      "2": [{weight: 5, amount: 7}]
`

func TestParseAndApply(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, f.Accounts, 2)

	accounts := carriers.NewMemoryRepo()
	tables := ratetable.NewMemorySource()
	require.NoError(t, Apply(context.Background(), f, accounts, tables))

	card, err := accounts.Get(context.Background(), "acct-card")
	require.NoError(t, err)
	assert.Equal(t, carriers.CarrierUPS, card.Carrier)
	assert.True(t, card.UsesRateCard())

	entries, err := tables.ListEntries(context.Background(), []string{"acct-card", "acct-api"})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	// zones are flattened in sorted order
	assert.Equal(t, "2", entries[0].Zone)
	assert.Equal(t, "GND", entries[0].ServiceCode)
	assert.Equal(t, 8.0, entries[2].Amount)

	store, err := ratetable.Load(context.Background(), tables, []string{"acct-card"})
	require.NoError(t, err)
	hit, ok := store.Lookup("acct-card", "GND", "05", 3)
	require.True(t, ok)
	assert.Equal(t, 8.0, hit.Amount)
}

func TestParseRejectsBadDocuments(t *testing.T) {
	cases := map[string]string{
		"unknown field":   "accounts:\n  - id: a\n    colour: red\n",
		"missing id":      "accounts:\n  - name: nameless\n",
		"duplicate id":    "accounts:\n  - id: a\n  - id: a\n",
		"unknown account": "accounts:\n  - id: a\nrateTables:\n  - account: b\n    service: GND\n",
		"missing service": "accounts:\n  - id: a\nrateTables:\n  - account: a\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestParseEmptyDocument(t *testing.T) {
	f, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, f.Accounts)
}
