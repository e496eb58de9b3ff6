package jobs

import (
	"context"
	"testing"
	"time"

	"rateshop-backend/internal/carriers"
	"rateshop-backend/internal/queue"
	"rateshop-backend/internal/ratetable"
	"rateshop-backend/internal/rating"
	"rateshop-backend/internal/shipping"
)

const testUser = "user-1"

type testEnv struct {
	svc      *Service
	repo     *MemoryRepo
	store    *MemoryResultStore
	accounts *carriers.MemoryRepo
	queue    *queue.MemoryClient
}

// newTestEnv builds a Service over memory stores. Submit only enqueues, so
// tests drive Process themselves.
func newTestEnv(t *testing.T, quoter rating.Quoter, accounts ...carriers.Account) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:     NewMemoryRepo(),
		store:    NewMemoryResultStore(),
		accounts: carriers.NewMemoryRepo(accounts...),
		queue:    &queue.MemoryClient{},
	}
	env.svc = &Service{
		Repo:     env.repo,
		Store:    env.store,
		Accounts: env.accounts,
		Rates: ratetable.NewMemorySource(ratetable.Entry{
			CarrierAccountID: "acct-card",
			ServiceCode:      "GND",
			ServiceName:      "Ground",
			Zone:             "2",
			WeightBreak:      5,
			Amount:           8,
			Currency:         "USD",
		}),
		Quoter:     quoter,
		Dispatcher: QueueDispatcher{Client: env.queue},
		Options: Options{
			Concurrency:  2,
			BatchSize:    2,
			BatchTimeout: time.Minute,
		},
	}
	return env
}

func cardAccount() carriers.Account {
	return carriers.Account{ID: "acct-card", Carrier: "ups", Name: "UPS negotiated", RateSource: carriers.RateSourceCard}
}

func apiAccount(id, carrier string) carriers.Account {
	return carriers.Account{ID: id, Carrier: carrier, Name: id, RateSource: carriers.RateSourceAPI}
}

func shipment(id, zone string, weight, paid float64) shipping.ShipmentInput {
	return shipping.ShipmentInput{ID: id, Zone: zone, WeightLbs: weight, CurrentRate: paid}
}

func (e *testEnv) submit(t *testing.T, shipments []shipping.ShipmentInput, accountIDs ...string) Job {
	t.Helper()
	job, err := e.svc.Submit(context.Background(), testUser, SubmitRequest{
		Shipments:         shipments,
		CarrierAccountIDs: accountIDs,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return job
}

func (e *testEnv) resultsByID(t *testing.T, jobID string) map[string]shipping.ShipmentResult {
	t.Helper()
	all, err := e.store.List(context.Background(), jobID)
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	out := make(map[string]shipping.ShipmentResult, len(all))
	for _, r := range all {
		out[r.ShipmentID] = r
	}
	return out
}
