package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	"rateshop-backend/internal/bestrate"
	"rateshop-backend/internal/carriers"
	"rateshop-backend/internal/ratetable"
	"rateshop-backend/internal/rating"
	"rateshop-backend/internal/shared/telemetry"
	"rateshop-backend/internal/shipping"
)

// rateContext holds everything a job needs to price shipments. It is built
// once per job and shared read-only by all workers, except for the auth
// breaker which is safe for concurrent use.
type rateContext struct {
	jobID     string
	requestID string
	accounts  []carriers.Account
	resolver  ratetable.Resolver
	quoter    rating.Quoter

	authFailed sync.Map // account id -> struct{}
	firstCall  sync.Map // account id -> chan struct{}, closed when the first call returns
}

var errCredentialsTripped = errors.New("carrier credentials rejected earlier in this job")

type indexedShipment struct {
	index    int
	shipment shipping.ShipmentInput
}

// price rates one shipment against every account. Any failure, including a
// panic, ends in an orphaned result rather than escaping.
func (rc *rateContext) price(ctx context.Context, item indexedShipment) (result shipping.ShipmentResult) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.Error("job.shipment_panic", map[string]any{
				"request_id":  rc.requestID,
				"job_id":      rc.jobID,
				"shipment_id": item.shipment.ID,
				"error":       fmt.Sprint(r),
				"stack":       string(debug.Stack()),
			})
			result = bestrate.Orphan(item.index, item.shipment, "internal error while pricing shipment")
		}
	}()

	shipment := item.shipment
	if ok, reason := shipment.Valid(); !ok {
		return bestrate.Orphan(item.index, shipment, reason)
	}

	var candidates []shipping.RateCandidate
	var reasons []string
	for _, account := range rc.accounts {
		if account.UsesRateCard() {
			found := rc.resolver.Resolve(shipment, account)
			if len(found) > 0 {
				candidates = append(candidates, found...)
				continue
			}
			reasons = append(reasons, fmt.Sprintf("%s: no rate card entry for zone %s at %g lb",
				account.ID, strings.TrimSpace(shipment.Zone), shipment.BillableWeight(account.DimDivisor)))
		}
		if !account.UsesAPI() {
			continue
		}
		if rc.quoter == nil {
			reasons = append(reasons, account.ID+": carrier api not configured")
			continue
		}
		if rc.tripped(account.ID) {
			reasons = append(reasons, account.ID+": carrier credentials rejected")
			continue
		}
		quotes, err := rc.quote(ctx, shipment, account)
		if err != nil {
			if rating.IsAuth(err) || errors.Is(err, errCredentialsTripped) {
				reasons = append(reasons, account.ID+": carrier credentials rejected")
				continue
			}
			reasons = append(reasons, fmt.Sprintf("%s: %v", account.ID, err))
			continue
		}
		if len(quotes) == 0 {
			reasons = append(reasons, account.ID+": no carrier quote")
			continue
		}
		candidates = append(candidates, quotes...)
	}
	return bestrate.BuildResult(item.index, shipment, candidates, reasons)
}

// quote calls the carrier API. The first call for an account runs alone and
// the others wait for it, so rejected credentials trip the breaker before
// any other worker reaches the carrier.
func (rc *rateContext) quote(ctx context.Context, shipment shipping.ShipmentInput, account carriers.Account) ([]shipping.RateCandidate, error) {
	gate, waiting := rc.firstCall.LoadOrStore(account.ID, make(chan struct{}))
	if !waiting {
		defer close(gate.(chan struct{}))
		quotes, err := rc.quoter.Quote(ctx, shipment, account, nil)
		if rating.IsAuth(err) {
			rc.trip(account, err)
		}
		return quotes, err
	}

	select {
	case <-gate.(chan struct{}):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if rc.tripped(account.ID) {
		return nil, errCredentialsTripped
	}
	return rc.quoter.Quote(ctx, shipment, account, nil)
}

func (rc *rateContext) tripped(accountID string) bool {
	_, ok := rc.authFailed.Load(accountID)
	return ok
}

// trip stops API calls for the account for the rest of the job. Only the
// first failure is logged.
func (rc *rateContext) trip(account carriers.Account, err error) {
	if _, loaded := rc.authFailed.LoadOrStore(account.ID, struct{}{}); loaded {
		return
	}
	telemetry.Warn("job.carrier_auth_failed", map[string]any{
		"request_id":         rc.requestID,
		"job_id":             rc.jobID,
		"carrier_account_id": account.ID,
		"carrier":            account.Carrier,
		"error":              err,
	})
}
