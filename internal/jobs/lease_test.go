package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
	"go.uber.org/mock/gomock"

	"rateshop-backend/internal/carriers"
	"rateshop-backend/internal/mocks"
	"rateshop-backend/internal/shared/lock"
	"rateshop-backend/internal/shipping"
)

// signalLocker reports every lease refresh on refreshed.
type signalLocker struct {
	lock.Locker
	refreshed chan error
}

func (l signalLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (lock.Lease, error) {
	lease, err := l.Locker.Acquire(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return signalLease{Lease: lease, refreshed: l.refreshed}, nil
}

type signalLease struct {
	lock.Lease
	refreshed chan error
}

func (l signalLease) Refresh(ctx context.Context) error {
	err := l.Lease.Refresh(ctx)
	l.refreshed <- err
	return err
}

// lostLease fails every refresh as if another worker took the job over.
type lostLease struct{}

func (lostLease) Refresh(context.Context) error { return lock.ErrLeaseLost }
func (lostLease) Release(context.Context) error { return nil }

type lostLocker struct{}

func (lostLocker) Acquire(context.Context, string, time.Duration) (lock.Lease, error) {
	return lostLease{}, nil
}

func apiQuote(account carriers.Account) []shipping.RateCandidate {
	return []shipping.RateCandidate{{
		CarrierAccountID: account.ID,
		Carrier:          account.Carrier,
		ServiceCode:      "GROUND",
		Amount:           7,
		Currency:         "USD",
		Source:           shipping.SourceCarrierAPI,
	}}
}

func TestProcessKeepsLeaseAliveDuringSlowChunk(t *testing.T) {
	clock := clockz.NewFakeClock()
	refreshed := make(chan error, 8)

	ctrl := gomock.NewController(t)
	quoter := mocks.NewMockQuoter(ctrl)
	first := true
	quoter.EXPECT().
		Quote(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Times(2).
		DoAndReturn(func(ctx context.Context, sh shipping.ShipmentInput, account carriers.Account, codes []string) ([]shipping.RateCandidate, error) {
			if first {
				first = false
				// one carrier call outlasting the 10m lease several times over
				for range 3 {
					clock.Advance(4 * time.Minute)
					clock.BlockUntilReady()
					select {
					case err := <-refreshed:
						assert.NoError(t, err)
					case <-time.After(5 * time.Second):
						t.Error("lease was not refreshed while the chunk was running")
					}
				}
			}
			return apiQuote(account), nil
		})

	env := newTestEnv(t, quoter, apiAccount("acct-x", "ups"))
	env.svc.Clock = clock
	env.svc.Locker = signalLocker{Locker: lock.NewMemory(clock), refreshed: refreshed}
	env.svc.Options.Concurrency = 1
	job := env.submit(t, []shipping.ShipmentInput{
		shipment("s1", "2", 1, 10),
		shipment("s2", "2", 1, 10),
	}, "acct-x")

	require.NoError(t, env.svc.Process(t.Context(), job.ID))

	got, err := env.repo.GetByID(t.Context(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 2, got.ProcessedCount)
}

func TestProcessStopsWhenLeaseIsLost(t *testing.T) {
	clock := clockz.NewFakeClock()

	ctrl := gomock.NewController(t)
	quoter := mocks.NewMockQuoter(ctrl)
	quoter.EXPECT().
		Quote(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, sh shipping.ShipmentInput, account carriers.Account, codes []string) ([]shipping.RateCandidate, error) {
			clock.Advance(4 * time.Minute)
			clock.BlockUntilReady()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				t.Error("run was not canceled after the lease was lost")
				return apiQuote(account), nil
			}
		})

	env := newTestEnv(t, quoter, apiAccount("acct-x", "ups"))
	env.svc.Clock = clock
	env.svc.Locker = lostLocker{}
	job := env.submit(t, []shipping.ShipmentInput{shipment("s1", "2", 1, 10)}, "acct-x")

	err := env.svc.Process(t.Context(), job.ID)
	require.ErrorIs(t, err, ErrJobLocked)
	require.ErrorIs(t, err, lock.ErrLeaseLost)

	got, err := env.repo.GetByID(t.Context(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, got.Status, "the new lease holder owns the status")
	assert.Empty(t, got.Error)
}

func TestLeaseRefreshInterval(t *testing.T) {
	assert.Equal(t, 10*time.Second, leaseRefreshInterval(30*time.Second))
	assert.Equal(t, time.Second, leaseRefreshInterval(0))
}
