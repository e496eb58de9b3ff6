package persister

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"

	"rateshop-backend/internal/shipping"
)

type recordingSink struct {
	mu       sync.Mutex
	batches  [][]shipping.ShipmentResult
	failNext int
}

func (s *recordingSink) Append(ctx context.Context, jobID string, batch []shipping.ShipmentResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext > 0 {
		s.failNext--
		return errors.New("db unavailable")
	}
	s.batches = append(s.batches, append([]shipping.ShipmentResult(nil), batch...))
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func (s *recordingSink) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, b := range s.batches {
		for _, r := range b {
			out = append(out, r.ShipmentID)
		}
	}
	return out
}

func result(id string) shipping.ShipmentResult {
	return shipping.ShipmentResult{ShipmentID: id}
}

func TestFlushOnBatchSize(t *testing.T) {
	sink := &recordingSink{}
	clock := clockz.NewFakeClock()
	p := New("job-1", sink, Options{BatchSize: 3, BatchTimeout: time.Hour, Clock: clock})
	t.Cleanup(p.Close)

	p.Add(result("a"))
	p.Add(result("b"))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, sink.count(), "no flush below batch size")

	p.Add(result("c"))
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, sink.ids())
	assert.Equal(t, 3, p.Written())
}

func TestFlushOnBatchTimeout(t *testing.T) {
	sink := &recordingSink{}
	clock := clockz.NewFakeClock()
	p := New("job-1", sink, Options{BatchSize: 50, BatchTimeout: 30 * time.Second, Clock: clock})
	t.Cleanup(p.Close)

	p.Add(result("a"))
	time.Sleep(10 * time.Millisecond)

	clock.Advance(29 * time.Second)
	clock.BlockUntilReady()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, sink.count(), "timeout not yet elapsed")

	p.Add(result("b"))
	clock.Advance(time.Second)
	clock.BlockUntilReady()

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, sink.ids(), "timeout is measured from the oldest item")
}

func TestManualFlushWritesRemainder(t *testing.T) {
	sink := &recordingSink{}
	p := New("job-1", sink, Options{BatchSize: 10, BatchTimeout: time.Hour, Clock: clockz.NewFakeClock()})
	t.Cleanup(p.Close)

	for i := 0; i < 4; i++ {
		p.Add(result(fmt.Sprintf("s%d", i)))
	}
	require.NoError(t, p.Flush(context.Background()))
	assert.Len(t, sink.ids(), 4)

	require.NoError(t, p.Flush(context.Background()), "empty flush is a no-op")
	assert.Equal(t, 1, sink.count())
}

func TestFailedBatchRetainedAndRetried(t *testing.T) {
	sink := &recordingSink{failNext: 1}
	p := New("job-1", sink, Options{BatchSize: 2, BatchTimeout: time.Hour, Clock: clockz.NewFakeClock()})
	t.Cleanup(p.Close)

	p.Add(result("a"))
	p.Add(result("b"))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, sink.count())

	p.Add(result("c"))
	require.NoError(t, p.Flush(context.Background()))
	assert.ElementsMatch(t, []string{"a", "b", "c"}, sink.ids())
	assert.NoError(t, p.Err())
}

func TestPersistentFailureReportsStorageError(t *testing.T) {
	sink := &recordingSink{failNext: 100}
	p := New("job-1", sink, Options{BatchSize: 100, BatchTimeout: time.Hour, MaxFailures: 2, Clock: clockz.NewFakeClock()})
	t.Cleanup(p.Close)

	p.Add(result("a"))
	err := p.Flush(context.Background())
	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.NoError(t, p.Err(), "one failure is not persistent")

	require.Error(t, p.Flush(context.Background()))
	require.ErrorAs(t, p.Err(), &storageErr)
	assert.Equal(t, 2, storageErr.Failures)
	assert.Equal(t, "job-1", storageErr.JobID)
}

func TestConcurrentAdds(t *testing.T) {
	sink := &recordingSink{}
	p := New("job-1", sink, Options{BatchSize: 7, BatchTimeout: time.Hour})
	t.Cleanup(p.Close)

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				p.Add(result(fmt.Sprintf("g%d-%d", g, i)))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, p.Flush(context.Background()))

	ids := sink.ids()
	assert.Len(t, ids, 250)
	seen := map[string]bool{}
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate %s", id)
		seen[id] = true
	}
}

func TestFlushAfterClose(t *testing.T) {
	p := New("job-1", &recordingSink{}, Options{})
	p.Close()
	assert.ErrorIs(t, p.Flush(context.Background()), ErrClosed)
}
