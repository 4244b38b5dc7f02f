package taskqueue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tracker records how many tasks run at once
type tracker struct {
	mu       sync.Mutex
	running  int
	peak     int
	started  atomic.Int32
	finished atomic.Int32
}

func (tr *tracker) task(value int, delay time.Duration, err error) Task[int] {
	return func(ctx context.Context) (int, error) {
		tr.started.Add(1)
		tr.mu.Lock()
		tr.running++
		tr.peak = max(tr.peak, tr.running)
		tr.mu.Unlock()

		time.Sleep(delay)

		tr.mu.Lock()
		tr.running--
		tr.mu.Unlock()
		tr.finished.Add(1)
		return value, err
	}
}

func TestRunBoundsInFlight(t *testing.T) {
	for _, limit := range []int{1, 3, 8} {
		tr := &tracker{}
		var tasks []Task[int]
		for i := range 40 {
			tasks = append(tasks, tr.task(i, time.Millisecond, nil))
		}

		var got []int
		for v, err := range Run(context.Background(), limit, Slice(tasks)) {
			require.NoError(t, err)
			got = append(got, v)
		}

		sort.Ints(got)
		want := make([]int, 40)
		for i := range want {
			want[i] = i
		}
		assert.Equal(t, want, got, "limit %d", limit)
		assert.LessOrEqual(t, tr.peak, limit)
		assert.GreaterOrEqual(t, tr.peak, 1)
	}
}

func TestRunTreatsZeroLimitAsOne(t *testing.T) {
	tr := &tracker{}
	tasks := []Task[int]{
		tr.task(1, time.Millisecond, nil),
		tr.task(2, time.Millisecond, nil),
		tr.task(3, time.Millisecond, nil),
	}
	count := 0
	for _, err := range Run(context.Background(), 0, Slice(tasks)) {
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, 3, count)
	assert.Equal(t, 1, tr.peak)
}

func TestRunYieldsErrorsWithoutAbortingSiblings(t *testing.T) {
	boom := errors.New("boom")
	tr := &tracker{}
	var tasks []Task[int]
	for i := range 10 {
		var err error
		if i == 3 {
			err = boom
		}
		tasks = append(tasks, tr.task(i, time.Millisecond, err))
	}

	values, failures := 0, 0
	for _, err := range Run(context.Background(), 4, Slice(tasks)) {
		if err != nil {
			assert.ErrorIs(t, err, boom)
			failures++
			continue
		}
		values++
	}
	assert.Equal(t, 9, values)
	assert.Equal(t, 1, failures)
	assert.Equal(t, int32(10), tr.finished.Load())
}

func TestRunStopsSubmittingAfterBreak(t *testing.T) {
	const limit = 2
	tr := &tracker{}
	var tasks []Task[int]
	for i := range 50 {
		tasks = append(tasks, tr.task(i, 5*time.Millisecond, nil))
	}

	received := 0
	for range Run(context.Background(), limit, Slice(tasks)) {
		received++
		if received == 2 {
			break
		}
	}

	// let any in-flight tasks drain
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, received)
	assert.LessOrEqual(t, int(tr.started.Load()), received+limit+1)
	assert.Equal(t, tr.started.Load(), tr.finished.Load())
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	blocking := func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	tasks := []Task[int]{blocking, blocking, blocking}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	var errs []error
	for _, err := range Run(ctx, 2, Slice(tasks)) {
		errs = append(errs, err)
	}
	require.NotEmpty(t, errs)
	for _, err := range errs {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestRunEmpty(t *testing.T) {
	count := 0
	for range Run(context.Background(), 3, Slice[int](nil)) {
		count++
	}
	assert.Zero(t, count)
}
