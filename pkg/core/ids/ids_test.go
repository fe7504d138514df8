package ids

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/escort-dispatch/pkg/lock"
)

var jan2024 = time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC)

type mockLister struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (m *mockLister) ListRequestIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]string(nil), m.ids...), nil
}

func (m *mockLister) add(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, id)
}

func TestNextRequestID(t *testing.T) {
	tests := []struct {
		name     string
		now      time.Time
		existing []string
		want     string
	}{
		{"first of the month", jan2024, nil, "A-01-24"},
		{"after max", jan2024, []string{"A-01-24", "A-07-24", "A-03-24"}, "A-08-24"},
		{"other months ignored", jan2024, []string{"B-09-24", "A-09-23"}, "A-01-24"},
		{"malformed ignored", jan2024, []string{"A-xx-24", "A-5-2024", "REQ-99", "a-04-24", "A-00-24", ""}, "A-01-24"},
		{"december letter", time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), []string{"L-02-25"}, "L-03-25"},
		{"three-digit sequence", jan2024, []string{"A-99-24"}, "A-100-24"},
		{"after three-digit sequence", jan2024, []string{"A-100-24", "A-99-24"}, "A-101-24"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextRequestID(tt.now, tt.existing))
		})
	}
}

func TestParseRequestID(t *testing.T) {
	id, ok := ParseRequestID("C-12-24")
	require.True(t, ok)
	assert.Equal(t, RequestID{Month: time.March, Seq: 12, Year: 24}, id)
	assert.Equal(t, "C-12-24", id.String())

	_, ok = ParseRequestID("M-01-24")
	assert.False(t, ok, "M is not a month letter")
}

func TestAssignmentIDFormat(t *testing.T) {
	assert.Equal(t, "ASG-0007", FormatAssignmentID(7))
	assert.Equal(t, "ASG-12345", FormatAssignmentID(12345))

	n, ok := ParseAssignmentID("ASG-0042")
	require.True(t, ok)
	assert.Equal(t, int64(42), n)

	_, ok = ParseAssignmentID("ASG-")
	assert.False(t, ok)

	assert.Equal(t, int64(12), MaxAssignmentNumber([]string{"ASG-0003", "bogus", "ASG-0012"}))
}

func TestRequestIDs_FiftySequentialAreUniqueAndIncreasing(t *testing.T) {
	lister := &mockLister{}
	gen := NewRequestIDs(lister, lock.NewLocal(), nil)
	ctx := context.Background()

	last := 0
	for i := 0; i < 50; i++ {
		id, err := gen.Next(ctx, jan2024)
		require.NoError(t, err)
		lister.add(id)

		parsed, ok := ParseRequestID(id)
		require.True(t, ok)
		assert.Equal(t, last+1, parsed.Seq, "no gaps")
		last = parsed.Seq
	}
	assert.Equal(t, 50, last)
}

func TestRequestIDs_ConcurrentCallersNeverCollide(t *testing.T) {
	// Nothing is written back to the store, so only the counter prevents reuse
	gen := NewRequestIDs(&mockLister{ids: []string{"A-04-24"}}, lock.NewLocal(), nil)
	ctx := context.Background()

	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
		wg   sync.WaitGroup
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := gen.Next(ctx, jan2024)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			assert.False(t, seen[id], "duplicate ID %s", id)
			seen[id] = true
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 30)
	assert.True(t, seen["A-05-24"])
	assert.True(t, seen["A-34-24"])
}

func TestRequestIDs_NewMonthRestartsSequence(t *testing.T) {
	gen := NewRequestIDs(&mockLister{}, nil, nil)
	ctx := context.Background()

	id, err := gen.Next(ctx, jan2024)
	require.NoError(t, err)
	assert.Equal(t, "A-01-24", id)

	id, err = gen.Next(ctx, jan2024.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, "B-01-24", id)
}

func TestRequestIDs_ListerError(t *testing.T) {
	gen := NewRequestIDs(&mockLister{err: errors.New("sheet unreachable")}, nil, nil)
	_, err := gen.Next(context.Background(), jan2024)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list request IDs")
}

func TestRequestIDs_SharedCounterAcrossInstances(t *testing.T) {
	store := &mockLister{}
	locker := lock.NewLocal()
	counter := NewScanSequencer(func(context.Context, string) (int64, error) { return 0, nil })
	first := NewRequestIDs(store, locker, counter)
	second := NewRequestIDs(store, locker, counter)
	ctx := context.Background()

	// Neither ID is stored before the other instance asks
	a, err := first.Next(ctx, jan2024)
	require.NoError(t, err)
	b, err := second.Next(ctx, jan2024)
	require.NoError(t, err)

	assert.Equal(t, "A-01-24", a)
	assert.Equal(t, "A-02-24", b)
}

func TestRequestIDs_CreateInsertsUnderLock(t *testing.T) {
	// Separate in-process counters, so uniqueness rests on the insert finishing under the lock
	store := &mockLister{ids: []string{"A-02-24"}}
	locker := lock.NewLocal()
	instances := []*RequestIDs{
		NewRequestIDs(store, locker, nil),
		NewRequestIDs(store, locker, nil),
	}
	ctx := context.Background()

	var (
		mu      sync.Mutex
		created []string
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(gen *RequestIDs) {
			defer wg.Done()
			id, err := gen.Create(ctx, jan2024, func(ctx context.Context, id string) error {
				store.add(id)
				return nil
			})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			created = append(created, id)
		}(instances[i%2])
	}
	wg.Wait()

	stored, err := store.ListRequestIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 21)

	unique := make(map[string]bool)
	for _, id := range stored {
		assert.False(t, unique[id], "duplicate ID %s", id)
		unique[id] = true
	}
	assert.Len(t, created, 20)
	assert.True(t, unique["A-22-24"])
}

func TestRequestIDs_CreateInsertError(t *testing.T) {
	store := &mockLister{}
	gen := NewRequestIDs(store, nil, nil)

	_, err := gen.Create(context.Background(), jan2024, func(ctx context.Context, id string) error {
		return errors.New("row rejected")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row rejected")

	stored, err := store.ListRequestIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestRequestScope(t *testing.T) {
	assert.Equal(t, "request:A-24", RequestScope(jan2024))
	assert.Equal(t, "request:L-25", RequestScope(time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC)))
}

func TestScanSequencer(t *testing.T) {
	stored := int64(5)
	seq := NewScanSequencer(func(ctx context.Context, scope string) (int64, error) {
		return stored, nil
	})
	ids := NewAssignmentIDs(seq)
	ctx := context.Background()

	first, err := ids.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ASG-0006", first)

	second, err := ids.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ASG-0007", second, "high-water mark beats a stale scan")

	stored = 20
	third, err := ids.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ASG-0021", third)
}

func TestAssignmentIDs_SequencerError(t *testing.T) {
	seq := NewScanSequencer(func(ctx context.Context, scope string) (int64, error) {
		return 0, errors.New("boom")
	})
	_, err := NewAssignmentIDs(seq).Next(context.Background())
	assert.Error(t, err)
}
