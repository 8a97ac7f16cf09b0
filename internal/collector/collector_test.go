package collector

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlosmarte/repometrics/internal/config"
	"github.com/carlosmarte/repometrics/internal/domain"
	apperrors "github.com/carlosmarte/repometrics/internal/errors"
)

// makeRecords produces n records with sequential IDs starting at first.
func makeRecords(first, n int) []domain.Record {
	records := make([]domain.Record, n)
	for i := 0; i < n; i++ {
		records[i] = domain.Record{
			ID:        fmt.Sprintf("rec-%04d", first+i),
			Kind:      domain.KindCommit,
			Source:    "acme/widgets",
			Repo:      "widgets",
			Actor:     fmt.Sprintf("dev-%d", (first+i)%5),
			Timestamp: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(first+i) * time.Hour),
		}
	}
	return records
}

// pagedSource serves a fixed record stream in pages and counts the fetches
// it receives, including retries of the same page.
type pagedSource struct {
	records  []domain.Record
	pageSize int
	fetched  []int
	// failures maps a 1-based fetch sequence number to an error returned
	// instead of the page.
	failures map[int]error
}

func (s *pagedSource) fetch(ctx context.Context, page int) (*Page, error) {
	s.fetched = append(s.fetched, page)
	if err, ok := s.failures[len(s.fetched)]; ok {
		return nil, err
	}

	start := (page - 1) * s.pageSize
	if start >= len(s.records) {
		return &Page{RateRemaining: 4000}, nil
	}
	end := start + s.pageSize
	if end > len(s.records) {
		end = len(s.records)
	}
	return &Page{
		Records:       s.records[start:end],
		HasMore:       end < len(s.records),
		RateRemaining: 4000,
		RateResetAt:   time.Now().Add(time.Hour),
	}, nil
}

// newTestCollector builds a collector whose sleeps are recorded instead of
// executed and whose clock is frozen at now.
func newTestCollector(opts Options, now time.Time, slept *[]time.Duration) *PagedCollector {
	c := New(opts)
	c.now = func() time.Time { return now }
	c.sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return c
}

func TestCollect_LimitBoundaries(t *testing.T) {
	testCases := []struct {
		name        string
		total       int
		limit       int
		wantRecords int
		wantFetches int
	}{
		{name: "zero limit collects nothing", total: 250, limit: 0, wantRecords: 0, wantFetches: 0},
		{name: "limit one", total: 250, limit: 1, wantRecords: 1, wantFetches: 1},
		{name: "limit on page boundary", total: 250, limit: 100, wantRecords: 100, wantFetches: 1},
		{name: "limit mid page truncates", total: 250, limit: 150, wantRecords: 150, wantFetches: 2},
		{name: "limit above total", total: 250, limit: 300, wantRecords: 250, wantFetches: 3},
		{name: "unbounded drains everything", total: 250, limit: config.LimitUnbounded, wantRecords: 250, wantFetches: 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			src := &pagedSource{records: makeRecords(1, tc.total), pageSize: 100}
			var slept []time.Duration
			c := newTestCollector(Options{Policy: DefaultRetryPolicy()}, time.Now(), &slept)

			records, err := c.Collect(context.Background(), src.fetch, tc.limit)

			require.NoError(t, err)
			assert.Len(t, records, tc.wantRecords)
			assert.Len(t, src.fetched, tc.wantFetches)
			assert.Empty(t, slept)

			// Source order preserved, no duplicates, no gaps.
			for i, rec := range records {
				assert.Equal(t, fmt.Sprintf("rec-%04d", i+1), rec.ID)
			}
		})
	}
}

func TestCollect_DeduplicatesOverlappingPages(t *testing.T) {
	// Two pages that share a record, as happens when the upstream listing
	// shifts between requests.
	pages := []*Page{
		{Records: makeRecords(1, 3), HasMore: true, RateRemaining: 4000},
		{Records: makeRecords(3, 3), HasMore: false, RateRemaining: 4000},
	}
	fetch := func(ctx context.Context, page int) (*Page, error) {
		return pages[page-1], nil
	}

	var slept []time.Duration
	c := newTestCollector(Options{Policy: DefaultRetryPolicy()}, time.Now(), &slept)

	records, err := c.Collect(context.Background(), fetch, config.LimitUnbounded)

	require.NoError(t, err)
	require.Len(t, records, 5)
	ids := make(map[string]struct{})
	for _, rec := range records {
		_, dup := ids[rec.ID]
		assert.False(t, dup, "record %s delivered twice", rec.ID)
		ids[rec.ID] = struct{}{}
	}
}

func TestCollect_RetriesSamePageOnTransient(t *testing.T) {
	src := &pagedSource{
		records:  makeRecords(1, 150),
		pageSize: 100,
		failures: map[int]error{
			// Second fetch (page 2, first try) fails once.
			2: apperrors.NewTransientError("server error 502", nil),
		},
	}
	var slept []time.Duration
	c := newTestCollector(Options{Policy: DefaultRetryPolicy()}, time.Now(), &slept)

	records, err := c.Collect(context.Background(), src.fetch, config.LimitUnbounded)

	require.NoError(t, err)
	assert.Len(t, records, 150)
	assert.Equal(t, []int{1, 2, 2}, src.fetched, "failed page must be refetched, not skipped")
	require.Len(t, slept, 1)
	assert.Equal(t, 500*time.Millisecond, slept[0])
}

func TestCollect_BackoffDoublesPerAttempt(t *testing.T) {
	src := &pagedSource{
		records:  makeRecords(1, 50),
		pageSize: 100,
		failures: map[int]error{
			1: apperrors.NewTransientError("server error 503", nil),
			2: apperrors.NewTransientError("server error 503", nil),
			3: apperrors.NewTransientError("server error 503", nil),
		},
	}
	var slept []time.Duration
	c := newTestCollector(Options{Policy: DefaultRetryPolicy()}, time.Now(), &slept)

	records, err := c.Collect(context.Background(), src.fetch, config.LimitUnbounded)

	require.NoError(t, err)
	assert.Len(t, records, 50)
	assert.Equal(t, []time.Duration{
		500 * time.Millisecond,
		1 * time.Second,
		2 * time.Second,
	}, slept)
}

func TestCollect_TransientExhaustionIsFatal(t *testing.T) {
	transient := apperrors.NewTransientError("server error 502", nil)
	src := &pagedSource{
		records:  makeRecords(1, 50),
		pageSize: 100,
		failures: map[int]error{1: transient, 2: transient, 3: transient, 4: transient},
	}
	var slept []time.Duration
	c := newTestCollector(Options{Policy: DefaultRetryPolicy()}, time.Now(), &slept)

	records, err := c.Collect(context.Background(), src.fetch, config.LimitUnbounded)

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeTransient, apperrors.CodeOf(err))
	assert.Nil(t, records)
	// MaxAttempts retries after the initial try, then give up.
	assert.Equal(t, []int{1, 1, 1, 1}, src.fetched)
	assert.Len(t, slept, 3)
}

func TestCollect_FatalErrorsNeverRetried(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		code apperrors.ErrCode
	}{
		{name: "unauthorized", err: apperrors.NewUnauthorizedError("credential rejected"), code: apperrors.ErrCodeUnauthorized},
		{name: "forbidden", err: apperrors.NewForbiddenError("access denied"), code: apperrors.ErrCodeForbidden},
		{name: "not found", err: apperrors.NewNotFoundError("acme/widgets"), code: apperrors.ErrCodeNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			src := &pagedSource{
				records:  makeRecords(1, 50),
				pageSize: 100,
				failures: map[int]error{1: tc.err},
			}
			var slept []time.Duration
			c := newTestCollector(Options{Policy: DefaultRetryPolicy()}, time.Now(), &slept)

			records, err := c.Collect(context.Background(), src.fetch, config.LimitUnbounded)

			require.Error(t, err)
			assert.Equal(t, tc.code, apperrors.CodeOf(err))
			assert.Nil(t, records)
			assert.Len(t, src.fetched, 1, "fatal errors must not be retried")
			assert.Empty(t, slept)
		})
	}
}

func TestCollect_RateLimitWaitDoesNotConsumeRetryBudget(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rateErr := apperrors.NewRateLimitedError("rate limit exhausted", now.Add(30*time.Second))

	// More rate-limit hits than MaxAttempts allows for transient errors.
	src := &pagedSource{
		records:  makeRecords(1, 50),
		pageSize: 100,
		failures: map[int]error{1: rateErr, 2: rateErr, 3: rateErr, 4: rateErr, 5: rateErr},
	}
	var slept []time.Duration
	c := newTestCollector(Options{Policy: DefaultRetryPolicy()}, now, &slept)

	records, err := c.Collect(context.Background(), src.fetch, config.LimitUnbounded)

	require.NoError(t, err)
	assert.Len(t, records, 50)
	assert.Equal(t, []int{1, 1, 1, 1, 1, 1}, src.fetched)
	// Each wait runs until the reset instant plus the buffer.
	require.Len(t, slept, 5)
	for _, d := range slept {
		assert.Equal(t, 32*time.Second, d)
	}
}

func TestCollect_PausesWhenBudgetLow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	resetAt := now.Add(10 * time.Minute)
	budget := NewRateBudget(3, resetAt)

	src := &pagedSource{records: makeRecords(1, 50), pageSize: 100}
	var slept []time.Duration
	c := newTestCollector(Options{
		Budget:         budget,
		Policy:         DefaultRetryPolicy(),
		PauseThreshold: 10,
	}, now, &slept)

	records, err := c.Collect(context.Background(), src.fetch, config.LimitUnbounded)

	require.NoError(t, err)
	assert.Len(t, records, 50)
	require.Len(t, slept, 1, "one pause before the first fetch, none after replenishment")
	assert.Equal(t, 10*time.Minute, slept[0])

	remaining, _ := budget.Snapshot()
	assert.Equal(t, 4000, remaining, "budget reflects the last response headers")
}

func TestCollect_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &pagedSource{records: makeRecords(1, 50), pageSize: 100}
	var slept []time.Duration
	c := newTestCollector(Options{Policy: DefaultRetryPolicy()}, time.Now(), &slept)

	records, err := c.Collect(ctx, src.fetch, config.LimitUnbounded)

	require.Error(t, err)
	assert.Nil(t, records)
	assert.Empty(t, src.fetched, "no fetch after cancellation")
}

func TestCollect_AllowPartialKeepsGatheredRecords(t *testing.T) {
	fatal := apperrors.NewNotFoundError("acme/widgets")

	testCases := []struct {
		name         string
		allowPartial bool
		wantRecords  int
	}{
		{name: "partial kept when allowed", allowPartial: true, wantRecords: 100},
		{name: "partial dropped by default", allowPartial: false, wantRecords: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			src := &pagedSource{
				records:  makeRecords(1, 250),
				pageSize: 100,
				failures: map[int]error{2: fatal},
			}
			var slept []time.Duration
			c := newTestCollector(Options{
				Policy:       DefaultRetryPolicy(),
				AllowPartial: tc.allowPartial,
			}, time.Now(), &slept)

			records, err := c.Collect(context.Background(), src.fetch, config.LimitUnbounded)

			require.Error(t, err)
			assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.CodeOf(err))
			assert.Len(t, records, tc.wantRecords)
		})
	}
}

func TestCollect_StopsOnEmptyPage(t *testing.T) {
	fetch := func(ctx context.Context, page int) (*Page, error) {
		// Claims more pages but delivers nothing; a defensive stop keeps
		// the loop from spinning forever.
		return &Page{HasMore: true, RateRemaining: 4000}, nil
	}

	var slept []time.Duration
	c := newTestCollector(Options{Policy: DefaultRetryPolicy()}, time.Now(), &slept)

	records, err := c.Collect(context.Background(), fetch, config.LimitUnbounded)

	require.NoError(t, err)
	assert.Empty(t, records)
}
