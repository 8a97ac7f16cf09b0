package collector

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/carlosmarte/repometrics/internal/config"
	"github.com/carlosmarte/repometrics/internal/domain"
	apperrors "github.com/carlosmarte/repometrics/internal/errors"
)

// Page is one fetched page of records plus the rate-limit headers observed
// on the response that carried it.
type Page struct {
	Records       []domain.Record
	HasMore       bool
	RateRemaining int
	RateResetAt   time.Time
}

// PageFetcher fetches one page of records from the remote source. Pages are
// numbered from 1. Failures must surface as taxonomy errors the RetryPolicy
// can classify, never as panics.
type PageFetcher func(ctx context.Context, page int) (*Page, error)

// Options configures a PagedCollector.
type Options struct {
	Budget         *RateBudget
	Policy         RetryPolicy
	PauseThreshold int
	// AllowPartial keeps already-gathered records when collection aborts
	// on a fatal error; Collect then returns both the records and the error.
	AllowPartial bool
	Logger       *log.Logger
}

// PagedCollector drives repeated page fetches against an abstract source,
// pausing on the shared rate budget and retrying per the policy. One
// instance owns one logical pagination sequence; run several instances for
// independent sequences, sharing a single RateBudget.
type PagedCollector struct {
	budget         *RateBudget
	policy         RetryPolicy
	pauseThreshold int
	allowPartial   bool
	logger         *log.Logger

	// injectable for tests
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// cursor is owned exclusively by one Collect invocation and discarded when
// it terminates.
type cursor struct {
	page      int
	collected int
	hasMore   bool
}

// New creates a PagedCollector.
func New(opts Options) *PagedCollector {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	budget := opts.Budget
	if budget == nil {
		budget = NewRateBudget(defaultRateAllowance, time.Now().Add(time.Hour))
	}
	return &PagedCollector{
		budget:         budget,
		policy:         opts.Policy,
		pauseThreshold: opts.PauseThreshold,
		allowPartial:   opts.AllowPartial,
		logger:         logger,
		sleep:          sleepCtx,
		now:            time.Now,
	}
}

// defaultRateAllowance is the GitHub-style default hourly request quota.
const defaultRateAllowance = 5000

// Collect drains the source through fetch until limit records are gathered
// or the source reports no more pages. limit may be config.LimitUnbounded
// (-1); limit 0 collects nothing. The returned sequence preserves source
// order and contains each record at most once.
//
// On a fatal error the partial results gathered so far are returned only
// when AllowPartial is set; otherwise the slice is nil. Either way the
// error is a taxonomy error the caller can branch on.
func (c *PagedCollector) Collect(ctx context.Context, fetch PageFetcher, limit int) ([]domain.Record, error) {
	if limit == 0 {
		return nil, nil
	}

	var records []domain.Record
	seen := make(map[string]struct{})
	cur := cursor{page: 1, hasMore: true}
	attempt := 0

	for cur.hasMore && (limit == config.LimitUnbounded || cur.collected < limit) {
		// Cooperative cancellation, checked once per iteration.
		if err := ctx.Err(); err != nil {
			return c.finish(records, apperrors.NewInternalError("collection cancelled", err))
		}

		if c.budget.ShouldPause(c.pauseThreshold) {
			wait := c.budget.WaitDuration(c.now())
			if wait > 0 {
				c.logger.Printf("rate budget low, pausing %v before page %d", wait.Round(time.Second), cur.page)
				if err := c.sleep(ctx, wait); err != nil {
					return c.finish(records, apperrors.NewInternalError("collection cancelled", err))
				}
			}
			// Window has passed; assume the allowance replenished until
			// the next response says otherwise.
			c.budget.Observe(defaultRateAllowance, c.now().Add(time.Hour))
		}

		page, err := fetch(ctx, cur.page)
		if err != nil {
			decision := c.policy.Classify(attempt, err)
			switch decision.Kind {
			case DecisionWaitUntil:
				wait := decision.WaitUntil.Sub(c.now())
				c.logger.Printf("rate limited on page %d, waiting %v until reset", cur.page, wait.Round(time.Second))
				if wait > 0 {
					if serr := c.sleep(ctx, wait); serr != nil {
						return c.finish(records, apperrors.NewInternalError("collection cancelled", serr))
					}
				}
				attempt = decision.NextAttempt
				continue // retry the same page
			case DecisionBackoff:
				c.logger.Printf("transient failure on page %d (attempt %d), backing off %v: %v", cur.page, attempt, decision.Delay, err)
				if serr := c.sleep(ctx, decision.Delay); serr != nil {
					return c.finish(records, apperrors.NewInternalError("collection cancelled", serr))
				}
				attempt = decision.NextAttempt
				continue // retry the same page
			default:
				return c.finish(records, decision.Reason)
			}
		}
		attempt = 0

		c.budget.Observe(page.RateRemaining, page.RateResetAt)

		for _, rec := range page.Records {
			if limit != config.LimitUnbounded && cur.collected >= limit {
				break
			}
			if _, dup := seen[rec.ID]; dup {
				continue
			}
			seen[rec.ID] = struct{}{}
			records = append(records, rec)
			cur.collected++
		}

		if len(page.Records) == 0 || !page.HasMore {
			cur.hasMore = false
		}
		cur.page++
	}

	return records, nil
}

// finish applies the partial-results policy to an aborted collection.
func (c *PagedCollector) finish(records []domain.Record, err error) ([]domain.Record, error) {
	if c.allowPartial && len(records) > 0 {
		c.logger.Printf("collection aborted after %d records: %v", len(records), err)
		return records, err
	}
	return nil, err
}

// sleepCtx blocks for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
