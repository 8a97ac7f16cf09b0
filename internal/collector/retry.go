package collector

import (
	"time"

	apperrors "github.com/carlosmarte/repometrics/internal/errors"
)

// DecisionKind is the variant tag of a retry decision
type DecisionKind int

const (
	// DecisionWaitUntil suspends until a known instant (rate-limit reset).
	// Waits of this kind never consume the retry-attempt budget.
	DecisionWaitUntil DecisionKind = iota
	// DecisionBackoff suspends for an exponentially growing delay and
	// retries the same page.
	DecisionBackoff
	// DecisionFatal aborts the collection; retrying cannot fix the cause.
	DecisionFatal
)

// Decision is produced fresh per failed attempt and never persisted.
type Decision struct {
	Kind        DecisionKind
	WaitUntil   time.Time
	Delay       time.Duration
	NextAttempt int
	Reason      error
}

// RetryPolicy classifies a failed attempt into exactly one Decision.
// Keeping rate-limit waits separate from exponential backoff matters:
// conflating them either fails collections prematurely or stalls them for
// minutes on errors a short backoff would have cleared.
type RetryPolicy struct {
	MaxAttempts     int
	BackoffBase     time.Duration
	BackoffCeiling  time.Duration
	RateResetBuffer time.Duration
}

// DefaultRetryPolicy mirrors the defaults the report scripts converged on.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		BackoffBase:     500 * time.Millisecond,
		BackoffCeiling:  30 * time.Second,
		RateResetBuffer: 2 * time.Second,
	}
}

// Classify maps (attempt, err) to a Decision, checked in priority order:
// rate exhaustion, fatal client errors, retryable transient failures,
// everything else fatal.
func (p RetryPolicy) Classify(attempt int, err error) Decision {
	if resetAt, ok := apperrors.ResetTime(err); ok {
		return Decision{
			Kind:        DecisionWaitUntil,
			WaitUntil:   resetAt.Add(p.RateResetBuffer),
			NextAttempt: attempt,
			Reason:      err,
		}
	}

	switch apperrors.CodeOf(err) {
	case apperrors.ErrCodeRateLimited:
		// Rate-limited without a usable reset instant: hold for the
		// ceiling before re-checking. Does not consume the attempt budget.
		return Decision{
			Kind:        DecisionBackoff,
			Delay:       p.BackoffCeiling,
			NextAttempt: attempt,
			Reason:      err,
		}
	case apperrors.ErrCodeUnauthorized, apperrors.ErrCodeForbidden, apperrors.ErrCodeNotFound:
		return Decision{Kind: DecisionFatal, Reason: err}
	case apperrors.ErrCodeTransient:
		if attempt < p.MaxAttempts {
			return Decision{
				Kind:        DecisionBackoff,
				Delay:       p.delay(attempt),
				NextAttempt: attempt + 1,
				Reason:      err,
			}
		}
	}

	return Decision{Kind: DecisionFatal, Reason: err}
}

// delay computes base * 2^attempt, capped at the ceiling.
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BackoffBase
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.BackoffCeiling {
			return p.BackoffCeiling
		}
	}
	if d > p.BackoffCeiling {
		return p.BackoffCeiling
	}
	return d
}
