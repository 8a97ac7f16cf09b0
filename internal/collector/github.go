package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/go-github/v55/github"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/carlosmarte/repometrics/internal/domain"
	apperrors "github.com/carlosmarte/repometrics/internal/errors"
)

// perPage is the page size requested from the GitHub API.
const perPage = 100

// GitHubSource builds PageFetchers over the GitHub REST API. It is the
// concrete integration behind the abstract paginated source the collector
// drives.
type GitHubSource struct {
	client *github.Client
	// WithCommitStats enables the per-commit detail request that carries
	// additions/deletions. Costs one extra API call per commit.
	WithCommitStats bool
}

// NewGitHubSource creates a GitHub-backed source using a token.
func NewGitHubSource(token string) *GitHubSource {
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)
	return &GitHubSource{client: github.NewClient(tc), WithCommitStats: true}
}

// NewGitHubSourceWithClient creates a source over an existing client.
// Used by tests pointing at a mock server.
func NewGitHubSourceWithClient(client *github.Client) *GitHubSource {
	return &GitHubSource{client: client}
}

// Commits returns a PageFetcher over the repository's commits in the range.
func (s *GitHubSource) Commits(owner, repo string, tr domain.TimeRange) PageFetcher {
	return func(ctx context.Context, page int) (*Page, error) {
		opts := &github.CommitsListOptions{
			Since:       tr.Start,
			Until:       tr.End,
			ListOptions: github.ListOptions{Page: page, PerPage: perPage},
		}
		commits, resp, err := s.client.Repositories.ListCommits(ctx, owner, repo, opts)
		if err != nil {
			// 409 means the repository is empty
			if resp != nil && resp.StatusCode == 409 {
				return &Page{}, nil
			}
			return nil, mapGitHubError(fmt.Sprintf("list commits for %s/%s", owner, repo), err)
		}

		out := newPage(resp)
		for _, commit := range commits {
			rec, err := s.commitRecord(ctx, owner, repo, commit)
			if err != nil {
				return nil, err
			}
			out.Records = append(out.Records, rec)
		}
		return out, nil
	}
}

func (s *GitHubSource) commitRecord(ctx context.Context, owner, repo string, commit *github.RepositoryCommit) (domain.Record, error) {
	actor := ""
	if commit.Author != nil {
		actor = commit.Author.GetLogin()
	} else if commit.Commit != nil && commit.Commit.Author != nil {
		actor = commit.Commit.Author.GetName()
	}

	message := commit.Commit.GetMessage()
	numbers := map[string]float64{}
	if s.WithCommitStats {
		detail, _, err := s.client.Repositories.GetCommit(ctx, owner, repo, commit.GetSHA(), nil)
		if err != nil {
			return domain.Record{}, mapGitHubError(fmt.Sprintf("get commit %s", commit.GetSHA()), err)
		}
		if detail.Stats != nil {
			numbers["additions"] = float64(detail.Stats.GetAdditions())
			numbers["deletions"] = float64(detail.Stats.GetDeletions())
		}
		numbers["files_changed"] = float64(len(detail.Files))
	}
	numbers["message_length"] = float64(len(message))

	return domain.Record{
		ID:        commit.GetSHA(),
		Kind:      domain.KindCommit,
		Source:    owner + "/" + repo,
		Repo:      repo,
		Actor:     actor,
		Timestamp: commit.Commit.Author.GetDate().Time,
		Numbers:   numbers,
		Texts: map[string]string{
			"message": message,
		},
		Flags: map[string]bool{
			"is_merge": strings.HasPrefix(message, "Merge "),
		},
	}, nil
}

// PullRequests returns a PageFetcher over the repository's pull requests
// created inside the range. The API lists newest first; once a page dips
// below the range start the fetcher reports no further pages.
func (s *GitHubSource) PullRequests(owner, repo string, tr domain.TimeRange) PageFetcher {
	return func(ctx context.Context, page int) (*Page, error) {
		opts := &github.PullRequestListOptions{
			State:       "all",
			Sort:        "created",
			Direction:   "desc",
			ListOptions: github.ListOptions{Page: page, PerPage: perPage},
		}
		prs, resp, err := s.client.PullRequests.List(ctx, owner, repo, opts)
		if err != nil {
			return nil, mapGitHubError(fmt.Sprintf("list pull requests for %s/%s", owner, repo), err)
		}

		out := newPage(resp)
		for _, pr := range prs {
			createdAt := pr.GetCreatedAt().Time
			if createdAt.Before(tr.Start) {
				out.HasMore = false
				break
			}
			if createdAt.After(tr.End) {
				continue
			}
			out.Records = append(out.Records, pullRequestRecord(owner, repo, pr))
		}
		return out, nil
	}
}

func pullRequestRecord(owner, repo string, pr *github.PullRequest) domain.Record {
	createdAt := pr.GetCreatedAt().Time

	closedAt := time.Now()
	closed := false
	switch {
	case pr.MergedAt != nil:
		closedAt = pr.MergedAt.Time
		closed = true
	case pr.ClosedAt != nil:
		closedAt = pr.ClosedAt.Time
		closed = true
	}
	daysOpen := closedAt.Sub(createdAt).Hours() / 24

	state := pr.GetState()
	if pr.MergedAt != nil {
		state = "merged"
	}

	return domain.Record{
		ID:        fmt.Sprintf("%s/%s#%d", owner, repo, pr.GetNumber()),
		Kind:      domain.KindPullRequest,
		Source:    owner + "/" + repo,
		Repo:      repo,
		Actor:     pr.User.GetLogin(),
		Timestamp: createdAt,
		Numbers: map[string]float64{
			"number":    float64(pr.GetNumber()),
			"days_open": daysOpen,
		},
		Texts: map[string]string{
			"title": pr.GetTitle(),
			"body":  pr.GetBody(),
			"state": state,
		},
		Flags: map[string]bool{
			"is_merged": pr.MergedAt != nil,
			"is_closed": closed,
			"is_draft":  pr.GetDraft(),
		},
	}
}

// IssueComments returns a PageFetcher over the repository's issue and PR
// discussion comments created inside the range.
func (s *GitHubSource) IssueComments(owner, repo string, tr domain.TimeRange) PageFetcher {
	return func(ctx context.Context, page int) (*Page, error) {
		sort := "created"
		direction := "asc"
		opts := &github.IssueListCommentsOptions{
			Sort:        &sort,
			Direction:   &direction,
			Since:       &tr.Start,
			ListOptions: github.ListOptions{Page: page, PerPage: perPage},
		}
		comments, resp, err := s.client.Issues.ListComments(ctx, owner, repo, 0, opts)
		if err != nil {
			return nil, mapGitHubError(fmt.Sprintf("list comments for %s/%s", owner, repo), err)
		}

		out := newPage(resp)
		for _, comment := range comments {
			createdAt := comment.GetCreatedAt().Time
			if createdAt.After(tr.End) {
				out.HasMore = false
				break
			}
			body := comment.GetBody()
			out.Records = append(out.Records, domain.Record{
				ID:        fmt.Sprintf("comment-%d", comment.GetID()),
				Kind:      domain.KindComment,
				Source:    owner + "/" + repo,
				Repo:      repo,
				Actor:     comment.GetUser().GetLogin(),
				Timestamp: createdAt,
				Numbers: map[string]float64{
					"body_length": float64(len(body)),
				},
				Texts: map[string]string{
					"body": body,
				},
				Flags: map[string]bool{
					"is_bot_author": strings.HasSuffix(comment.GetUser().GetLogin(), "[bot]"),
				},
			})
		}
		return out, nil
	}
}

// ReviewComments returns a PageFetcher over the repository's pull request
// review comments created inside the range.
func (s *GitHubSource) ReviewComments(owner, repo string, tr domain.TimeRange) PageFetcher {
	return func(ctx context.Context, page int) (*Page, error) {
		opts := &github.PullRequestListCommentsOptions{
			Sort:        "created",
			Direction:   "asc",
			Since:       tr.Start,
			ListOptions: github.ListOptions{Page: page, PerPage: perPage},
		}
		comments, resp, err := s.client.PullRequests.ListComments(ctx, owner, repo, 0, opts)
		if err != nil {
			return nil, mapGitHubError(fmt.Sprintf("list review comments for %s/%s", owner, repo), err)
		}

		out := newPage(resp)
		for _, comment := range comments {
			createdAt := comment.GetCreatedAt().Time
			if createdAt.After(tr.End) {
				out.HasMore = false
				break
			}
			body := comment.GetBody()
			out.Records = append(out.Records, domain.Record{
				ID:        fmt.Sprintf("review-comment-%d", comment.GetID()),
				Kind:      domain.KindReview,
				Source:    owner + "/" + repo,
				Repo:      repo,
				Actor:     comment.GetUser().GetLogin(),
				Timestamp: createdAt,
				Numbers: map[string]float64{
					"body_length": float64(len(body)),
				},
				Texts: map[string]string{
					"body": body,
				},
				Flags: map[string]bool{
					"is_bot_author": strings.HasSuffix(comment.GetUser().GetLogin(), "[bot]"),
				},
			})
		}
		return out, nil
	}
}

// newPage seeds a Page with the response's pagination and rate headers.
func newPage(resp *github.Response) *Page {
	page := &Page{HasMore: resp.NextPage != 0}
	if resp.Rate.Limit > 0 || resp.Rate.Remaining >= 0 {
		page.RateRemaining = resp.Rate.Remaining
		page.RateResetAt = resp.Rate.Reset.Time
	}
	return page
}

// CollectRepository drains commits, pull requests and comments for one
// repository concurrently. All streams share opts.Budget, so the combined
// request pressure respects one allowance. limit bounds each stream
// independently.
func CollectRepository(ctx context.Context, src *GitHubSource, owner, repo string, tr domain.TimeRange, opts Options, limit int) ([]domain.Record, error) {
	if opts.Budget == nil {
		opts.Budget = NewRateBudget(defaultRateAllowance, time.Now().Add(time.Hour))
	}

	fetchers := []PageFetcher{
		src.Commits(owner, repo, tr),
		src.PullRequests(owner, repo, tr),
		src.IssueComments(owner, repo, tr),
		src.ReviewComments(owner, repo, tr),
	}

	results := make([][]domain.Record, len(fetchers))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, fetch := range fetchers {
		i, fetch := i, fetch
		eg.Go(func() error {
			records, err := New(opts).Collect(egCtx, fetch, limit)
			results[i] = records
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		if !opts.AllowPartial {
			return nil, err
		}
		// Keep whatever the surviving streams gathered.
		var partial []domain.Record
		for _, records := range results {
			partial = append(partial, records...)
		}
		return partial, err
	}

	var all []domain.Record
	for _, records := range results {
		all = append(all, records...)
	}
	return all, nil
}

// mapGitHubError translates a go-github error into the taxonomy the
// RetryPolicy classifies.
func mapGitHubError(op string, err error) error {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return apperrors.NewRateLimitedError(
			fmt.Sprintf("%s: rate limit exhausted", op),
			rateErr.Rate.Reset.Time,
		)
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		resetAt := time.Now().Add(time.Minute)
		if abuseErr.RetryAfter != nil {
			resetAt = time.Now().Add(*abuseErr.RetryAfter)
		}
		return apperrors.NewRateLimitedError(
			fmt.Sprintf("%s: secondary rate limit", op),
			resetAt,
		)
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		status := respErr.Response.StatusCode
		switch {
		case status == 401:
			return apperrors.NewUnauthorizedError(
				fmt.Sprintf("%s: credential rejected, check GITHUB_TOKEN", op))
		case status == 403:
			return apperrors.NewForbiddenError(
				fmt.Sprintf("%s: insufficient scope or access denied", op))
		case status == 404:
			return apperrors.NewNotFoundError(op)
		case status >= 500:
			return apperrors.NewTransientError(
				fmt.Sprintf("%s: server error %d", op, status), err)
		}
		return apperrors.NewInternalError(
			fmt.Sprintf("%s: unexpected status %d", op, status), err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.NewTransientError(fmt.Sprintf("%s: timeout", op), err)
	}

	var jsonErr *json.SyntaxError
	if errors.As(err, &jsonErr) {
		return apperrors.NewMalformedError(
			fmt.Sprintf("%s: undecodable response at offset %d", op, jsonErr.Offset), err)
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return apperrors.NewMalformedError(
			fmt.Sprintf("%s: unexpected %s for field %q", op, typeErr.Value, typeErr.Field), err)
	}

	return apperrors.NewTransientError(fmt.Sprintf("%s: request failed", op), err)
}
