package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// GitHubClient represents a client for the GitHub REST API
type GitHubClient struct {
	client     *github.Client
	logger     *zap.Logger
	pageSize   int
	retries    uint64
	retryDelay time.Duration
}

// Option configures a GitHubClient
type Option func(*GitHubClient)

// WithLogger sets the logger used for pagination progress
func WithLogger(logger *zap.Logger) Option {
	return func(c *GitHubClient) { c.logger = logger }
}

// WithFetchPageSize sets the page size for listings, clamped to 1..MaxPageSize
func WithFetchPageSize(size int) Option {
	return func(c *GitHubClient) { c.pageSize = ClampPageSize(size) }
}

// WithFetchRetries enables retries of failed pages
func WithFetchRetries(n uint64, delay time.Duration) Option {
	return func(c *GitHubClient) {
		c.retries = n
		c.retryDelay = delay
	}
}

// NewGitHubClient creates a new GitHub API client
func NewGitHubClient(token string, opts ...Option) *GitHubClient {
	var tc *http.Client

	if token != "" {
		// Create an authenticated client if a token is provided
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: strings.TrimSpace(token)},
		)
		tc = oauth2.NewClient(context.Background(), ts)
	}

	c := &GitHubClient{
		client:     github.NewClient(tc),
		logger:     zap.NewNop(),
		pageSize:   MaxPageSize,
		retryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetBaseURL points the client at another API root, e.g. GitHub Enterprise
func (c *GitHubClient) SetBaseURL(raw string) error {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("failed to parse base URL: %w", err)
	}
	c.client.BaseURL = u
	return nil
}

// ClampPageSize keeps a requested page size inside what GitHub accepts
func ClampPageSize(size int) int {
	if size < 1 || size > MaxPageSize {
		return MaxPageSize
	}
	return size
}

// IssuePager lists a repository's issues. The listing includes pull requests.
func (c *GitHubClient) IssuePager(owner, name, state string) *Pager[*github.Issue] {
	fetch := func(ctx context.Context, cursor string) (Page[*github.Issue], error) {
		opts := &github.IssueListByRepoOptions{
			State:       state,
			ListOptions: c.listOptions(cursor),
		}
		issues, resp, err := c.client.Issues.ListByRepo(ctx, owner, name, opts)
		if err != nil {
			return Page[*github.Issue]{StatusCode: statusCode(resp)}, fmt.Errorf("failed to list issues: %w", err)
		}
		return Page[*github.Issue]{Items: issues, Next: nextCursor(resp), StatusCode: statusCode(resp)}, nil
	}
	return NewPager("issues", fetch, c.logger, c.pagerOptions()...)
}

// ListIssues collects every issue and pull request matching state ("open" or "all")
func (c *GitHubClient) ListIssues(ctx context.Context, owner, name, state string) ([]*github.Issue, FetchStatus) {
	return Collect(ctx, c.IssuePager(owner, name, state))
}

// LabelPager lists the labels defined on a repository, used or not
func (c *GitHubClient) LabelPager(owner, name string) *Pager[*github.Label] {
	fetch := func(ctx context.Context, cursor string) (Page[*github.Label], error) {
		opts := c.listOptions(cursor)
		labels, resp, err := c.client.Issues.ListLabels(ctx, owner, name, &opts)
		if err != nil {
			return Page[*github.Label]{StatusCode: statusCode(resp)}, fmt.Errorf("failed to list labels: %w", err)
		}
		return Page[*github.Label]{Items: labels, Next: nextCursor(resp), StatusCode: statusCode(resp)}, nil
	}
	return NewPager("labels", fetch, c.logger, c.pagerOptions()...)
}

// ListLabels collects every label defined on the repository
func (c *GitHubClient) ListLabels(ctx context.Context, owner, name string) ([]*github.Label, FetchStatus) {
	return Collect(ctx, c.LabelPager(owner, name))
}

// PullRequestPager lists a repository's pull requests
func (c *GitHubClient) PullRequestPager(owner, name, state string) *Pager[*github.PullRequest] {
	fetch := func(ctx context.Context, cursor string) (Page[*github.PullRequest], error) {
		opts := &github.PullRequestListOptions{
			State:       state,
			ListOptions: c.listOptions(cursor),
		}
		prs, resp, err := c.client.PullRequests.List(ctx, owner, name, opts)
		if err != nil {
			return Page[*github.PullRequest]{StatusCode: statusCode(resp)}, fmt.Errorf("failed to list pull requests: %w", err)
		}
		return Page[*github.PullRequest]{Items: prs, Next: nextCursor(resp), StatusCode: statusCode(resp)}, nil
	}
	return NewPager("pull_requests", fetch, c.logger, c.pagerOptions()...)
}

// ListOpenPullRequests collects every open pull request
func (c *GitHubClient) ListOpenPullRequests(ctx context.Context, owner, name string) ([]*github.PullRequest, FetchStatus) {
	return Collect(ctx, c.PullRequestPager(owner, name, "open"))
}

// ListBranches collects every branch of the repository
func (c *GitHubClient) ListBranches(ctx context.Context, owner, name string) ([]*github.Branch, FetchStatus) {
	fetch := func(ctx context.Context, cursor string) (Page[*github.Branch], error) {
		opts := &github.BranchListOptions{ListOptions: c.listOptions(cursor)}
		branches, resp, err := c.client.Repositories.ListBranches(ctx, owner, name, opts)
		if err != nil {
			return Page[*github.Branch]{StatusCode: statusCode(resp)}, fmt.Errorf("failed to list branches: %w", err)
		}
		return Page[*github.Branch]{Items: branches, Next: nextCursor(resp), StatusCode: statusCode(resp)}, nil
	}
	return Collect(ctx, NewPager("branches", fetch, c.logger, c.pagerOptions()...))
}

// LastCommitDate returns the committer date of the newest commit on a branch,
// or nil if the branch has no commits
func (c *GitHubClient) LastCommitDate(ctx context.Context, owner, name, branch string) (*time.Time, error) {
	opts := &github.CommitsListOptions{
		SHA:         branch,
		ListOptions: github.ListOptions{PerPage: 1},
	}
	commits, _, err := c.client.Repositories.ListCommits(ctx, owner, name, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list commits for branch %s: %w", branch, err)
	}
	if len(commits) == 0 {
		return nil, nil
	}
	date := commits[0].GetCommit().GetCommitter().GetDate()
	if date.IsZero() {
		return nil, nil
	}
	t := date.Time.UTC()
	return &t, nil
}

// AddComment adds a comment to an issue or pull request
func (c *GitHubClient) AddComment(ctx context.Context, owner, name string, number int, body string) error {
	comment := &github.IssueComment{Body: github.String(body)}
	if _, _, err := c.client.Issues.CreateComment(ctx, owner, name, number, comment); err != nil {
		return fmt.Errorf("failed to add comment to #%d: %w", number, err)
	}
	return nil
}

// ClosePullRequest closes a pull request without merging it
func (c *GitHubClient) ClosePullRequest(ctx context.Context, owner, name string, number int) error {
	pr := &github.PullRequest{State: github.String("closed")}
	if _, _, err := c.client.PullRequests.Edit(ctx, owner, name, number, pr); err != nil {
		return fmt.Errorf("failed to close PR #%d: %w", number, err)
	}
	return nil
}

// DeleteBranch deletes a branch ref
func (c *GitHubClient) DeleteBranch(ctx context.Context, owner, name, branch string) error {
	if _, err := c.client.Git.DeleteRef(ctx, owner, name, "heads/"+branch); err != nil {
		return fmt.Errorf("failed to delete branch %s: %w", branch, err)
	}
	return nil
}

func (c *GitHubClient) listOptions(cursor string) github.ListOptions {
	page := 0
	if cursor != "" {
		page, _ = strconv.Atoi(cursor)
	}
	return github.ListOptions{PerPage: c.pageSize, Page: page}
}

func (c *GitHubClient) pagerOptions() []PagerOption {
	return []PagerOption{
		WithPageSize(c.pageSize),
		WithRetries(c.retries, c.retryDelay),
		WithRetryable(IsRetryable),
	}
}

// IsRetryable reports whether a failed request is worth repeating: network
// errors, rate limits and 5xx responses are; other 4xx responses are not.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var rateLimitErr *github.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return true
	}
	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		code := respErr.Response.StatusCode
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}
	return true
}

func nextCursor(resp *github.Response) string {
	if resp == nil || resp.NextPage == 0 {
		return ""
	}
	return strconv.Itoa(resp.NextPage)
}

func statusCode(resp *github.Response) int {
	if resp == nil || resp.Response == nil {
		return 0
	}
	return resp.StatusCode
}
