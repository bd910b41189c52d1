package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/shurcooL/githubv4"
	"github.com/wesm/argh/internal/models"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// GraphQLClient represents a client for the GitHub GraphQL API
type GraphQLClient struct {
	client     *githubv4.Client
	logger     *zap.Logger
	retries    uint64
	retryDelay time.Duration
}

// NewGraphQLClient creates a new GraphQL client
func NewGraphQLClient(token string, logger *zap.Logger) *GraphQLClient {
	src := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: strings.TrimSpace(token)},
	)
	httpClient := oauth2.NewClient(context.Background(), src)
	return newGraphQLClient(githubv4.NewClient(httpClient), logger)
}

// NewEnterpriseGraphQLClient creates a GraphQL client against a custom endpoint
func NewEnterpriseGraphQLClient(endpoint string, httpClient *http.Client, logger *zap.Logger) *GraphQLClient {
	return newGraphQLClient(githubv4.NewEnterpriseClient(endpoint, httpClient), logger)
}

func newGraphQLClient(client *githubv4.Client, logger *zap.Logger) *GraphQLClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GraphQLClient{client: client, logger: logger, retryDelay: time.Second}
}

// SetRetries enables retries of failed pages
func (c *GraphQLClient) SetRetries(n uint64, delay time.Duration) {
	c.retries = n
	c.retryDelay = delay
}

// Discussion represents a GitHub discussion in GraphQL
type Discussion struct {
	Number     githubv4.Int
	Title      githubv4.String
	BodyText   githubv4.String
	URL        githubv4.String
	CreatedAt  githubv4.DateTime
	UpdatedAt  githubv4.DateTime
	IsAnswered *githubv4.Boolean
	Locked     githubv4.Boolean
	Author     *struct {
		Login githubv4.String
	}
	Category struct {
		Name githubv4.String
	}
	Comments struct {
		TotalCount githubv4.Int
	}
	UpvoteCount githubv4.Int
}

type discussionsQuery struct {
	Repository struct {
		Discussions struct {
			Nodes    []Discussion
			PageInfo struct {
				EndCursor   githubv4.String
				HasNextPage githubv4.Boolean
			}
		} `graphql:"discussions(first: $first, after: $after)"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

// DiscussionPager lists a repository's discussions using cursor pagination
func (c *GraphQLClient) DiscussionPager(owner, name string, limit int) *Pager[Discussion] {
	limit = ClampPageSize(limit)
	fetch := func(ctx context.Context, cursor string) (Page[Discussion], error) {
		var after *githubv4.String
		if cursor != "" {
			after = githubv4.NewString(githubv4.String(cursor))
		}
		var query discussionsQuery
		variables := map[string]interface{}{
			"owner": githubv4.String(owner),
			"name":  githubv4.String(name),
			"first": githubv4.Int(limit),
			"after": after,
		}
		if err := c.client.Query(ctx, &query, variables); err != nil {
			return Page[Discussion]{}, fmt.Errorf("failed to query discussions: %w", err)
		}

		discussions := query.Repository.Discussions
		page := Page[Discussion]{Items: discussions.Nodes}
		if bool(discussions.PageInfo.HasNextPage) {
			page.Next = string(discussions.PageInfo.EndCursor)
		}
		return page, nil
	}
	return NewPager("discussions", fetch, c.logger, WithRetries(c.retries, c.retryDelay), WithRetryable(IsRetryableGraphQL))
}

// nonOKStatus starts the error githubv4 returns for a non-200 response
const nonOKStatus = "non-200 OK status code: "

// IsRetryableGraphQL is IsRetryable for githubv4 errors, which carry no typed
// response. Network failures, 429 and 5xx statuses and rate limits are retried.
// Errors reported in the GraphQL payload, such as an unknown repository, are not.
func IsRetryableGraphQL(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := err.Error()
	if strings.Contains(strings.ToLower(msg), "rate limit") {
		return true
	}
	if i := strings.Index(msg, nonOKStatus); i >= 0 {
		var code int
		if _, scanErr := fmt.Sscanf(msg[i+len(nonOKStatus):], "%d", &code); scanErr == nil {
			return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
		}
	}
	return false
}

// ListDiscussions collects every discussion of the repository
func (c *GraphQLClient) ListDiscussions(ctx context.Context, owner, name string, limit int) ([]models.Discussion, FetchStatus) {
	nodes, status := Collect(ctx, c.DiscussionPager(owner, name, limit))
	discussions := make([]models.Discussion, 0, len(nodes))
	for _, node := range nodes {
		discussions = append(discussions, ConvertDiscussion(node))
	}
	return discussions, status
}

// ConvertDiscussion converts a GraphQL discussion to our model
func ConvertDiscussion(d Discussion) models.Discussion {
	out := models.Discussion{
		Number:       int(d.Number),
		Title:        string(d.Title),
		BodyText:     string(d.BodyText),
		URL:          string(d.URL),
		CreatedAt:    d.CreatedAt.Time.UTC(),
		UpdatedAt:    d.UpdatedAt.Time.UTC(),
		Locked:       bool(d.Locked),
		Category:     string(d.Category.Name),
		CommentCount: int(d.Comments.TotalCount),
		UpvoteCount:  int(d.UpvoteCount),
	}
	if d.IsAnswered != nil {
		answered := bool(*d.IsAnswered)
		out.IsAnswered = &answered
	}
	if d.Author != nil {
		login := string(d.Author.Login)
		out.Author = &login
	}
	return out
}
