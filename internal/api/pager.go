package api

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/wesm/argh/internal/models"
	"go.uber.org/zap"
)

// MaxPageSize is the largest page GitHub will return
const MaxPageSize = 100

// Page is one batch of records plus the cursor for the next request.
// An empty Next means the upstream reported no further page.
type Page[T any] struct {
	Items      []T
	Next       string
	StatusCode int
}

// PageFunc requests the page identified by cursor. The empty cursor is the first page.
type PageFunc[T any] func(ctx context.Context, cursor string) (Page[T], error)

// FetchStatus is the side channel that tells callers whether a fetch ran to
// completion or halted early
type FetchStatus struct {
	Pages   int
	Records int
	Err     error
}

// Truncated reports whether the fetch stopped because a page failed
func (s FetchStatus) Truncated() bool {
	return s.Err != nil
}

// Pager turns a PageFunc into a lazy sequence of records
type Pager[T any] struct {
	name      string
	fetch     PageFunc[T]
	pageSize  int
	retries   uint64
	delay     time.Duration
	retryable func(error) bool
	logger    *zap.Logger
	status    FetchStatus
}

// PagerOption configures a Pager
type PagerOption func(*pagerOptions)

type pagerOptions struct {
	pageSize  int
	retries   uint64
	delay     time.Duration
	retryable func(error) bool
}

// WithPageSize makes the pager stop after a page shorter than size (offset-style pagination)
func WithPageSize(size int) PagerOption {
	return func(o *pagerOptions) { o.pageSize = size }
}

// WithRetries retries a failed page up to n times with exponential backoff starting at delay
func WithRetries(n uint64, delay time.Duration) PagerOption {
	return func(o *pagerOptions) {
		o.retries = n
		o.delay = delay
	}
}

// WithRetryable limits retries to errors the predicate accepts
func WithRetryable(fn func(error) bool) PagerOption {
	return func(o *pagerOptions) { o.retryable = fn }
}

// NewPager creates a pager. name is only used for logging.
func NewPager[T any](name string, fetch PageFunc[T], logger *zap.Logger, opts ...PagerOption) *Pager[T] {
	o := pagerOptions{delay: time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	if o.delay <= 0 {
		o.delay = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pager[T]{
		name:      name,
		fetch:     fetch,
		pageSize:  o.pageSize,
		retries:   o.retries,
		delay:     o.delay,
		retryable: o.retryable,
		logger:    logger,
	}
}

// All yields records page by page. Iteration ends early, without error, when a
// page fails; Status reports why.
func (p *Pager[T]) All(ctx context.Context) iter.Seq[T] {
	return func(yield func(T) bool) {
		p.status = FetchStatus{}
		cursor := ""
		for {
			page, err := p.fetchPage(ctx, cursor)
			if err != nil {
				p.status.Err = p.transportError(cursor, page.StatusCode, err)
				p.logger.Warn("Fetch halted, keeping partial results",
					zap.String("resource", p.name),
					zap.Int("pages", p.status.Pages),
					zap.Int("records", p.status.Records),
					zap.Error(err))
				return
			}

			p.status.Pages++
			p.status.Records += len(page.Items)
			p.logger.Info("Fetched page",
				zap.String("resource", p.name),
				zap.Int("page", p.status.Pages),
				zap.Int("batch", len(page.Items)),
				zap.Int("total", p.status.Records))

			for _, item := range page.Items {
				if !yield(item) {
					return
				}
			}

			if len(page.Items) == 0 || page.Next == "" {
				return
			}
			if p.pageSize > 0 && len(page.Items) < p.pageSize {
				return
			}
			cursor = page.Next
		}
	}
}

// Status returns the outcome of the last iteration
func (p *Pager[T]) Status() FetchStatus {
	return p.status
}

// Collect drains the pager into a slice
func Collect[T any](ctx context.Context, p *Pager[T]) ([]T, FetchStatus) {
	var items []T
	for item := range p.All(ctx) {
		items = append(items, item)
	}
	return items, p.Status()
}

func (p *Pager[T]) fetchPage(ctx context.Context, cursor string) (Page[T], error) {
	var page Page[T]
	backoff := retry.WithMaxRetries(p.retries, retry.NewExponential(p.delay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		page, err = p.fetch(ctx, cursor)
		if err == nil {
			return nil
		}
		if p.retryable != nil && !p.retryable(err) {
			return err
		}
		p.logger.Debug("Page request failed", zap.String("resource", p.name), zap.String("cursor", cursor), zap.Error(err))
		return retry.RetryableError(err)
	})
	return page, err
}

func (p *Pager[T]) transportError(cursor string, status int, err error) error {
	var te *models.TransportError
	if errors.As(err, &te) {
		return te
	}
	return &models.TransportError{Cursor: cursor, StatusCode: status, Err: err}
}
