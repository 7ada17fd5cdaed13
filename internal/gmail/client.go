package gmail

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/mailsense/internal/instrumentation"
)

const (
	// maxPageSize is the Gmail API list page limit.
	maxPageSize = 100

	// DefaultRequestInterval spaces out message fetches to stay under the
	// per-user quota.
	DefaultRequestInterval = 50 * time.Millisecond
)

// Client wraps the Gmail Users service.
type Client struct {
	svc     *gmail.UsersService
	limiter *rate.Limiter
	metrics *instrumentation.Metrics
}

// NewClient creates a Gmail client. Pass option.WithHTTPClient with an
// authenticated client.
func NewClient(ctx context.Context, metrics *instrumentation.Metrics, opts ...option.ClientOption) (*Client, error) {
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return &Client{
		svc:     svc.Users,
		limiter: rate.NewLimiter(rate.Every(DefaultRequestInterval), 1),
		metrics: metrics,
	}, nil
}

// SetRequestInterval changes the minimum spacing between message fetches.
// Zero disables throttling.
func (c *Client) SetRequestInterval(d time.Duration) {
	if d <= 0 {
		c.limiter.SetLimit(rate.Inf)
		return
	}
	c.limiter.SetLimit(rate.Every(d))
}

// ListMessageIDs lists up to maxResults message ids matching q, making
// multiple API calls if necessary.
func (c *Client) ListMessageIDs(ctx context.Context, q string, maxResults int64) ([]string, error) {
	var ids []string
	pageToken := ""

	for {
		remaining := maxResults - int64(len(ids))
		if remaining <= 0 {
			break
		}
		pageSize := remaining
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}

		req := c.svc.Messages.List("me").Q(q).MaxResults(pageSize).Context(ctx)
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}

		var res *gmail.ListMessagesResponse
		err := instrumentation.TrackExternal(ctx, c.metrics, instrumentation.ServiceGmail, "list",
			func(context.Context) error {
				var err error
				res, err = req.Do()
				return err
			})
		if err != nil {
			return nil, fmt.Errorf("failed to list messages: %w", err)
		}

		for _, m := range res.Messages {
			ids = append(ids, m.Id)
		}

		if res.NextPageToken == "" {
			break
		}
		pageToken = res.NextPageToken
	}

	if int64(len(ids)) > maxResults {
		ids = ids[:maxResults]
	}
	return ids, nil
}

// GetMessage retrieves a full message.
func (c *Client) GetMessage(ctx context.Context, id string) (*gmail.Message, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var msg *gmail.Message
	err := instrumentation.TrackExternal(ctx, c.metrics, instrumentation.ServiceGmail, "get",
		func(ctx context.Context) error {
			var err error
			msg, err = c.svc.Messages.Get("me", id).Format("full").Context(ctx).Do()
			return err
		})
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	return msg, nil
}

// ForeachSent fetches up to maxResults messages matching q and calls fn
// with each one's extracted content. Messages that fail to load are
// skipped; an error from fn stops the iteration.
func (c *Client) ForeachSent(ctx context.Context, q string, maxResults int64, fn func(SentEmail) error) error {
	ids, err := c.ListMessageIDs(ctx, q, maxResults)
	if err != nil {
		return err
	}
	for _, id := range ids {
		msg, err := c.GetMessage(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		if err := fn(FromMessage(msg)); err != nil {
			return err
		}
	}
	return nil
}
