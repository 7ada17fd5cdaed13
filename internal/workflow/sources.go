package workflow

import (
	"context"

	"google.golang.org/api/option"

	"github.com/teemow/mailsense/internal/gmail"
	"github.com/teemow/mailsense/internal/google"
	"github.com/teemow/mailsense/internal/instrumentation"
)

// GmailSource reads sent mail with the user's stored Google token.
type GmailSource struct {
	google  *google.Client
	metrics *instrumentation.Metrics
}

// NewGmailSource returns a MailSource backed by Gmail.
func NewGmailSource(g *google.Client, metrics *instrumentation.Metrics) *GmailSource {
	return &GmailSource{google: g, metrics: metrics}
}

// ForeachSent implements MailSource.
func (s *GmailSource) ForeachSent(ctx context.Context, userID, query string, maxResults int64, fn func(gmail.SentEmail) error) error {
	hc, err := s.google.HTTPClient(ctx, userID)
	if err != nil {
		return err
	}
	client, err := gmail.NewClient(ctx, s.metrics, option.WithHTTPClient(hc))
	if err != nil {
		return err
	}
	return client.ForeachSent(ctx, query, maxResults, fn)
}
