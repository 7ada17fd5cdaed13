package broadcast

import (
	"context"
	"log/slog"
	"sync"

	"github.com/teemow/mailsense/internal/instrumentation"
	"github.com/teemow/mailsense/internal/logging"
)

// Handler receives published messages.
type Handler func(Message)

// Token identifies a subscription.
type Token uint64

// Bus is the publish/subscribe surface shared by Channel and ValkeyRelay.
type Bus interface {
	Subscribe(h Handler) Token
	Unsubscribe(t Token)
	Publish(ctx context.Context, msg Message)
}

const (
	originLocal  = "local"
	originRemote = "remote"
)

type subscription struct {
	token   Token
	handler Handler
}

// Channel is an in-process Bus. Handlers run synchronously on the publishing
// goroutine, outside the channel lock, so they may subscribe, unsubscribe or
// publish themselves.
type Channel struct {
	mu      sync.Mutex
	next    Token
	subs    []subscription
	active  map[Token]struct{}
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// NewChannel creates a Channel. logger and metrics may be nil.
func NewChannel(logger *slog.Logger, metrics *instrumentation.Metrics) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		active:  make(map[Token]struct{}),
		logger:  logging.WithComponent(logger, "broadcast"),
		metrics: metrics,
	}
}

// Subscribe registers h and returns its token.
func (c *Channel) Subscribe(h Handler) Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.next++
	t := c.next
	// Copy on write: in-flight publishes keep iterating their snapshot.
	subs := make([]subscription, len(c.subs), len(c.subs)+1)
	copy(subs, c.subs)
	c.subs = append(subs, subscription{token: t, handler: h})
	c.active[t] = struct{}{}
	return t
}

// Unsubscribe removes the subscription. Unknown tokens are ignored.
func (c *Channel) Unsubscribe(t Token) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.active[t]; !ok {
		return
	}
	delete(c.active, t)

	subs := make([]subscription, 0, len(c.subs))
	for _, s := range c.subs {
		if s.token != t {
			subs = append(subs, s)
		}
	}
	c.subs = subs
}

// Len returns the number of live subscriptions.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Publish delivers msg to every handler subscribed when Publish was called
// and still subscribed when its turn comes.
func (c *Channel) Publish(ctx context.Context, msg Message) {
	c.deliver(ctx, msg, originLocal)
}

func (c *Channel) deliver(ctx context.Context, msg Message, origin string) {
	c.mu.Lock()
	snapshot := c.subs
	c.mu.Unlock()

	c.metrics.RecordBroadcast(ctx, origin)

	for _, s := range snapshot {
		if !c.live(s.token) {
			continue
		}
		c.invoke(s, msg)
	}
}

func (c *Channel) live(t Token) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.active[t]
	return ok
}

func (c *Channel) invoke(s subscription, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Broadcast handler panicked",
				"token", uint64(s.token),
				"panic", r,
				logging.UserHash(msg.UserID))
		}
	}()
	s.handler(msg)
}
