package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"

	"github.com/teemow/mailsense/internal/logging"
)

// ValkeyRelay extends a local Channel across processes with Valkey pub/sub.
// Local publishes are delivered locally and forwarded; messages from other
// processes are delivered locally only.
type ValkeyRelay struct {
	local   *Channel
	client  valkey.Client
	channel string
	origin  string
	logger  *slog.Logger
}

// NewValkeyRelay creates a relay publishing on "<keyPrefix>session-events".
func NewValkeyRelay(local *Channel, client valkey.Client, keyPrefix string, logger *slog.Logger) *ValkeyRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &ValkeyRelay{
		local:   local,
		client:  client,
		channel: keyPrefix + "session-events",
		origin:  uuid.NewString(),
		logger:  logging.WithComponent(logger, "broadcast.relay"),
	}
}

// Subscribe implements Bus.
func (r *ValkeyRelay) Subscribe(h Handler) Token {
	return r.local.Subscribe(h)
}

// Unsubscribe implements Bus.
func (r *ValkeyRelay) Unsubscribe(t Token) {
	r.local.Unsubscribe(t)
}

// Publish implements Bus. Forwarding failures are logged; local delivery
// always happens.
func (r *ValkeyRelay) Publish(ctx context.Context, msg Message) {
	msg.Origin = r.origin
	r.local.Publish(ctx, msg)

	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Warn("Failed to encode broadcast message", logging.Err(err))
		return
	}
	cmd := r.client.B().Publish().Channel(r.channel).Message(string(data)).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		r.logger.Warn("Failed to forward broadcast message", logging.Err(err), logging.UserHash(msg.UserID))
	}
}

// Run receives messages from other processes until ctx is done.
func (r *ValkeyRelay) Run(ctx context.Context) error {
	cmd := r.client.B().Subscribe().Channel(r.channel).Build()
	err := r.client.Receive(ctx, cmd, func(m valkey.PubSubMessage) {
		r.handleRemote(ctx, []byte(m.Message))
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (r *ValkeyRelay) handleRemote(ctx context.Context, payload []byte) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		r.logger.Warn("Failed to decode relayed message", logging.Err(err))
		return
	}
	if msg.Origin == r.origin {
		return
	}
	r.local.deliver(ctx, msg, originRemote)
}
