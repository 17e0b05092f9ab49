// Package gateway bridges the chat platform to the dispatcher over NATS.
//
// Inbound events arrive as JSON dispatch.Event values on one subject.
// Replies are published to <reply_subject>.<channel_id> and module
// lifecycle changes to <subject>.lifecycle, where the platform adapter
// picks them up.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/roach88/cogd/internal/dispatch"
	"github.com/roach88/cogd/internal/logging"
	"github.com/roach88/cogd/internal/module"
)

// LifecycleSuffix is appended to the event subject for lifecycle notices.
const LifecycleSuffix = ".lifecycle"

// ErrInvalidChannel means a channel ID cannot be used as a subject token.
var ErrInvalidChannel = errors.New("invalid channel id")

// Deliverer accepts events. *dispatch.Dispatcher implements it.
type Deliverer interface {
	Deliver(ev dispatch.Event) bool
}

// DefaultDrainTimeout bounds how long Stop waits for in-flight messages.
const DefaultDrainTimeout = 5 * time.Second

// Options configures a Bridge.
type Options struct {
	Subject      string
	ReplySubject string
	// DrainTimeout bounds Stop. Zero uses DefaultDrainTimeout.
	DrainTimeout time.Duration
	Logger       *logging.Logger
}

// OutboundMessage is the body published for every reply.
type OutboundMessage struct {
	ChannelID string `json:"channel_id"`
	Text      string `json:"text"`
}

// Ack is the response sent when an inbound message asks for one.
type Ack struct {
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// Bridge moves events and replies between NATS and the dispatcher.
type Bridge struct {
	nc      *nats.Conn
	deliver Deliverer
	opts    Options
	logger  *logging.Logger

	mu  sync.Mutex
	sub *nats.Subscription
}

var _ dispatch.Outbound = (*Bridge)(nil)

// Connect dials NATS with reconnect handling logged through logger.
func Connect(url, name string, logger *logging.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	ctx := context.Background()
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn(ctx, "nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info(ctx, "nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// NewBridge creates a bridge. Nothing is subscribed until Start.
func NewBridge(nc *nats.Conn, deliver Deliverer, opts Options) (*Bridge, error) {
	if nc == nil || deliver == nil {
		return nil, fmt.Errorf("gateway needs a connection and a deliverer")
	}
	if opts.Subject == "" || opts.ReplySubject == "" {
		return nil, fmt.Errorf("gateway needs an event subject and a reply subject")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}
	return &Bridge{
		nc:      nc,
		deliver: deliver,
		opts:    opts,
		logger:  opts.Logger.Named("gateway"),
	}, nil
}

// Start subscribes to the event subject.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub != nil {
		return nil
	}
	sub, err := b.nc.Subscribe(b.opts.Subject, b.onMessage)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.opts.Subject, err)
	}
	b.sub = sub
	b.logger.Info(context.Background(), "gateway subscribed", zap.String("subject", b.opts.Subject))
	return nil
}

// Stop drains the subscription and returns once every message already
// received has been handed to the deliverer, or the drain timeout passes.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	sub := b.sub
	b.sub = nil
	b.mu.Unlock()
	if sub == nil {
		return nil
	}
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("drain %s: %w", b.opts.Subject, err)
	}

	deadline := time.NewTimer(b.opts.DrainTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	for sub.IsValid() {
		select {
		case <-deadline.C:
			return fmt.Errorf("drain %s: not finished after %s", b.opts.Subject, b.opts.DrainTimeout)
		case <-tick.C:
		}
	}
	return nil
}

func (b *Bridge) onMessage(msg *nats.Msg) {
	ctx := context.Background()

	var ev dispatch.Event
	err := json.Unmarshal(msg.Data, &ev)
	if err == nil && ev.Name == "" {
		err = errors.New("event has no name")
	}
	if err != nil {
		b.logger.Warn(ctx, "dropping malformed event", zap.String("subject", msg.Subject), zap.Error(err))
		b.ack(msg, Ack{Error: err.Error()})
		return
	}

	if !b.deliver.Deliver(ev) {
		b.logger.Warn(ctx, "dispatcher stopped, event dropped", zap.String("event", ev.Name))
		b.ack(msg, Ack{Error: dispatch.ErrStopped.Error()})
		return
	}
	b.ack(msg, Ack{Accepted: true})
}

func (b *Bridge) ack(msg *nats.Msg, a Ack) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(a)
	if err != nil {
		return
	}
	if err := msg.Respond(data); err != nil {
		b.logger.Warn(context.Background(), "ack failed", zap.Error(err))
	}
}

// Send publishes text for channelID to <reply_subject>.<channel_id>.
func (b *Bridge) Send(ctx context.Context, channelID, text string) error {
	if !validToken(channelID) {
		return fmt.Errorf("%w: %q", ErrInvalidChannel, channelID)
	}
	data, err := json.Marshal(OutboundMessage{ChannelID: channelID, Text: text})
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}
	subject := b.opts.ReplySubject + "." + channelID
	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish reply: %w", err)
	}
	b.logger.Debug(ctx, "reply published", zap.String("subject", subject))
	return nil
}

// NotifyTransition publishes a module state change. It has the shape of
// a module.Manager transition observer.
func (b *Bridge) NotifyTransition(t module.Transition) {
	data, err := json.Marshal(t)
	if err != nil {
		return
	}
	if err := b.nc.Publish(b.opts.Subject+LifecycleSuffix, data); err != nil {
		b.logger.Warn(context.Background(), "lifecycle notice failed",
			zap.String("module.id", t.ModuleID), zap.Error(err))
	}
}

// validToken reports whether s can be a single NATS subject token.
func validToken(s string) bool {
	return s != "" && !strings.ContainsAny(s, ".*> \t\r\n")
}
