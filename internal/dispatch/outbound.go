package dispatch

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/roach88/cogd/internal/logging"
)

// Outbound sends messages back to the chat platform.
type Outbound interface {
	Send(ctx context.Context, channelID, text string) error
}

// Reply sends text to the channel ev came from.
func Reply(ctx context.Context, out Outbound, ev Event, text string) error {
	return out.Send(ctx, ev.ChannelID, text)
}

// Message is one recorded outbound message.
type Message struct {
	ChannelID string `json:"channel_id" yaml:"channel_id"`
	Text      string `json:"text" yaml:"text"`
}

// RecordingOutbound keeps every message in memory.
type RecordingOutbound struct {
	mu       sync.Mutex
	messages []Message
}

// NewRecordingOutbound creates an empty recorder.
func NewRecordingOutbound() *RecordingOutbound {
	return &RecordingOutbound{}
}

func (r *RecordingOutbound) Send(_ context.Context, channelID, text string) error {
	r.mu.Lock()
	r.messages = append(r.messages, Message{ChannelID: channelID, Text: text})
	r.mu.Unlock()
	return nil
}

// Messages returns a copy of what was sent so far.
func (r *RecordingOutbound) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Reset forgets every message.
func (r *RecordingOutbound) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
}

// LogOutbound writes messages to a logger. Used when no gateway is
// configured.
type LogOutbound struct {
	Logger *logging.Logger
}

func (l LogOutbound) Send(ctx context.Context, channelID, text string) error {
	l.Logger.Info(ctx, "outbound message", zap.String("channel_id", channelID), zap.String("text", text))
	return nil
}
