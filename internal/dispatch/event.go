package dispatch

import (
	"context"
	"fmt"

	"github.com/roach88/cogd/internal/ir"
)

// Event is one decoded gateway event.
type Event struct {
	// ID is unique per event. Deliver assigns a UUIDv7 when empty.
	ID string `json:"id,omitempty"`
	// Seq is the dispatcher's logical clock value, assigned by Deliver.
	Seq int64 `json:"seq,omitempty"`
	// Name selects the handlers, e.g. "ping" or "wiki.add".
	Name      string      `json:"name"`
	GuildID   int64       `json:"guild_id,omitempty"`
	ChannelID string      `json:"channel_id,omitempty"`
	AuthorID  string      `json:"author_id,omitempty"`
	Args      []string    `json:"args,omitempty"`
	Payload   ir.IRObject `json:"payload,omitempty"`
}

// Arg returns the i'th argument or "".
func (e Event) Arg(i int) string {
	if i < 0 || i >= len(e.Args) {
		return ""
	}
	return e.Args[i]
}

// Handler processes one event.
type Handler func(ctx context.Context, ev Event) error

// Middleware wraps the handler registered under name.
type Middleware func(name string, next Handler) Handler

// Handle identifies one registration. The zero Handle is invalid.
type Handle struct {
	id   uint64
	name string
}

// Name returns the event name the handle is registered under.
func (h Handle) Name() string { return h.name }

// Valid reports whether h came from Register.
func (h Handle) Valid() bool { return h.id != 0 }

func (h Handle) String() string {
	return fmt.Sprintf("%s#%d", h.name, h.id)
}
