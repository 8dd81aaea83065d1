package ledger

import (
	"context"
	"time"
)

// Pub/sub channels carrying ledger notifications. The ws hub fans these out
// to browser clients.
const (
	ChannelMinted      = "pdx:events:MINT"
	ChannelTransferred = "pdx:events:TRANSFER"
	ChannelListed      = "pdx:events:LIST"
	ChannelSold        = "pdx:events:SALE"
	ChannelCancelled   = "pdx:events:CANCEL"
	ChannelFeeUpdated  = "pdx:events:FEE"
	ChannelWithdrawn   = "pdx:events:WITHDRAW"
)

// Publisher delivers ledger notifications to interested parties. The cache
// layer satisfies this; delivery is best-effort and never affects the
// outcome of the operation that produced the event.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// Event is the notification payload published after a mutation commits.
type Event struct {
	Type      string                 `json:"type"`
	Timestamp int64                  `json:"timestamp"`
	Fields    map[string]interface{} `json:"fields"`
}

func newEvent(eventType string, fields map[string]interface{}) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now().Unix(),
		Fields:    fields,
	}
}

// publish sends an event when a publisher is configured. Errors are
// swallowed by the caller; committed ledger state never depends on fan-out.
func publish(ctx context.Context, p Publisher, channel string, ev Event) error {
	if p == nil {
		return nil
	}
	return p.Publish(ctx, channel, ev)
}
