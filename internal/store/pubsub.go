package store

import (
	"context"
	"sync"
)

// MemMessage mirrors redis.Message for the in-process pubsub path.
type MemMessage struct {
	Channel string
	Payload string
}

// MemPubSub is a single subscription: a bounded message channel plus the set
// of channels it listens on. Slow consumers drop messages rather than block
// publishers.
type MemPubSub struct {
	channels map[string]bool
	msgChan  chan *MemMessage
	closeCh  chan struct{}
	closed   bool
	mu       sync.RWMutex
}

func newMemPubSub(channels []string) *MemPubSub {
	channelMap := make(map[string]bool, len(channels))
	for _, ch := range channels {
		channelMap[ch] = true
	}
	return &MemPubSub{
		channels: channelMap,
		msgChan:  make(chan *MemMessage, 100),
		closeCh:  make(chan struct{}),
	}
}

func (p *MemPubSub) Channel() <-chan *MemMessage {
	return p.msgChan
}

func (p *MemPubSub) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.closeCh)
		close(p.msgChan)
	}
	return nil
}

func (p *MemPubSub) deliver(msg *MemMessage) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed || !p.channels[msg.Channel] {
		return
	}
	select {
	case p.msgChan <- msg:
	default:
		// full buffer: drop
	}
}

// PubSubHub routes published messages to every live in-process subscription.
type PubSubHub struct {
	subscribers map[string][]*MemPubSub
	mu          sync.RWMutex
}

func NewPubSubHub() *PubSubHub {
	return &PubSubHub{subscribers: make(map[string][]*MemPubSub)}
}

// Subscribe registers a subscription for the given channels. It is detached
// automatically when the context ends or the subscription is closed.
func (h *PubSubHub) Subscribe(ctx context.Context, channels ...string) *MemPubSub {
	pubsub := newMemPubSub(channels)

	h.mu.Lock()
	for _, channel := range channels {
		h.subscribers[channel] = append(h.subscribers[channel], pubsub)
	}
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			pubsub.Close()
		case <-pubsub.closeCh:
		}

		h.mu.Lock()
		defer h.mu.Unlock()
		for _, channel := range channels {
			subs := h.subscribers[channel]
			for i, sub := range subs {
				if sub == pubsub {
					h.subscribers[channel] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			if len(h.subscribers[channel]) == 0 {
				delete(h.subscribers, channel)
			}
		}
	}()

	return pubsub
}

// Publish fans a payload out to every subscriber of a channel.
func (h *PubSubHub) Publish(channel, payload string) {
	h.mu.RLock()
	subs := make([]*MemPubSub, len(h.subscribers[channel]))
	copy(subs, h.subscribers[channel])
	h.mu.RUnlock()

	if len(subs) == 0 {
		return
	}

	msg := &MemMessage{Channel: channel, Payload: payload}
	for _, sub := range subs {
		sub.deliver(msg)
	}
}
