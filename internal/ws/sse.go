package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ParthMishra20/pokedex/internal/ledger"
	"github.com/ParthMishra20/pokedex/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SSEHandler streams marketplace events over Server-Sent Events for clients
// that cannot hold a WebSocket.
type SSEHandler struct {
	cache          *store.Cache
	allowedOrigins []string
	logger         *zap.SugaredLogger
}

func NewSSEHandler(cache *store.Cache, allowedOrigins []string, logger *zap.SugaredLogger) *SSEHandler {
	return &SSEHandler{
		cache:          cache,
		allowedOrigins: allowedOrigins,
		logger:         logger,
	}
}

func (h *SSEHandler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	origin := r.Header.Get("Origin")
	for _, allowed := range h.allowedOrigins {
		if origin == allowed {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			break
		}
	}
	w.Header().Set("Access-Control-Allow-Headers", "Cache-Control")

	topics := parseTopics(r)
	h.logger.Debugw("SSE connection established", "topics", topics)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	channels := mapTopicsToChannels(topics)
	if len(channels) == 0 {
		channels = []string{ledger.ChannelSold, ledger.ChannelListed}
	}

	pubsub := h.cache.Subscribe(ctx, channels...)
	if pubsub != nil {
		defer pubsub.Close()
		h.streamRedis(ctx, w, pubsub)
		return
	}

	if h.cache.IsInMemoryMode() {
		memSub := h.cache.SubscribeInMemory(ctx, channels...)
		if memSub != nil {
			defer memSub.Close()
			h.logger.Debugw("Using in-process pubsub for SSE", "channels", channels)
			h.streamMem(ctx, w, memSub)
			return
		}
	}

	h.logger.Warnw("No pubsub available; SSE updates disabled for this connection")
	h.sendEvent(w, "connected", "SSE connection established (no pubsub)", nil)
}

func parseTopics(r *http.Request) []string {
	topicsParam := r.URL.Query().Get("topics")
	if topicsParam == "" {
		return nil
	}
	return strings.Split(topicsParam, ",")
}

func mapTopicsToChannels(topics []string) []string {
	channels := make([]string, 0)
	for _, topic := range topics {
		switch topic {
		case "mints":
			channels = append(channels, ledger.ChannelMinted)
		case "transfers":
			channels = append(channels, ledger.ChannelTransferred)
		case "listings":
			channels = append(channels, ledger.ChannelListed, ledger.ChannelCancelled)
		case "sales":
			channels = append(channels, ledger.ChannelSold)
		case "admin":
			channels = append(channels, ledger.ChannelFeeUpdated, ledger.ChannelWithdrawn)
		case "events":
			channels = append(channels, eventChannels...)
		}
	}
	return channels
}

func channelToEventType(channel string) string {
	if !strings.HasPrefix(channel, "pdx:events:") {
		return "update"
	}
	return strings.ToLower(strings.TrimPrefix(channel, "pdx:events:")) + "_event"
}

func (h *SSEHandler) sendEvent(w http.ResponseWriter, eventType, id string, data interface{}) {
	if data != nil {
		dataBytes, err := json.Marshal(data)
		if err != nil {
			h.logger.Errorw("Failed to marshal SSE data", "error", err)
			return
		}
		fmt.Fprintf(w, "event: %s\n", eventType)
		fmt.Fprintf(w, "id: %s\n", id)
		fmt.Fprintf(w, "data: %s\n\n", dataBytes)
	} else {
		fmt.Fprintf(w, "event: %s\n", eventType)
		fmt.Fprintf(w, "id: %s\n", id)
		fmt.Fprintf(w, "data: {}\n\n")
	}

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (h *SSEHandler) streamRedis(ctx context.Context, w http.ResponseWriter, pubsub *redis.PubSub) {
	h.sendEvent(w, "connected", "SSE connection established", nil)

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debugw("SSE client disconnected")
			return

		case <-heartbeat.C:
			h.sendEvent(w, "heartbeat", "ping", map[string]interface{}{
				"timestamp": time.Now().Unix(),
			})

		case msg := <-ch:
			if msg == nil {
				continue
			}
			h.forward(w, msg.Channel, msg.Payload)
		}
	}
}

func (h *SSEHandler) streamMem(ctx context.Context, w http.ResponseWriter, sub *store.MemPubSub) {
	h.sendEvent(w, "connected", "SSE connection established (in-memory)", nil)

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debugw("SSE client disconnected")
			return

		case <-heartbeat.C:
			h.sendEvent(w, "heartbeat", "ping", map[string]interface{}{
				"timestamp": time.Now().Unix(),
			})

		case msg := <-ch:
			if msg == nil {
				continue
			}
			h.forward(w, msg.Channel, msg.Payload)
		}
	}
}

func (h *SSEHandler) forward(w http.ResponseWriter, channel, payload string) {
	var data interface{}
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		h.logger.Warnw("Failed to parse message payload", "error", err)
		return
	}
	h.sendEvent(w, channelToEventType(channel), channel, data)
}
