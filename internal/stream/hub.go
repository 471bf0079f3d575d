package stream

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	channelPrefix  = "feed:"
	channelSuffix  = ":posts"
	channelPattern = channelPrefix + "*" + channelSuffix
)

// Hub fans new posts out to the websocket clients of each recipient
// identity. With Redis configured, delivery goes through pub/sub so every
// instance reaches its own clients.
type Hub struct {
	redis   *redis.Client
	pubsub  *redis.PubSub
	clients map[int64]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	IdentityID int64
	Send       chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		clients: map[int64]map[*Client]struct{}{},
	}

	if redisClient != nil {
		ctx := context.Background()
		pubsub := redisClient.PSubscribe(ctx, channelPattern)
		if _, err := pubsub.Receive(ctx); err != nil {
			logrus.WithError(err).Warn("redis subscribe failed, delivering in-process only")
			_ = pubsub.Close()
		} else {
			h.pubsub = pubsub
			go h.forward(pubsub.Channel())
		}
	}
	return h
}

func (h *Hub) Register(identityID int64) *Client {
	client := &Client{
		IdentityID: identityID,
		Send:       make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[identityID] == nil {
		h.clients[identityID] = map[*Client]struct{}{}
	}
	h.clients[identityID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if identityClients, ok := h.clients[client.IdentityID]; ok {
		delete(identityClients, client)
		if len(identityClients) == 0 {
			delete(h.clients, client.IdentityID)
		}
	}
	close(client.Send)
}

// Broadcast delivers payload to every client of identityID. Slow clients
// whose buffers are full miss the message.
func (h *Hub) Broadcast(identityID int64, payload []byte) {
	if h.pubsub != nil {
		err := h.redis.Publish(context.Background(), redisChannel(identityID), payload).Err()
		if err == nil {
			return
		}
		logrus.WithError(err).WithField("identity_id", identityID).Warn("redis publish failed")
	}
	h.deliver(identityID, payload)
}

// Close stops the Redis subscription, if any.
func (h *Hub) Close() error {
	if h.pubsub == nil {
		return nil
	}
	return h.pubsub.Close()
}

func (h *Hub) deliver(identityID int64, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[identityID] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) forward(messages <-chan *redis.Message) {
	for msg := range messages {
		identityID, ok := identityIDFromChannel(msg.Channel)
		if !ok {
			continue
		}
		h.deliver(identityID, []byte(msg.Payload))
	}
}

func redisChannel(identityID int64) string {
	return channelPrefix + strconv.FormatInt(identityID, 10) + channelSuffix
}

func identityIDFromChannel(ch string) (int64, bool) {
	if !strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return 0, false
	}
	raw := ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
