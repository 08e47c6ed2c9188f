// Package fanout relays live chat messages between gateway instances over
// Redis pub/sub, so subscribers connected to different processes see the
// same room traffic.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Tyrowin/tourneychat/internal/chat"
	"github.com/Tyrowin/tourneychat/internal/logging"
)

const outboxSize = 256

// Applier receives messages published by other instances.
type Applier interface {
	ApplyRemote(msg chat.LiveMessage) bool
}

// Envelope is the pub/sub payload.
type Envelope struct {
	Origin  string           `json:"origin"`
	Message chat.LiveMessage `json:"message"`
}

// Bus publishes local messages and applies remote ones.
type Bus struct {
	rdb        *redis.Client
	channel    string
	instanceID string
	target     Applier
	logger     *zap.Logger

	outbox    chan chat.LiveMessage
	ready     chan struct{}
	readyOnce sync.Once
}

var _ chat.MessageSink = (*Bus)(nil)

// NewClient parses a redis:// URL and verifies the server is reachable.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("redis url required")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// NewBus creates a bus on channel that applies remote messages to target.
func NewBus(rdb *redis.Client, channel string, target Applier, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = logging.L()
	}
	id := uuid.NewString()
	return &Bus{
		rdb:        rdb,
		channel:    channel,
		instanceID: id,
		target:     target,
		logger:     logger.Named("fanout").With(zap.String("instance_id", id)),
		outbox:     make(chan chat.LiveMessage, outboxSize),
		ready:      make(chan struct{}),
	}
}

// InstanceID identifies this process on the bus.
func (b *Bus) InstanceID() string { return b.instanceID }

// Ready is closed once the subscription is active.
func (b *Bus) Ready() <-chan struct{} { return b.ready }

// Publish queues msg for other instances without blocking.
func (b *Bus) Publish(msg chat.LiveMessage) {
	select {
	case b.outbox <- msg:
	default:
		b.logger.Warn("fanout outbox full, dropping message",
			zap.String("tournament_id", msg.TournamentID),
			zap.String("message_id", msg.ID))
	}
}

// Run subscribes to the channel and pumps the outbox until ctx is done.
func (b *Bus) Run(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.readyOnce.Do(func() { close(b.ready) })
	b.logger.Info("fanout subscribed", zap.String("channel", b.channel))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.publishLoop(ctx)
	}()
	defer wg.Wait()

	incoming := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-incoming:
			if !ok {
				return nil
			}
			b.handle(m.Payload)
		}
	}
}

func (b *Bus) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.outbox:
			raw, err := json.Marshal(Envelope{Origin: b.instanceID, Message: msg})
			if err != nil {
				b.logger.Error("encode fanout envelope", zap.Error(err))
				continue
			}
			if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil && ctx.Err() == nil {
				b.logger.Warn("fanout publish failed",
					zap.String("message_id", msg.ID),
					zap.Error(err))
			}
		}
	}
}

func (b *Bus) handle(payload string) {
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		b.logger.Warn("discarding malformed fanout payload", zap.Error(err))
		return
	}
	if env.Origin == b.instanceID {
		return
	}
	b.target.ApplyRemote(env.Message)
}
