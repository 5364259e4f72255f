package registry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/config"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/pkg/log"
)

// RedisRegistry keeps the per-room participant set in a Redis set and
// fans envelopes out on a per-room pub/sub channel. Presence keys carry
// a TTL so a crashed instance's participants eventually disappear.
type RedisRegistry struct {
	client         *redis.Client
	channelPrefix  string
	presencePrefix string
	presenceTTL    time.Duration
}

func NewRedisRegistry(cfg config.RedisConfig) (*RedisRegistry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisRegistry{
		client:         client,
		channelPrefix:  cfg.ChannelPrefix,
		presencePrefix: cfg.PresencePrefix,
		presenceTTL:    cfg.PresenceTTL,
	}, nil
}

func (r *RedisRegistry) presenceKey(roomID string) string {
	return fmt.Sprintf("%s:%s", r.presencePrefix, roomID)
}

func (r *RedisRegistry) channel(roomID string) string {
	return fmt.Sprintf("%s:%s", r.channelPrefix, roomID)
}

func (r *RedisRegistry) Join(ctx context.Context, roomID, username string) error {
	key := r.presenceKey(roomID)
	if err := r.client.SAdd(ctx, key, username).Err(); err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}
	if r.presenceTTL > 0 {
		r.client.Expire(ctx, key, r.presenceTTL)
	}

	log.L().Info().Str(log.FieldRoomID, roomID).Str(log.FieldUsername, username).Msg("joined room")
	return nil
}

func (r *RedisRegistry) Leave(ctx context.Context, roomID, username string) error {
	if err := r.client.SRem(ctx, r.presenceKey(roomID), username).Err(); err != nil {
		return fmt.Errorf("failed to leave room: %w", err)
	}

	log.L().Info().Str(log.FieldRoomID, roomID).Str(log.FieldUsername, username).Msg("left room")
	return nil
}

func (r *RedisRegistry) Participants(ctx context.Context, roomID string) ([]string, error) {
	users, err := r.client.SMembers(ctx, r.presenceKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	sort.Strings(users)
	return users, nil
}

func (r *RedisRegistry) Publish(ctx context.Context, roomID string, data []byte) error {
	if err := r.client.Publish(ctx, r.channel(roomID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish to room %s: %w", roomID, err)
	}
	return nil
}

// Subscribe starts a delivery goroutine for the room's channel and
// returns a stop function. deliver runs on that goroutine; envelope
// order within the channel is preserved.
func (r *RedisRegistry) Subscribe(ctx context.Context, roomID string, deliver func(data []byte)) (func(), error) {
	sub := r.client.Subscribe(ctx, r.channel(roomID))

	// Force the subscription to be established before returning, so a
	// publish that races the join is not lost.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe to room %s: %w", roomID, err)
	}

	go func() {
		for msg := range sub.Channel() {
			deliver([]byte(msg.Payload))
		}
	}()

	return func() {
		if err := sub.Close(); err != nil {
			log.L().Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("subscription close failed")
		}
	}, nil
}

func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
