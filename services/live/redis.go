package livesvc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/notification"
)

type envelope struct {
	UserID  string               `json:"userId"`
	Payload notification.Payload `json:"payload"`
}

// RedisBridge publishes payloads on a redis channel; every API instance subscribes
// to it and forwards the payloads to its own hub.
type RedisBridge struct {
	rdb     *redis.Client
	channel string
	hub     *Hub
	logger  core.Logger
}

// OpenRedis connects to the redis server at url and checks the connection.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parsing redis URL")
	}
	rdb := redis.NewClient(opts)
	if err = rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return rdb, nil
}

func NewRedisBridge(rdb *redis.Client, channel string, hub *Hub, logger core.Logger) *RedisBridge {
	return &RedisBridge{rdb: rdb, channel: channel, hub: hub, logger: logger}
}

func (b *RedisBridge) Publish(ctx context.Context, p notification.Payload) error {
	data, err := json.Marshal(envelope{UserID: p.UserID, Payload: p})
	if err != nil {
		return errors.Wrap(err, "marshalling envelope")
	}
	return errors.Wrap(b.rdb.Publish(ctx, b.channel, data).Err(), "publishing to redis")
}

// Run forwards the channel messages to the hub until ctx is done.
func (b *RedisBridge) Run(ctx context.Context) {
	sub := b.rdb.Subscribe(ctx, b.channel)
	//goland:noinspection GoUnhandledErrorResult
	defer sub.Close()

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			b.forward(ctx, msg.Payload)
		}
	}
}

func (b *RedisBridge) forward(ctx context.Context, data string) {
	var env envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		b.logger.Warn(fmt.Sprintf("livesvc.RedisBridge: dropping malformed message: %v", err), err)
		return
	}
	env.Payload.UserID = env.UserID
	if err := b.hub.Publish(ctx, env.Payload); err != nil {
		b.logger.Warn(fmt.Sprintf("livesvc.RedisBridge: %v", err), err)
	}
}
