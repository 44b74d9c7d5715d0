package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/storybook-backend/internal/platform/logger"
	"github.com/yungbote/storybook-backend/internal/realtime"
)

const defaultChannel = "storybook:sse"

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// envelope is the pub/sub payload. Origin and SentAt only feed logs.
type envelope struct {
	Origin string              `json:"origin"`
	SentAt time.Time           `json:"sent_at"`
	Msg    realtime.SSEMessage `json:"msg"`
}

type redisBus struct {
	log     *logger.Logger
	rdb     goredis.UniversalClient
	channel string
	origin  string
	closed  atomic.Bool
}

func NewRedisBus(log *logger.Logger, cfg RedisConfig) (Bus, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis bus: address is empty")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis bus ping %s: %w", addr, err)
	}
	b := newRedisBus(log, rdb, cfg.Channel)
	b.log.Info("Redis SSE bus connected", "addr", addr, "channel", b.channel, "origin", b.origin)
	return b, nil
}

func newRedisBus(log *logger.Logger, rdb goredis.UniversalClient, channel string) *redisBus {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = defaultChannel
	}
	return &redisBus{
		log:     log.With("component", "RedisSSEBus"),
		rdb:     rdb,
		channel: channel,
		origin:  instanceName(),
	}
}

func instanceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "instance"
	}
	return host + "-" + uuid.NewString()[:8]
}

func (b *redisBus) Publish(ctx context.Context, msg realtime.SSEMessage) error {
	if b.closed.Load() {
		return ErrClosed
	}
	raw, err := encodeEnvelope(b.origin, msg)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// StartForwarder subscribes before returning so no message published after
// it returns is missed.
func (b *redisBus) StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error {
	if onMsg == nil {
		return errors.New("onMsg callback required")
	}
	if b.closed.Load() {
		return ErrClosed
	}
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe %s: %w", b.channel, err)
	}

	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-sub.Channel():
				if !ok || m == nil {
					b.log.Info("Redis SSE subscription ended", "channel", b.channel)
					return
				}
				env, err := decodeEnvelope([]byte(m.Payload))
				if err != nil {
					b.log.Warn("Skipping malformed SSE payload", "channel", b.channel, "error", err)
					continue
				}
				if env.Origin != b.origin && !env.SentAt.IsZero() {
					b.log.Debug("SSE event from peer", "origin", env.Origin, "event", env.Msg.Event, "lag_ms", time.Since(env.SentAt).Milliseconds())
				}
				onMsg(env.Msg)
			}
		}
	}()
	return nil
}

func (b *redisBus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.rdb.Close()
}

func encodeEnvelope(origin string, msg realtime.SSEMessage) ([]byte, error) {
	return json.Marshal(envelope{Origin: origin, SentAt: time.Now().UTC(), Msg: msg})
}

func decodeEnvelope(raw []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, err
	}
	if env.Msg.Channel == "" {
		return envelope{}, errors.New("sse payload has no channel")
	}
	return env, nil
}
