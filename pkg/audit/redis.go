package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/cfgpush/pkg/util"
)

// DefaultStream is the Redis stream key used when none is configured.
const DefaultStream = "cfgpush:audit"

// RedisLogger appends events to a Redis stream, one entry per event with the
// JSON encoding in the "event" field. Stream IDs carry the timestamp, so time
// filters become XRANGE bounds.
type RedisLogger struct {
	client *redis.Client
	ctx    context.Context
	stream string
	maxLen int64
}

// RedisConfig configures the stream backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64 // approximate cap on stream length, 0 for unbounded
}

// NewRedisLogger connects and pings the server.
func NewRedisLogger(cfg RedisConfig) (*RedisLogger, error) {
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	l := &RedisLogger{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		ctx:    context.Background(),
		stream: cfg.Stream,
		maxLen: cfg.MaxLen,
	}

	ctx, cancel := context.WithTimeout(l.ctx, 3*time.Second)
	defer cancel()
	if err := l.client.Ping(ctx).Err(); err != nil {
		l.client.Close()
		return nil, fmt.Errorf("audit redis %s: %w", cfg.Addr, err)
	}
	return l, nil
}

func (l *RedisLogger) Log(event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: l.stream,
		Values: map[string]interface{}{
			"event":  string(data),
			"device": event.Device,
		},
	}
	if l.maxLen > 0 {
		args.MaxLen = l.maxLen
		args.Approx = true
	}
	return l.client.XAdd(l.ctx, args).Err()
}

func (l *RedisLogger) Query(filter Filter) ([]*Event, error) {
	start, end := "-", "+"
	if !filter.StartTime.IsZero() {
		start = strconv.FormatInt(filter.StartTime.UnixMilli(), 10)
	}
	if !filter.EndTime.IsZero() {
		end = strconv.FormatInt(filter.EndTime.UnixMilli(), 10)
	}

	msgs, err := l.client.XRange(l.ctx, l.stream, start, end).Result()
	if err != nil {
		return nil, fmt.Errorf("reading audit stream %s: %w", l.stream, err)
	}

	events := []*Event{}
	for _, msg := range msgs {
		raw, ok := msg.Values["event"].(string)
		if !ok {
			util.Warnf("audit: stream entry %s has no event field", msg.ID)
			continue
		}
		var event Event
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			util.Warnf("audit: skipping malformed stream entry %s: %v", msg.ID, err)
			continue
		}
		if filter.Matches(&event) {
			events = append(events, &event)
		}
	}
	return filter.page(events), nil
}

func (l *RedisLogger) Close() error {
	return l.client.Close()
}
