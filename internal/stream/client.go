// Package stream wraps the Redis Stream that decouples ingestion from
// analytics. Producers XADD with approximate trimming; consumers read through
// a consumer group and ack only after the session is persisted.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/snarelab/hivetrace/internal/config"
)

// payloadField is the stream entry field holding the raw session JSON.
const payloadField = "data"

const publishTimeout = 2 * time.Second

// Entry is one delivered stream message.
type Entry struct {
	ID      string
	Payload []byte
}

// Client talks to the session stream. Safe for concurrent use.
type Client struct {
	rdb     *redis.Client
	stream  string
	maxLen  int64
	breaker *gobreaker.CircuitBreaker
}

// New connects a client for the configured stream. The circuit breaker trips
// after repeated publish failures so a dead broker fails requests fast
// instead of stacking up 2s timeouts.
func New(cfg config.RedisConfig) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "stream-publish",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		Timeout: 10 * time.Second,
	})

	return &Client{rdb: rdb, stream: cfg.Stream, maxLen: cfg.MaxLen, breaker: breaker}
}

// Ping reports broker reachability.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("stream: ping: %w", err)
	}
	return nil
}

// Publish appends one session payload to the stream, trimming it to roughly
// the configured maximum length.
func (c *Client) Publish(ctx context.Context, payload json.RawMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	id, err := c.breaker.Execute(func() (any, error) {
		return c.rdb.XAdd(ctx, &redis.XAddArgs{
			Stream: c.stream,
			MaxLen: c.maxLen,
			Approx: true,
			Values: map[string]any{payloadField: []byte(payload)},
		}).Result()
	})
	if err != nil {
		return "", fmt.Errorf("stream: publish: %w", err)
	}
	return id.(string), nil
}

// EnsureGroup creates the consumer group at the stream head, creating the
// stream itself if needed. An already-existing group is not an error.
func (c *Client) EnsureGroup(ctx context.Context, group string) error {
	err := c.rdb.XGroupCreateMkStream(ctx, c.stream, group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("stream: create group %s: %w", group, err)
	}
	return nil
}

// ReadBatch blocks up to block for as many as count new entries for this
// consumer. A timeout with no entries returns an empty slice, not an error.
func (c *Client) ReadBatch(ctx context.Context, group, consumer string, count int64, block time.Duration) ([]Entry, error) {
	streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{c.stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stream: read: %w", err)
	}

	var entries []Entry
	for _, s := range streams {
		for _, msg := range s.Messages {
			entries = append(entries, Entry{ID: msg.ID, Payload: payloadOf(msg)})
		}
	}
	return entries, nil
}

// Ack acknowledges processed entries. Call only after the session has been
// persisted; unacked entries are redelivered via Reclaim.
func (c *Client) Ack(ctx context.Context, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.rdb.XAck(ctx, c.stream, group, ids...).Err(); err != nil {
		return fmt.Errorf("stream: ack: %w", err)
	}
	return nil
}

// Reclaim transfers entries pending longer than minIdle from dead consumers
// to this one.
func (c *Client) Reclaim(ctx context.Context, group, consumer string, minIdle time.Duration, count int64) ([]Entry, error) {
	msgs, _, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("stream: reclaim: %w", err)
	}

	entries := make([]Entry, 0, len(msgs))
	for _, msg := range msgs {
		entries = append(entries, Entry{ID: msg.ID, Payload: payloadOf(msg)})
	}
	return entries, nil
}

// Info describes the stream for the ingest /stats endpoint.
type Info struct {
	Length int64            `json:"stream_length"`
	Groups map[string]int64 `json:"stream_groups"`
}

// Stats returns stream length and per-group pending counts.
func (c *Client) Stats(ctx context.Context) (*Info, error) {
	length, err := c.rdb.XLen(ctx, c.stream).Result()
	if err != nil {
		return nil, fmt.Errorf("stream: xlen: %w", err)
	}

	info := &Info{Length: length, Groups: map[string]int64{}}
	groups, err := c.rdb.XInfoGroups(ctx, c.stream).Result()
	if err != nil {
		// No groups yet is fine; the stream may be brand new.
		return info, nil
	}
	for _, g := range groups {
		info.Groups[g.Name] = g.Pending
	}
	return info, nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func payloadOf(msg redis.XMessage) []byte {
	switch v := msg.Values[payloadField].(type) {
	case string:
		return []byte(v)
	case []byte:
		return v
	default:
		return nil
	}
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
