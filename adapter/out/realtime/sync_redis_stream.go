package realtime

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ArchieOS-org/Dispatch-sub000/core/domain"
	"github.com/ArchieOS-org/Dispatch-sub000/core/port/out"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// StreamPrefix namespaces the per-table change streams.
const StreamPrefix = "sync:changes:"

// =============================================================================
// RedisStreamSubscriber
// =============================================================================

// RedisStreamSubscriber tails one Redis stream per table. Each entry holds
// a ChangeEvent JSON document under the "data" field. Reading starts after
// the newest entry present at subscribe time.
type RedisStreamSubscriber struct {
	client *redis.Client
	block  time.Duration
	log    zerolog.Logger
}

func NewRedisStreamSubscriber(client *redis.Client, log zerolog.Logger) *RedisStreamSubscriber {
	return &RedisStreamSubscriber{
		client: client,
		block:  5 * time.Second,
		log:    log.With().Str("component", "redis_stream").Logger(),
	}
}

func StreamKey(table string) string { return StreamPrefix + table }

func (s *RedisStreamSubscriber) Subscribe(ctx context.Context, tables []string, onEvent func(domain.ChangeEvent)) (out.Subscription, error) {
	if err := validateTables(tables); err != nil {
		return nil, err
	}

	cur := newStreamCursor(tables)
	for i, key := range cur.keys {
		last, err := s.lastID(ctx, key)
		if err != nil {
			return nil, err
		}
		cur.ids[i] = last
	}

	loop := func(ctx context.Context) error {
		for {
			streams, err := s.client.XRead(ctx, &redis.XReadArgs{
				Streams: cur.args(),
				Count:   100,
				Block:   s.block,
			}).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return fmt.Errorf("xread: %w", err)
			}
			s.dispatch(cur, streams, onEvent)
		}
	}
	s.log.Info().Strs("tables", tables).Msg("tailing streams")
	return startSubscription(ctx, loop, nil), nil
}

// dispatch advances the cursor past every entry and delivers the ones that
// decode. Malformed entries are skipped but still consumed.
func (s *RedisStreamSubscriber) dispatch(cur *streamCursor, streams []redis.XStream, onEvent func(domain.ChangeEvent)) {
	for _, st := range streams {
		for _, msg := range st.Messages {
			idx, ok := cur.advance(st.Stream, msg.ID)
			if !ok {
				break
			}
			data, ok := msg.Values["data"].(string)
			if !ok {
				continue
			}
			ev, err := decodeEvent([]byte(data), cur.tables[idx])
			if err != nil {
				s.log.Warn().Err(err).Str("id", msg.ID).Msg("dropping malformed entry")
				continue
			}
			onEvent(ev)
		}
	}
}

// streamCursor tracks the last delivered entry id per stream.
type streamCursor struct {
	tables []string
	keys   []string
	ids    []string
}

func newStreamCursor(tables []string) *streamCursor {
	c := &streamCursor{
		tables: tables,
		keys:   make([]string, len(tables)),
		ids:    make([]string, len(tables)),
	}
	for i, t := range tables {
		c.keys[i] = StreamKey(t)
		c.ids[i] = "0-0"
	}
	return c
}

// args lays out XREAD streams: all keys first, then one id per key.
func (c *streamCursor) args() []string {
	return append(slices.Clone(c.keys), c.ids...)
}

// advance records id as the newest entry seen on stream. It reports false
// for a stream the cursor does not track.
func (c *streamCursor) advance(stream, id string) (int, bool) {
	idx := slices.Index(c.keys, stream)
	if idx < 0 {
		return 0, false
	}
	c.ids[idx] = id
	return idx, true
}

// Publish appends ev to its table's stream.
func (s *RedisStreamSubscriber) Publish(ctx context.Context, ev domain.ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey(ev.Table),
		Values: map[string]any{"data": data},
	}).Err()
}

func (s *RedisStreamSubscriber) lastID(ctx context.Context, key string) (string, error) {
	msgs, err := s.client.XRevRangeN(ctx, key, "+", "-", 1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("read stream head %s: %w", key, err)
	}
	if len(msgs) == 0 {
		return "0-0", nil
	}
	return msgs[0].ID, nil
}
