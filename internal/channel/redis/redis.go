// Package redis is the production channel backend.
//
// Layout under the configured prefix:
//
//	<p>:state:<n>        hash  current, status, lastCalled, lastUpdated
//	<p>:state:<n>        pubsub channel, full state JSON or "reset"
//	<p>:calls            stream of call events
//	<p>:announcements    stream of announcements
//	<p>:video            stream of video control commands
//	<p>:clock            last timestamp handed out, shared by all writes
//
// Writes run as Lua scripts so the timestamp comes from the Redis server and
// every stream entry id is "<timestamp>-0".
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/jwalitptl/clinic-queue/internal/channel"
	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/pkg/metrics"
)

const (
	fieldCurrent     = "current"
	fieldStatus      = "status"
	fieldLastCalled  = "lastCalled"
	fieldLastUpdated = "lastUpdated"
	fieldPayload     = "payload"

	resetNotice = "reset"
)

type Config struct {
	URL          string
	MaxRetries   int
	RetryBackoff time.Duration
	PoolSize     int
	MinIdleConns int
	KeyPrefix    string
	StreamMaxLen int64
	BlockTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "queue"
	}
	if c.StreamMaxLen <= 0 {
		c.StreamMaxLen = 10000
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = 2 * time.Second
	}
}

type Channel struct {
	client  *redis.Client
	cfg     Config
	cb      *gobreaker.CircuitBreaker[any]
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

var _ channel.Channel = (*Channel)(nil)

// New connects to Redis and verifies the connection.
func New(cfg Config, logger zerolog.Logger, m *metrics.Metrics) (*Channel, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.RetryBackoff > 0 {
		opts.MinRetryBackoff = cfg.RetryBackoff
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewWithClient(client, cfg, logger, m), nil
}

// NewWithClient wraps an existing client. The channel owns it from here on.
func NewWithClient(client *redis.Client, cfg Config, logger zerolog.Logger, m *metrics.Metrics) *Channel {
	cfg.setDefaults()
	c := &Channel{
		client:  client,
		cfg:     cfg,
		logger:  logger.With().Str("component", "redis-channel").Logger(),
		metrics: m,
	}
	c.cb = c.newBreaker("redis-channel")
	return c
}

func (c *Channel) newBreaker(name string) *gobreaker.CircuitBreaker[any] {
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			if c.metrics != nil {
				c.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
}

// write runs fn through the breaker and records metrics.
func (c *Channel) write(op string, fn func() error) error {
	start := time.Now()
	_, err := c.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if c.metrics != nil {
		c.metrics.ChannelLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if err != nil {
			c.metrics.ChannelWriteFailure.WithLabelValues(op).Inc()
		}
	}
	return err
}

func (c *Channel) stateKey(clinic int) string {
	return c.cfg.KeyPrefix + ":state:" + strconv.Itoa(clinic)
}

func (c *Channel) callsKey() string         { return c.cfg.KeyPrefix + ":calls" }
func (c *Channel) announcementsKey() string { return c.cfg.KeyPrefix + ":announcements" }
func (c *Channel) videoKey() string         { return c.cfg.KeyPrefix + ":video" }
func (c *Channel) clockKey() string         { return c.cfg.KeyPrefix + ":clock" }

func (c *Channel) State(ctx context.Context, clinic int) (model.QueueState, error) {
	if clinic <= 0 {
		return model.QueueState{}, channel.ErrInvalidClinic
	}
	fields, err := c.client.HGetAll(ctx, c.stateKey(clinic)).Result()
	if err != nil {
		return model.QueueState{}, fmt.Errorf("failed to read queue state: %w", err)
	}
	return decodeState(fields)
}

func decodeState(fields map[string]string) (model.QueueState, error) {
	s := model.NewQueueState()
	if len(fields) == 0 {
		return s, nil
	}

	var err error
	if v, ok := fields[fieldCurrent]; ok {
		if s.Current, err = strconv.Atoi(v); err != nil {
			return s, fmt.Errorf("invalid current %q: %w", v, err)
		}
	}
	if v, ok := fields[fieldStatus]; ok && v != "" {
		s.Status = model.QueueStatus(v)
	}
	if v, ok := fields[fieldLastUpdated]; ok {
		if s.LastUpdated, err = strconv.ParseInt(v, 10, 64); err != nil {
			return s, fmt.Errorf("invalid lastUpdated %q: %w", v, err)
		}
	}
	if v, ok := fields[fieldLastCalled]; ok && v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return s, fmt.Errorf("invalid lastCalled %q: %w", v, err)
		}
		s.LastCalled = &ms
	}
	return s, nil
}

// Commit runs the state write, the log append and the change notification as
// one script. The event's timestamp becomes lastCalled and lastUpdated.
func (c *Channel) Commit(ctx context.Context, m channel.Mutation) (*model.CallEvent, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	args := []interface{}{"0", "0", 0, "", "", "", c.cfg.StreamMaxLen}
	if m.State != nil {
		args[0] = "1"
		args[2] = m.State.Current
		args[3] = string(m.State.Status)
		if m.State.LastCalled != nil {
			args[4] = strconv.FormatInt(*m.State.LastCalled, 10)
		}
	}

	var event *model.CallEvent
	if m.Event != nil {
		e := *m.Event
		e.ID = ""
		e.Timestamp = 0
		payload, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("failed to encode call event: %w", err)
		}
		args[1] = "1"
		args[5] = payload
		event = &e
	}

	var (
		ts int64
		id string
	)
	err := c.write("commit", func() error {
		res, err := commitScript.Run(ctx, c.client,
			[]string{c.clockKey(), c.stateKey(m.Clinic), c.callsKey()}, args...).Result()
		if err != nil {
			return err
		}
		ts, id, err = stamp(res)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to commit queue mutation: %w", err)
	}

	if event == nil {
		return nil, nil
	}
	event.ID = id
	event.Timestamp = ts
	return event, nil
}

func (c *Channel) Announce(ctx context.Context, a model.Announcement) (model.Announcement, error) {
	if err := a.Validate(); err != nil {
		return model.Announcement{}, err
	}
	a.ID = ""
	a.Timestamp = 0

	id, ts, err := c.appendEntry(ctx, "announce", c.announcementsKey(), a)
	if err != nil {
		return model.Announcement{}, err
	}
	a.ID, a.Timestamp = id, ts
	return a, nil
}

func (c *Channel) Control(ctx context.Context, v model.VideoControl) (model.VideoControl, error) {
	if !v.Action.Valid() {
		return model.VideoControl{}, fmt.Errorf("invalid video action %q", v.Action)
	}
	v.ID = ""
	v.Timestamp = 0

	id, ts, err := c.appendEntry(ctx, "video", c.videoKey(), v)
	if err != nil {
		return model.VideoControl{}, err
	}
	v.ID, v.Timestamp = id, ts
	return v, nil
}

func (c *Channel) appendEntry(ctx context.Context, op, stream string, v interface{}) (string, int64, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", 0, fmt.Errorf("failed to encode %s entry: %w", op, err)
	}

	var (
		ts int64
		id string
	)
	err = c.write(op, func() error {
		res, err := appendScript.Run(ctx, c.client,
			[]string{c.clockKey(), stream}, payload, c.cfg.StreamMaxLen).Result()
		if err != nil {
			return err
		}
		ts, id, err = stamp(res)
		return err
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to append %s entry: %w", op, err)
	}
	return id, ts, nil
}

// ResetAll zeroes every listed clinic in one script. Watchers are told to
// re-read because the status field is not touched here.
func (c *Channel) ResetAll(ctx context.Context, clinics []int) error {
	for _, n := range clinics {
		if n <= 0 {
			return channel.ErrInvalidClinic
		}
	}
	if len(clinics) == 0 {
		return nil
	}

	keys := make([]string, 0, len(clinics)+1)
	keys = append(keys, c.clockKey())
	for _, n := range clinics {
		keys = append(keys, c.stateKey(n))
	}
	err := c.write("reset_all", func() error {
		return resetScript.Run(ctx, c.client, keys).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to reset clinics: %w", err)
	}
	return nil
}

func (c *Channel) CallsSince(ctx context.Context, afterID string, limit int) ([]model.CallEvent, error) {
	start := "-"
	if afterID != "" {
		start = "(" + afterID
	}

	var (
		msgs []redis.XMessage
		err  error
	)
	if limit > 0 {
		msgs, err = c.client.XRangeN(ctx, c.callsKey(), start, "+", int64(limit)).Result()
	} else {
		msgs, err = c.client.XRange(ctx, c.callsKey(), start, "+").Result()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read call log: %w", err)
	}

	out := make([]model.CallEvent, 0, len(msgs))
	for _, msg := range msgs {
		var e model.CallEvent
		if err := decodeEntry(msg, &e); err != nil {
			c.logger.Warn().Err(err).Str("id", msg.ID).Msg("skipping unreadable call event")
			continue
		}
		e.ID, e.Timestamp = msg.ID, entryTime(msg.ID)
		out = append(out, e)
	}
	return out, nil
}

func (c *Channel) Trim(ctx context.Context, before time.Time) (int64, error) {
	minID := strconv.FormatInt(before.UnixMilli(), 10)

	var total int64
	for _, key := range []string{c.callsKey(), c.announcementsKey(), c.videoKey()} {
		n, err := c.client.XTrimMinID(ctx, key, minID).Result()
		if err != nil {
			return total, fmt.Errorf("failed to trim %s: %w", key, err)
		}
		total += n
	}
	return total, nil
}

func decodeEntry(msg redis.XMessage, v interface{}) error {
	raw, ok := msg.Values[fieldPayload]
	if !ok {
		return fmt.Errorf("entry %s has no payload", msg.ID)
	}
	var data []byte
	switch p := raw.(type) {
	case string:
		data = []byte(p)
	case []byte:
		data = p
	default:
		return fmt.Errorf("entry %s has payload of type %T", msg.ID, raw)
	}
	return json.Unmarshal(data, v)
}

func (c *Channel) WatchState(ctx context.Context, clinic int) (<-chan model.QueueState, error) {
	if clinic <= 0 {
		return nil, channel.ErrInvalidClinic
	}

	pubsub := c.client.Subscribe(ctx, c.stateKey(clinic))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to clinic %d: %w", clinic, err)
	}

	initial, err := c.State(ctx, clinic)
	if err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	feed := channel.NewFeed[model.QueueState](ctx, func() { _ = pubsub.Close() })
	feed.Push(initial)

	go func() {
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				s, err := c.stateFromNotice(ctx, clinic, msg.Payload)
				if err != nil {
					c.logger.Warn().Err(err).Int("clinic", clinic).Msg("dropping unreadable state notice")
					continue
				}
				feed.Push(s)
			}
		}
	}()

	return feed.Out(), nil
}

func (c *Channel) stateFromNotice(ctx context.Context, clinic int, payload string) (model.QueueState, error) {
	if payload == resetNotice {
		return c.State(ctx, clinic)
	}
	var s model.QueueState
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return s, err
	}
	return s, nil
}

// lastEntryID is the id new readers start after, so they only see later entries.
func (c *Channel) lastEntryID(ctx context.Context, stream string) (string, error) {
	msgs, err := c.client.XRevRangeN(ctx, stream, "+", "-", 1).Result()
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "0-0", nil
	}
	return msgs[0].ID, nil
}

// tail follows stream after lastID with blocking XREAD and hands every entry to emit.
func (c *Channel) tail(ctx context.Context, stream, lastID string, emit func(redis.XMessage)) {
	go func() {
		for ctx.Err() == nil {
			res, err := c.client.XRead(ctx, &redis.XReadArgs{
				Streams: []string{stream, lastID},
				Count:   100,
				Block:   c.cfg.BlockTimeout,
			}).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Warn().Err(err).Str("stream", stream).Msg("stream read failed, retrying")
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return
				}
				continue
			}
			for _, s := range res {
				for _, msg := range s.Messages {
					lastID = msg.ID
					emit(msg)
				}
			}
		}
	}()
}

func (c *Channel) WatchCalls(ctx context.Context) (<-chan model.CallEvent, error) {
	lastID, err := c.lastEntryID(ctx, c.callsKey())
	if err != nil {
		return nil, fmt.Errorf("failed to read call log tail: %w", err)
	}

	feed := channel.NewFeed[model.CallEvent](ctx, nil)
	c.tail(ctx, c.callsKey(), lastID, func(msg redis.XMessage) {
		var v model.CallEvent
		if err := decodeEntry(msg, &v); err != nil {
			c.logger.Warn().Err(err).Str("id", msg.ID).Msg("skipping unreadable call event")
			return
		}
		v.ID, v.Timestamp = msg.ID, entryTime(msg.ID)
		feed.Push(v)
	})
	return feed.Out(), nil
}

func (c *Channel) WatchAnnouncements(ctx context.Context) (<-chan model.Announcement, error) {
	lastID, err := c.lastEntryID(ctx, c.announcementsKey())
	if err != nil {
		return nil, fmt.Errorf("failed to read announcement tail: %w", err)
	}

	feed := channel.NewFeed[model.Announcement](ctx, nil)
	c.tail(ctx, c.announcementsKey(), lastID, func(msg redis.XMessage) {
		var v model.Announcement
		if err := decodeEntry(msg, &v); err != nil {
			c.logger.Warn().Err(err).Str("id", msg.ID).Msg("skipping unreadable announcement")
			return
		}
		v.ID, v.Timestamp = msg.ID, entryTime(msg.ID)
		feed.Push(v)
	})
	return feed.Out(), nil
}

func (c *Channel) WatchControl(ctx context.Context) (<-chan model.VideoControl, error) {
	lastID, err := c.lastEntryID(ctx, c.videoKey())
	if err != nil {
		return nil, fmt.Errorf("failed to read video control tail: %w", err)
	}

	feed := channel.NewFeed[model.VideoControl](ctx, nil)
	c.tail(ctx, c.videoKey(), lastID, func(msg redis.XMessage) {
		var v model.VideoControl
		if err := decodeEntry(msg, &v); err != nil {
			c.logger.Warn().Err(err).Str("id", msg.ID).Msg("skipping unreadable video command")
			return
		}
		v.ID, v.Timestamp = msg.ID, entryTime(msg.ID)
		feed.Push(v)
	})
	return feed.Out(), nil
}

func (c *Channel) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Channel) Close() error {
	return c.client.Close()
}
