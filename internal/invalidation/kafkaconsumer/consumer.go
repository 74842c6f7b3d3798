// Package kafkaconsumer applies tile invalidation events from a Kafka topic
// to the tile loader.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	obs "github.com/mohammed-shakir/edit-recency-cache/internal/core/observability"
	"github.com/mohammed-shakir/edit-recency-cache/internal/invalidation"
	mylog "github.com/mohammed-shakir/edit-recency-cache/internal/logger"
	"github.com/mohammed-shakir/edit-recency-cache/internal/tilegrid"
)

// ErrRejected marks a message that can never be applied (undecodable or
// invalid). The group handler commits past it instead of retrying.
var ErrRejected = errors.New("invalidation message rejected")

// Target is the tile lifecycle owner invalidations are applied to.
type Target interface {
	Invalidate(c tilegrid.Coord) bool
	Refresh(ctx context.Context, c tilegrid.Coord) error
	Retained() []tilegrid.Coord
}

type Options struct {
	Logger   *slog.Logger
	Zerolog  *zerolog.Logger
	Register prometheus.Registerer
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	zlog   *zerolog.Logger
	target Target
	ms     *metricSet
	seq    *seqDedupe

	assigned atomic.Bool
	assignMu sync.RWMutex
	assign   map[int32]struct{}
}

func New(cfg Config, target Target, opts Options) *Consumer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Zerolog == nil {
		nop := zerolog.Nop()
		opts.Zerolog = &nop
	}
	return &Consumer{
		cfg:    cfg,
		logger: opts.Logger,
		zlog:   opts.Zerolog,
		target: target,
		ms:     newMetricSet(opts.Register),
		seq:    newSeqDedupe(cfg.DedupeSize),
		assign: map[int32]struct{}{},
	}
}

// Start consumes invalidation events until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	if !c.cfg.Enabled {
		c.logger.Info("kafka invalidation consumer disabled")
		return nil
	}
	if c.target == nil {
		return errors.New("kafkaconsumer: missing dependency (target)")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() {
		if err := group.Close(); err != nil {
			c.logger.Error("kafka consumer group close", "err", err)
		}
	}()

	handler := &groupHandler{setup: c.onSetup, cleanup: c.onCleanup, process: c.ProcessOne}

	c.logger.Info("kafka invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
			c.logger.Error("consumer error", "err", err)
			c.zlog.Error().Err(err).
				Strs("brokers", c.cfg.Brokers).
				Str("topic", c.cfg.Topic).
				Msg("kafka consumer error")
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil {
			c.logger.Info("kafka invalidation consumer shutting down")
			return nil
		}
	}
}

// Readiness reports whether partitions are assigned, and which.
func (c *Consumer) Readiness() (ready bool, partitions []int32) {
	if !c.assigned.Load() {
		return false, nil
	}
	c.assignMu.RLock()
	defer c.assignMu.RUnlock()
	for p := range c.assign {
		partitions = append(partitions, p)
	}
	return true, partitions
}

func (c *Consumer) onSetup(sess sarama.ConsumerGroupSession) {
	c.assignMu.Lock()
	defer c.assignMu.Unlock()
	c.assign = map[int32]struct{}{}
	for _, parts := range sess.Claims() {
		for _, p := range parts {
			c.assign[p] = struct{}{}
		}
	}
	c.assigned.Store(true)
}

func (c *Consumer) onCleanup(sarama.ConsumerGroupSession) {
	c.assignMu.Lock()
	defer c.assignMu.Unlock()
	c.assigned.Store(false)
	c.assign = map[int32]struct{}{}
}

// process a single invalidation event message
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()
	ctx = mylog.WithComponent(ctx, "kafka_consumer")

	if !msg.Timestamp.IsZero() {
		c.ms.lagGauge.Set(time.Since(msg.Timestamp).Seconds())
	}

	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.observe("unknown", "decode_error", err, time.Since(start))
		mylog.FromContext(ctx, c.zlog).Error().
			Str("kind", "decode").
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("kafka error")
		return fmt.Errorf("%w: json decode: %w", ErrRejected, err)
	}
	if err := ev.Validate(); err != nil {
		c.observe(ev.Op, "invalid", err, time.Since(start))
		mylog.FromContext(ctx, c.zlog).Warn().Err(err).
			Str("kind", "validate").
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("kafka error")
		return fmt.Errorf("%w: validate: %w", ErrRejected, err)
	}

	coords, err := c.coordsForEvent(ev)
	if err != nil {
		c.observe(ev.Op, "invalid", err, time.Since(start))
		return fmt.Errorf("%w: derive tiles: %w", ErrRejected, err)
	}
	if len(coords) == 0 {
		c.observe(ev.Op, "noop", nil, time.Since(start))
		c.logger.Debug("no retained tiles to invalidate (skipping)", "op", ev.Op)
		return nil
	}

	applied, err := c.apply(ctx, ev, coords)
	if err != nil {
		c.observe(ev.Op, "error", err, time.Since(start))
		mylog.FromContext(ctx, c.zlog).Error().Err(err).
			Str("kind", "apply").
			Str("op", ev.Op).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("kafka error")
		return err
	}

	c.observe(ev.Op, "ok", nil, time.Since(start))
	mylog.FromContext(ctx, c.zlog).Info().
		Str("event", "invalidation").
		Str("op", ev.Op).
		Int("tiles", len(coords)).Int("applied", applied).
		Msg("invalidated tiles")
	return nil
}

// coordsForEvent resolves the retained tiles an event targets. Listed tiles
// that are not retained are dropped: no viewport shows them, and a refresh
// must not pull them into the cache.
func (c *Consumer) coordsForEvent(ev invalidation.Event) ([]tilegrid.Coord, error) {
	retained := c.target.Retained()
	if len(ev.Tiles) > 0 {
		listed, err := ev.Coords()
		if err != nil {
			return nil, err
		}
		out := listed[:0]
		for _, tc := range listed {
			if slices.Contains(retained, tc) {
				out = append(out, tc)
			} else {
				c.ms.apply.WithLabelValues(ev.Op + "_absent").Inc()
			}
		}
		return out, nil
	}
	if ev.BBox == nil {
		return nil, errors.New("unsupported event: missing tiles/bbox")
	}
	box := ev.BBox.Model().Bound()
	var out []tilegrid.Coord
	for _, rc := range retained {
		if rc.Tile().Bound().Intersects(box) {
			out = append(out, rc)
		}
	}
	return out, nil
}

func (c *Consumer) apply(ctx context.Context, ev invalidation.Event, coords []tilegrid.Coord) (int, error) {
	applied := 0
	var errs []error
	for _, tc := range coords {
		if ev.Seq > 0 && !c.seq.fresh(tc.String(), ev.Seq) {
			c.ms.apply.WithLabelValues("skip_seq").Inc()
			continue
		}
		switch ev.Op {
		case invalidation.OpDispose:
			if c.target.Invalidate(tc) {
				c.ms.apply.WithLabelValues("dispose").Inc()
			} else {
				c.ms.apply.WithLabelValues("dispose_absent").Inc()
			}
		case invalidation.OpRefresh:
			if err := c.target.Refresh(mylog.WithTile(ctx, tc.String()), tc); err != nil {
				c.ms.apply.WithLabelValues("refresh_error").Inc()
				errs = append(errs, fmt.Errorf("refresh %s: %w", tc, err))
				continue
			}
			c.ms.apply.WithLabelValues("refresh").Inc()
		}
		if ev.Seq > 0 {
			c.seq.mark(tc.String(), ev.Seq)
		}
		applied++
	}
	return applied, errors.Join(errs...)
}

func (c *Consumer) observe(op, outcome string, err error, dur time.Duration) {
	if op == "" {
		op = "unknown"
	}
	if err != nil {
		c.ms.msgs.WithLabelValues("error").Inc()
	} else {
		c.ms.msgs.WithLabelValues("ok").Inc()
	}
	c.ms.proc.WithLabelValues(op).Observe(dur.Seconds())
	obs.IncInvalidation(op, outcome)
}
