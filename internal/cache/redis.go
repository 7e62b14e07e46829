// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jason-s-yu/bingo/internal/game"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultAuditList is the Redis list that collects calls and winners for
// offline consumers.
const DefaultAuditList = "bingo_audit"

// ChannelPrefix prefixes the pub/sub channel of every room.
const ChannelPrefix = "bingo:room:"

// ChannelName returns the pub/sub channel for a room code.
func ChannelName(code string) string {
	return ChannelPrefix + code
}

// NewRedisClient connects and pings Redis.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return client, nil
}

// AuditRecord is what lands on the audit list.
type AuditRecord struct {
	Room      string         `json:"room"`
	Epoch     int            `json:"epoch"`
	Type      game.EventType `json:"type"`
	Number    int            `json:"number,omitempty"`
	Seq       int            `json:"seq,omitempty"`
	Winners   []string       `json:"winners,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// RedisBroadcaster mirrors room events onto Redis so other processes can
// follow a room. Broadcast never blocks the room: events are queued and a
// background worker publishes them. When the queue is full the event is
// dropped with a warning.
type RedisBroadcaster struct {
	client    *redis.Client
	ch        chan game.Event
	AuditList string
	log       *logrus.Logger
}

// NewRedisBroadcaster creates a broadcaster with a queue of the given size.
// Call Run to start publishing.
func NewRedisBroadcaster(client *redis.Client, queue int, logger *logrus.Logger) *RedisBroadcaster {
	if queue <= 0 {
		queue = 256
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisBroadcaster{
		client:    client,
		ch:        make(chan game.Event, queue),
		AuditList: DefaultAuditList,
		log:       logger,
	}
}

// Broadcast implements game.Broadcaster.
func (b *RedisBroadcaster) Broadcast(ev game.Event) {
	select {
	case b.ch <- ev:
	default:
		b.log.WithFields(logrus.Fields{"room": ev.Room, "type": ev.Type}).Warn("redis queue full, dropping event")
	}
}

// Run publishes queued events until ctx is cancelled.
func (b *RedisBroadcaster) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.ch:
			if err := b.publish(ctx, ev); err != nil {
				b.log.WithError(err).WithField("room", ev.Room).Warn("redis publish failed")
			}
		}
	}
}

func (b *RedisBroadcaster) publish(ctx context.Context, ev game.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, ChannelName(ev.Room), data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", ChannelName(ev.Room), err)
	}

	rec, ok := auditRecord(ev)
	if !ok {
		return nil
	}
	data, err = json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}
	if err := b.client.RPush(ctx, b.AuditList, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", b.AuditList, err)
	}
	return nil
}

// auditRecord keeps only calls and winner declarations.
func auditRecord(ev game.Event) (AuditRecord, bool) {
	rec := AuditRecord{
		Room:      ev.Room,
		Epoch:     ev.Epoch,
		Type:      ev.Type,
		Timestamp: ev.At.UnixMilli(),
	}
	switch ev.Type {
	case game.EventNumberCalled:
		rec.Number = ev.Number
		rec.Seq = ev.Seq
	case game.EventWinnerDeclared:
		for _, w := range ev.Winners {
			rec.Winners = append(rec.Winners, w.PlayerID.String())
		}
	default:
		return AuditRecord{}, false
	}
	return rec, true
}

// Subscribe follows a room's channel. The returned channel closes once
// ctx ends or stop is called.
func Subscribe(ctx context.Context, client *redis.Client, code string) (<-chan game.Event, func() error) {
	sub := client.Subscribe(ctx, ChannelName(code))
	out := make(chan game.Event, 16)
	go func() {
		defer close(out)
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev game.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logrus.WithError(err).WithField("channel", msg.Channel).Warn("skipping malformed event")
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, sub.Close
}
