// Package realtime рассылает снимки корзины и избранного через Redis pub/sub.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/api"
	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

const (
	channelPrefix = "fulfillment:snapshots"
	dialTimeout   = 5 * time.Second
)

var errBusNotInitialized = errors.New("redis snapshot bus not initialized")

// Channel возвращает канал снимков набора покупателя.
func Channel(kind domain.MembershipKind, customerID string) string {
	return fmt.Sprintf("%s:%s:%s", channelPrefix, kind, customerID)
}

// Bus публикует снимки и подписывает клиентов на них.
type Bus struct {
	rdb    *goredis.Client
	logger *log.Entry
}

// Connect подключается к Redis и проверяет соединение.
func Connect(ctx context.Context, addr string, logger *log.Entry) (*Bus, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: dialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewBus(rdb, logger), nil
}

// NewBus оборачивает готовый клиент.
func NewBus(rdb *goredis.Client, logger *log.Entry) *Bus {
	if logger == nil {
		logger = log.WithField("component", "snapshot-bus")
	}
	return &Bus{rdb: rdb, logger: logger}
}

// PublishSnapshot рассылает снимок подписчикам его канала.
func (b *Bus) PublishSnapshot(ctx context.Context, snapshot domain.MembershipSnapshot) error {
	if b == nil || b.rdb == nil {
		return errBusNotInitialized
	}
	raw, err := encode(snapshot)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, Channel(snapshot.Kind, snapshot.CustomerID), raw).Err(); err != nil {
		return domain.NewNetworkError("redis publish", err)
	}
	return nil
}

// Subscription — активная подписка на канал снимков.
type Subscription struct {
	sub    *goredis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

// Close останавливает подписку и ждёт завершения обработчика.
func (s *Subscription) Close() error {
	if s == nil {
		return nil
	}
	s.cancel()
	<-s.done
	return nil
}

// Subscribe доставляет снимки набора в onSnapshot, пока ctx не отменён
// или не вызван Close. Обработчик вызывается из одной горутины.
func (b *Bus) Subscribe(ctx context.Context, kind domain.MembershipKind, customerID string, onSnapshot func(domain.MembershipSnapshot)) (*Subscription, error) {
	if b == nil || b.rdb == nil {
		return nil, errBusNotInitialized
	}
	if onSnapshot == nil {
		return nil, errors.New("snapshot handler is required")
	}

	channel := Channel(kind, customerID)
	sub := b.rdb.Subscribe(ctx, channel)

	// Receive гарантирует, что подписка действительно установлена.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, domain.NewNetworkError("redis subscribe", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	s := &Subscription{sub: sub, cancel: cancel, done: make(chan struct{})}
	logger := b.logger.WithField("channel", channel)

	go func() {
		defer close(s.done)
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				snapshot, err := decode(m.Payload)
				if err != nil {
					logger.WithError(err).Warn("bad snapshot payload")
					continue
				}
				if snapshot.Kind != kind || snapshot.CustomerID != customerID {
					logger.WithField("kind", snapshot.Kind).Warn("snapshot for another set ignored")
					continue
				}
				onSnapshot(snapshot)
			}
		}
	}()

	return s, nil
}

// Ping проверяет доступность Redis.
func (b *Bus) Ping(ctx context.Context) error {
	if b == nil || b.rdb == nil {
		return errBusNotInitialized
	}
	return b.rdb.Ping(ctx).Err()
}

// Close закрывает клиент Redis.
func (b *Bus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}

func encode(snapshot domain.MembershipSnapshot) ([]byte, error) {
	raw, err := json.Marshal(api.FromSnapshot(snapshot))
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return raw, nil
}

func decode(payload string) (domain.MembershipSnapshot, error) {
	var wire api.Snapshot
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return domain.MembershipSnapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if !wire.Kind.Valid() {
		return domain.MembershipSnapshot{}, fmt.Errorf("decode snapshot: unknown set %q", wire.Kind)
	}
	return wire.Domain(), nil
}

var _ domain.SnapshotPublisher = (*Bus)(nil)
