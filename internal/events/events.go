// Package events fans order changes out to live subscribers. Redis pub/sub
// carries them between instances; Local serves a single process.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"storefront/internal/models"
)

type Publisher interface {
	Publish(ctx context.Context, e models.OrderEvent) error
}

// Subscriber delivers events for one order until ctx is done or the
// returned cancel func is called. The channel is closed afterwards.
type Subscriber interface {
	Subscribe(ctx context.Context, orderID string) (<-chan models.OrderEvent, func())
}

type Bus interface {
	Publisher
	Subscriber
}

func channel(orderID string) string {
	return "order:" + orderID
}

// Emit publishes e and logs a failure instead of returning it.
func Emit(ctx context.Context, p Publisher, e models.OrderEvent) {
	if p == nil {
		return
	}
	if err := p.Publish(context.WithoutCancel(ctx), e); err != nil {
		slog.WarnContext(ctx, "publish order event failed", "type", e.Type, "order_id", e.OrderID, "err", err)
	}
}

// --- Redis ---

type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Publish(ctx context.Context, e models.OrderEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, channel(e.OrderID), payload).Err()
}

func (r *Redis) Subscribe(ctx context.Context, orderID string) (<-chan models.OrderEvent, func()) {
	ctx, cancel := context.WithCancel(ctx)
	pubsub := r.client.Subscribe(ctx, channel(orderID))
	out := make(chan models.OrderEvent, 16)

	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var e models.OrderEvent
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					slog.Warn("drop malformed order event", "channel", msg.Channel, "err", err)
					continue
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, cancel
}

// --- Local ---

type Local struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan models.OrderEvent
}

func NewLocal() *Local {
	return &Local{subs: make(map[string]map[int]chan models.OrderEvent)}
}

// Publish never blocks: a subscriber whose buffer is full misses the event.
func (l *Local) Publish(_ context.Context, e models.OrderEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, ch := range l.subs[e.OrderID] {
		select {
		case ch <- e:
		default:
		}
	}
	return nil
}

func (l *Local) Subscribe(ctx context.Context, orderID string) (<-chan models.OrderEvent, func()) {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	ch := make(chan models.OrderEvent, 16)
	if l.subs[orderID] == nil {
		l.subs[orderID] = make(map[int]chan models.OrderEvent)
	}
	l.subs[orderID][id] = ch
	l.mu.Unlock()

	var once sync.Once
	done := make(chan struct{})
	cancel := func() {
		once.Do(func() {
			close(done)
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.subs[orderID], id)
			if len(l.subs[orderID]) == 0 {
				delete(l.subs, orderID)
			}
			close(ch)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return ch, cancel
}
