package changefeed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// channel carries group IDs as message payloads. One channel for the
// whole ledger keeps subscription management to a single PubSub
// connection per process.
const channel = "splitbook.ledger.changes"

// Redis is a Feed backed by Redis pub/sub, for deployments running
// several API replicas against the same store. Local delivery goes
// through an embedded Memory feed; Publish additionally broadcasts to
// the other replicas.
type Redis struct {
	client *redis.Client
	local  *Memory
	cancel context.CancelFunc
	done   chan struct{}
}

var _ Feed = (*Redis)(nil)

// NewRedis connects to Redis and starts the receive loop. The URL is in
// redis://host:port form.
func NewRedis(url string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithCancel(context.Background())
	if err := client.Ping(ctx).Err(); err != nil {
		cancel()
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	f := &Redis{
		client: client,
		local:  NewMemory(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	pubsub := client.Subscribe(ctx, channel)
	go f.receive(ctx, pubsub)
	return f, nil
}

func (f *Redis) receive(ctx context.Context, pubsub *redis.PubSub) {
	defer close(f.done)
	defer pubsub.Close()
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			f.local.Publish(msg.Payload)
		}
	}
}

// Subscribe registers fn for the group's change notifications.
func (f *Redis) Subscribe(groupID string, fn func()) CancelFunc {
	return f.local.Subscribe(groupID, fn)
}

// Publish broadcasts the change to every replica, including this one.
// Delivery is best-effort: a dropped notification only delays the next
// recompute until the following change.
func (f *Redis) Publish(groupID string) {
	if err := f.client.Publish(context.Background(), channel, groupID).Err(); err != nil {
		slog.Warn("changefeed publish failed", "group_id", groupID, "error", err)
	}
}

// Close stops the receive loop and closes the connection.
func (f *Redis) Close() error {
	f.cancel()
	<-f.done
	f.local.Close()
	return f.client.Close()
}
