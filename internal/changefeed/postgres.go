package changefeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgChannel is the LISTEN/NOTIFY channel shared by every server
// instance; the payload is the group ID that changed.
const pgChannel = "splitbook_ledger_changes"

// Postgres is a Feed that rides the ledger database's LISTEN/NOTIFY,
// avoiding a separate broker when the deployment already runs
// PostgreSQL. Local delivery goes through an embedded Memory feed; the
// dedicated listener connection feeds remote notifications back into it.
type Postgres struct {
	pool   *pgxpool.Pool
	conn   *pgx.Conn
	local  *Memory
	cancel context.CancelFunc
	done   chan struct{}
}

var _ Feed = (*Postgres)(nil)

// NewPostgres opens a dedicated listener connection on top of the
// store's pool and starts the receive loop.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool, databaseURL string) (*Postgres, error) {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open listener connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgChannel); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to listen on %s: %w", pgChannel, err)
	}

	receiveCtx, cancel := context.WithCancel(context.Background())
	f := &Postgres{
		pool:   pool,
		conn:   conn,
		local:  NewMemory(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go f.receive(receiveCtx)
	return f, nil
}

func (f *Postgres) receive(ctx context.Context) {
	defer close(f.done)
	for {
		notification, err := f.conn.WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			slog.Error("changefeed listener stopped", "error", err)
			return
		}
		f.local.Publish(notification.Payload)
	}
}

// Subscribe registers fn for the group's change notifications.
func (f *Postgres) Subscribe(groupID string, fn func()) CancelFunc {
	return f.local.Subscribe(groupID, fn)
}

// Publish broadcasts the change to every instance, including this one.
// Delivery is best-effort: a dropped notification only delays the next
// recompute until the following change.
func (f *Postgres) Publish(groupID string) {
	_, err := f.pool.Exec(context.Background(), "SELECT pg_notify($1, $2)", pgChannel, groupID)
	if err != nil {
		slog.Warn("changefeed publish failed", "group_id", groupID, "error", err)
		// Deliver locally so this instance's watchers still refresh.
		f.local.Publish(groupID)
	}
}

// Close stops the receive loop and releases the listener connection.
// The shared pool is owned by the store and left open.
func (f *Postgres) Close() error {
	f.cancel()
	<-f.done
	f.local.Close()
	return f.conn.Close(context.Background())
}
