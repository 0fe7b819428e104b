package feed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/brewloyal/api/internal/ws"
	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrFeedDegraded is returned by Run once reconnecting has been given up.
// Clients stay connected and fall back to manual resync.
var ErrFeedDegraded = errors.New("change feed degraded")

// Conn is a dedicated connection that can LISTEN.
type Conn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// Dialer opens a new Conn.
type Dialer func(ctx context.Context) (Conn, error)

// PoolDialer takes a connection out of pool for listening. The connection
// is hijacked so LISTEN state never leaks back into the pool.
func PoolDialer(pool *pgxpool.Pool) Dialer {
	return func(ctx context.Context) (Conn, error) {
		c, err := pool.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire listen conn: %w", err)
		}
		return c.Hijack(), nil
	}
}

// Hub is the part of *ws.Hub the listener pushes to.
type Hub interface {
	BroadcastToRoom(room string, event ws.Event)
	BroadcastAll(event ws.Event)
	ResyncAll(ctx context.Context)
}

// Listener forwards change notifications to websocket rooms.
type Listener struct {
	dial       Dialer
	hub        Hub
	maxRetries uint64
	initial    time.Duration
}

// NewListener creates a Listener that retries a lost connection maxRetries
// times with exponential backoff starting at initial (no jitter).
func NewListener(dial Dialer, hub Hub, maxRetries uint64, initial time.Duration) *Listener {
	return &Listener{dial: dial, hub: hub, maxRetries: maxRetries, initial: initial}
}

// Run listens until ctx is cancelled (returning nil) or reconnecting fails
// (returning ErrFeedDegraded after broadcasting feed.degraded). Every
// reconnect after the first connection broadcasts feed.restored and
// resyncs every room, since changes may have been missed while down.
func (l *Listener) Run(ctx context.Context) error {
	first := true
	for {
		conn, err := l.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("ERROR: change feed gave up after %d retries: %v", l.maxRetries, err)
			l.broadcastAll(ws.EventDegraded, map[string]string{"reason": err.Error()})
			return ErrFeedDegraded
		}

		if first {
			log.Printf("change feed listening on %s", Channel)
		} else {
			log.Printf("change feed reconnected, resyncing %s", Channel)
			l.broadcastAll(ws.EventRestored, map[string]string{"channel": Channel})
			l.hub.ResyncAll(ctx)
		}
		first = false

		err = l.listen(ctx, conn)
		conn.Close(context.Background()) //nolint:errcheck
		if ctx.Err() != nil {
			return nil
		}
		log.Printf("WARN: change feed connection lost: %v", err)
	}
}

// connect dials and issues LISTEN, retrying per the backoff policy.
func (l *Listener) connect(ctx context.Context) (Conn, error) {
	var conn Conn
	attempt := 0
	op := func() error {
		attempt++
		c, err := l.dial(ctx)
		if err != nil {
			return err
		}
		if _, err := c.Exec(ctx, "LISTEN "+Channel); err != nil {
			c.Close(context.Background()) //nolint:errcheck
			return fmt.Errorf("listen: %w", err)
		}
		conn = c
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Printf("WARN: change feed connect attempt %d failed: %v (retrying in %s)", attempt, err, wait)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(l.backOff(), ctx), notify); err != nil {
		return nil, err
	}
	return conn, nil
}

// backOff is the reconnect schedule: initial, 2x initial, 4x initial ...
// for maxRetries waits.
func (l *Listener) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.initial
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Hour
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, l.maxRetries)
}

func (l *Listener) listen(ctx context.Context, conn Conn) error {
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if n.Channel != Channel {
			continue
		}
		l.dispatch(n.Payload)
	}
}

func (l *Listener) dispatch(payload string) {
	c, err := DecodeChange(payload)
	if err != nil {
		log.Printf("WARN: drop change notification: %v", err)
		return
	}
	rooms := Route(c)
	if len(rooms) == 0 {
		return
	}
	ev, err := ws.NewEvent(ws.EventChange, c)
	if err != nil {
		log.Printf("ERROR: encode change event: %v", err)
		return
	}
	for _, room := range rooms {
		l.hub.BroadcastToRoom(room, ev)
	}
}

func (l *Listener) broadcastAll(eventType string, payload any) {
	ev, err := ws.NewEvent(eventType, payload)
	if err != nil {
		log.Printf("ERROR: encode %s event: %v", eventType, err)
		return
	}
	l.hub.BroadcastAll(ev)
}
