package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrClosed is returned by every operation submitted after the connection
// actor has stopped.
var ErrClosed = errors.New("storage: connection closed")

const (
	// defaultQueueSize bounds the number of requests waiting for the worker.
	defaultQueueSize = 64
)

// Opener opens the connection the actor owns for its whole lifetime.
type Opener func(ctx context.Context) (*sql.Conn, error)

// ActorOptions configures a connection actor.
type ActorOptions struct {
	Logger *slog.Logger

	// QueueSize is the capacity of the request queue. Zero uses the default.
	QueueSize int

	// CheckpointInterval is how often the WAL is checkpointed and truncated.
	// Zero disables the periodic checkpoint.
	CheckpointInterval time.Duration
}

type connRequest struct {
	ctx    context.Context
	run    func(ctx context.Context, conn *sql.Conn) error
	result chan error
}

// Actor serializes all access to one database connection through a single
// worker goroutine. Requests run strictly in submission order.
type Actor struct {
	requests chan connRequest
	closeCh  chan struct{}
	doneCh   chan struct{}
	readyCh  chan struct{}

	logger             *slog.Logger
	checkpointInterval time.Duration

	// Written by the worker before readyCh/doneCh are closed.
	openErr  error
	closeErr error

	closeOnce sync.Once
}

// StartActor spawns the worker, which opens its connection with open.
// Open failures are reported by Ready and by every later call.
func StartActor(open Opener, opts ActorOptions) *Actor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}

	a := &Actor{
		requests:           make(chan connRequest, opts.QueueSize),
		closeCh:            make(chan struct{}),
		doneCh:             make(chan struct{}),
		readyCh:            make(chan struct{}),
		logger:             opts.Logger,
		checkpointInterval: opts.CheckpointInterval,
	}
	go a.loop(open)
	return a
}

// Ready waits until the worker has opened its connection and returns the
// open error, if any.
func (a *Actor) Ready(ctx context.Context) error {
	select {
	case <-a.readyCh:
		return a.openErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WithConn runs fn on the worker against the actor's connection and returns
// its error. fn runs with a context detached from ctx's cancellation: if ctx
// is cancelled the call returns early, but fn still completes on the worker.
func (a *Actor) WithConn(ctx context.Context, fn func(ctx context.Context, conn *sql.Conn) error) error {
	select {
	case <-a.doneCh:
		return a.closedErr()
	case <-a.closeCh:
		return a.closedErr()
	default:
	}

	req := connRequest{
		ctx:    context.WithoutCancel(ctx),
		run:    fn,
		result: make(chan error, 1),
	}

	select {
	case a.requests <- req:
	case <-a.doneCh:
		return a.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.result:
		return err
	case <-a.doneCh:
		// The worker may have answered right before exiting.
		select {
		case err := <-req.result:
			return err
		default:
			return a.closedErr()
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WithConnMut runs fn inside a transaction on the worker. The transaction is
// committed when fn returns nil and rolled back otherwise.
func (a *Actor) WithConnMut(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	return a.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck // no-op after commit

		if err := fn(ctx, tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

// Close stops the worker, fails queued requests with ErrClosed and closes the
// connection. It is safe to call Close multiple times.
func (a *Actor) Close() error {
	a.closeOnce.Do(func() {
		close(a.closeCh)
	})
	<-a.doneCh
	return a.closeErr
}

func (a *Actor) closedErr() error {
	select {
	case <-a.readyCh:
		if a.openErr != nil {
			return fmt.Errorf("%w: %w", ErrClosed, a.openErr)
		}
	default:
	}
	return ErrClosed
}

func (a *Actor) loop(open Opener) {
	defer close(a.doneCh)

	conn, err := open(context.Background())
	if err != nil {
		a.openErr = err
		close(a.readyCh)
		a.drain()
		return
	}
	close(a.readyCh)

	var tick <-chan time.Time
	if a.checkpointInterval > 0 {
		ticker := time.NewTicker(a.checkpointInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-a.closeCh:
			a.drain()
			a.checkpoint(conn)
			a.closeErr = conn.Close()
			return
		default:
		}

		select {
		case req := <-a.requests:
			req.result <- a.run(conn, req)
		case <-tick:
			a.checkpoint(conn)
		case <-a.closeCh:
		}
	}
}

// run executes one request, turning a panic into an error so the worker and
// its connection survive.
func (a *Actor) run(conn *sql.Conn, req connRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("panic in connection closure", "panic", r)
			err = fmt.Errorf("storage: panic in connection closure: %v", r)
		}
	}()
	return req.run(req.ctx, conn)
}

// drain fails every request still waiting in the queue.
func (a *Actor) drain() {
	for {
		select {
		case req := <-a.requests:
			req.result <- a.closedErr()
		default:
			return
		}
	}
}

// checkpoint merges the WAL into the main database and truncates it.
func (a *Actor) checkpoint(conn *sql.Conn) {
	if _, err := conn.ExecContext(context.Background(), "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		a.logger.Warn("WAL checkpoint failed", "error", err)
	}
}
