package storage

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestActor(t *testing.T) *Actor {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	a := StartActor(func(ctx context.Context) (*sql.Conn, error) {
		return db.Conn(ctx)
	}, ActorOptions{})
	require.NoError(t, a.Ready(context.Background()))

	t.Cleanup(func() {
		a.Close()
		db.Close()
	})
	return a
}

func TestActor_RunsRequestsInOrder(t *testing.T) {
	t.Parallel()

	a := newTestActor(t)
	ctx := context.Background()

	require.NoError(t, a.WithConnMut(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `CREATE TABLE seq (n INTEGER)`)
		return err
	}))

	// Submit from one goroutine without waiting, so submission order is known.
	const n = 50
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		req := connRequest{
			ctx: ctx,
			run: func(ctx context.Context, conn *sql.Conn) error {
				_, err := conn.ExecContext(ctx, `INSERT INTO seq (n) VALUES (?)`, i)
				return err
			},
			result: make(chan error, 1),
		}
		a.requests <- req
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- <-req.result
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var got []int
	require.NoError(t, a.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `SELECT n FROM seq ORDER BY rowid`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var v int
			if err := rows.Scan(&v); err != nil {
				return err
			}
			got = append(got, v)
		}
		return rows.Err()
	}))

	require.Len(t, got, n)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestActor_ReadAfterWrite(t *testing.T) {
	t.Parallel()

	a := newTestActor(t)
	ctx := context.Background()

	require.NoError(t, a.WithConnMut(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO kv VALUES ('a', '1')`)
		return err
	}))

	var v string
	require.NoError(t, a.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, `SELECT v FROM kv WHERE k = 'a'`).Scan(&v)
	}))
	assert.Equal(t, "1", v)
}

func TestActor_WithConnMutRollsBackOnError(t *testing.T) {
	t.Parallel()

	a := newTestActor(t)
	ctx := context.Background()

	require.NoError(t, a.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `CREATE TABLE items (name TEXT)`)
		return err
	}))

	boom := errors.New("boom")
	err := a.WithConnMut(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO items VALUES ('x')`); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, a.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&count)
	}))
	assert.Equal(t, 0, count)
}

func TestActor_RecoversPanic(t *testing.T) {
	t.Parallel()

	a := newTestActor(t)
	ctx := context.Background()

	err := a.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		panic("kaboom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")

	// The connection is still usable.
	var one int
	require.NoError(t, a.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, `SELECT 1`).Scan(&one)
	}))
	assert.Equal(t, 1, one)
}

func TestActor_CancelledCallerStillCompletes(t *testing.T) {
	t.Parallel()

	a := newTestActor(t)
	require.NoError(t, a.WithConn(context.Background(), func(ctx context.Context, conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `CREATE TABLE marks (v INTEGER)`)
		return err
	}))

	started := make(chan struct{})
	release := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
			close(started)
			<-release
			_, err := conn.ExecContext(ctx, `INSERT INTO marks VALUES (1)`)
			return err
		})
	}()

	<-started
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
	close(release)

	// FIFO: this request runs after the abandoned one finished.
	var count int
	require.NoError(t, a.WithConn(context.Background(), func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM marks`).Scan(&count)
	}))
	assert.Equal(t, 1, count)
}

func TestActor_CloseIsIdempotentAndFailsLaterCalls(t *testing.T) {
	t.Parallel()

	a := newTestActor(t)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	err := a.WithConn(context.Background(), func(ctx context.Context, conn *sql.Conn) error {
		t.Error("closure must not run after Close")
		return nil
	})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestActor_CloseFailsQueuedRequests(t *testing.T) {
	t.Parallel()

	a := newTestActor(t)

	started := make(chan struct{})
	release := make(chan struct{})
	go a.WithConn(context.Background(), func(ctx context.Context, conn *sql.Conn) error { //nolint:errcheck
		close(started)
		<-release
		return nil
	})
	<-started

	queued := make(chan error, 1)
	go func() {
		queued <- a.WithConn(context.Background(), func(ctx context.Context, conn *sql.Conn) error {
			return nil
		})
	}()

	// Give the second request time to enter the queue.
	time.Sleep(20 * time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- a.Close() }()
	time.Sleep(20 * time.Millisecond)
	close(release)

	require.NoError(t, <-closed)
	err := <-queued
	// The queued request either ran before the close signal was seen or
	// was failed with ErrClosed; it never hangs.
	if err != nil {
		assert.ErrorIs(t, err, ErrClosed)
	}
}

func TestActor_OpenFailure(t *testing.T) {
	t.Parallel()

	openErr := errors.New("disk on fire")
	a := StartActor(func(ctx context.Context) (*sql.Conn, error) {
		return nil, openErr
	}, ActorOptions{})
	defer a.Close()

	require.ErrorIs(t, a.Ready(context.Background()), openErr)

	err := a.WithConn(context.Background(), func(ctx context.Context, conn *sql.Conn) error {
		return nil
	})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, err, openErr)
}

func TestActor_ConcurrentCallers(t *testing.T) {
	t.Parallel()

	a := newTestActor(t)
	ctx := context.Background()

	require.NoError(t, a.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `CREATE TABLE counter (n INTEGER)`)
		return err
	}))

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := a.WithConnMut(ctx, func(ctx context.Context, tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, `INSERT INTO counter VALUES (1)`)
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var count int
	require.NoError(t, a.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM counter`).Scan(&count)
	}))
	assert.Equal(t, workers, count)
}
