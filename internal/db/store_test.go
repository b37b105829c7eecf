package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	store := NewStore(database)
	t.Cleanup(func() {
		store.Close()
		database.Close()
	})
	return store
}

func TestSubmitReturnsResult(t *testing.T) {
	store := newTestStore(t)

	got, err := Submit(context.Background(), store, func(db *sql.DB) (int, error) {
		var one int
		if err := db.QueryRow(`SELECT 1`).Scan(&one); err != nil {
			return 0, err
		}
		return one, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestSubmitPropagatesWorkError(t *testing.T) {
	store := newTestStore(t)
	boom := errors.New("boom")

	_, err := Submit(context.Background(), store, func(db *sql.DB) (struct{}, error) {
		return struct{}{}, boom
	})
	assert.ErrorIs(t, err, boom)

	// A failed unit of work must not affect later submissions.
	got, err := Submit(context.Background(), store, func(db *sql.DB) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestSubmitExecutesInSubmissionOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var order []int
	for i := range 20 {
		_, err := Submit(ctx, store, func(db *sql.DB) (struct{}, error) {
			order = append(order, i)
			return struct{}{}, nil
		})
		require.NoError(t, err)
	}
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestSubmitNeverRunsConcurrently(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var active, maxActive int
	done := make(chan struct{})
	for range 8 {
		go func() {
			defer func() { done <- struct{}{} }()
			_, err := Submit(ctx, store, func(db *sql.DB) (struct{}, error) {
				// Only the worker goroutine ever runs work, so no locking is
				// needed to observe the concurrency level.
				active++
				if active > maxActive {
					maxActive = active
				}
				active--
				return struct{}{}, nil
			})
			assert.NoError(t, err)
		}()
	}
	for range 8 {
		<-done
	}
	assert.Equal(t, 1, maxActive)
}

func TestSubmitAfterClose(t *testing.T) {
	store := newTestStore(t)
	store.Close()

	_, err := Submit(context.Background(), store, func(db *sql.DB) (struct{}, error) {
		return struct{}{}, nil
	})
	assert.ErrorIs(t, err, ErrWorkerGone)
}

func TestSubmitCancelledContext(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A full queue plus a cancelled context: the submission must give up
	// rather than block forever. With an idle worker the work may still be
	// accepted, so only the already-cancelled path is asserted here.
	_, err := Submit(ctx, store, func(db *sql.DB) (struct{}, error) {
		return struct{}{}, nil
	})
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}
