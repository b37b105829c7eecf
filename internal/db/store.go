package db

import (
	"context"
	"database/sql"
	"errors"
	"sync"
)

// ErrWorkerGone is returned by Submit when the store worker has exited; all
// pending and future submissions fail with it.
var ErrWorkerGone = errors.New("store worker has stopped")

const workQueueSize = 10

// Store serializes all database access through a single worker goroutine.
// Units of work are executed strictly in submission order and never
// concurrently; each one reports back to its caller over a single-use
// response channel.
type Store struct {
	db   *sql.DB
	work chan func(*sql.DB)
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewStore takes ownership of db and starts the worker. The worker runs until
// Close is called or a unit of work panics.
func NewStore(db *sql.DB) *Store {
	s := &Store{
		db:   db,
		work: make(chan func(*sql.DB), workQueueSize),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Store) run() {
	defer close(s.done)
	for work := range s.work {
		work(s.db)
	}
}

// Close stops the worker after the work already accepted has drained. Mainly
// for tests; in the binary the worker lives for the process lifetime.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.work)
}

func (s *Store) submit(ctx context.Context, work func(*sql.DB)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrWorkerGone
	}
	// Holding the lock across the send keeps Close from closing the channel
	// under us. The queue is bounded, so this can block behind a busy worker.
	defer s.mu.Unlock()
	select {
	case s.work <- work:
		return nil
	case <-s.done:
		return ErrWorkerGone
	case <-ctx.Done():
		return ctx.Err()
	}
}

type submitResult[T any] struct {
	value T
	err   error
}

// Submit enqueues work and blocks until the worker has executed it. Store
// errors from work are propagated to this caller only. If the worker is gone,
// or goes away before executing the work, Submit fails with ErrWorkerGone.
func Submit[T any](ctx context.Context, s *Store, work func(*sql.DB) (T, error)) (T, error) {
	var zero T
	res := make(chan submitResult[T], 1)
	err := s.submit(ctx, func(db *sql.DB) {
		value, err := work(db)
		res <- submitResult[T]{value: value, err: err}
	})
	if err != nil {
		return zero, err
	}
	select {
	case r := <-res:
		return r.value, r.err
	case <-s.done:
		// The worker may have exited right after finishing our work.
		select {
		case r := <-res:
			return r.value, r.err
		default:
		}
		return zero, ErrWorkerGone
	}
}
