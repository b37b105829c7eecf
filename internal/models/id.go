package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidID is returned when an external integer cannot be used as an
// identifier, i.e. when it is zero.
var ErrInvalidID = errors.New("invalid id")

// ID is a surrogate key for the entity T. The phantom parameter keeps a
// RevisionID from being passed where a RecordID is expected. The zero value
// is not a valid identifier; construct one with NewID or scan it from the
// database.
type ID[T any] struct {
	value int64
}

// NewID wraps v, rejecting zero.
func NewID[T any](v int64) (ID[T], error) {
	if v == 0 {
		return ID[T]{}, ErrInvalidID
	}
	return ID[T]{value: v}, nil
}

func (id ID[T]) Int64() int64 {
	return id.value
}

func (id ID[T]) IsZero() bool {
	return id.value == 0
}

func (id ID[T]) String() string {
	return strconv.FormatInt(id.value, 10)
}

func (id ID[T]) Value() (driver.Value, error) {
	if id.value == 0 {
		return nil, ErrInvalidID
	}
	return id.value, nil
}

func (id *ID[T]) Scan(src any) error {
	v, ok := src.(int64)
	if !ok {
		return fmt.Errorf("scanning id: unexpected type %T", src)
	}
	if v == 0 {
		return fmt.Errorf("scanning id: %w", ErrInvalidID)
	}
	id.value = v
	return nil
}
