package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	id, err := NewID[Record](42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id.Int64())
	assert.Equal(t, "42", id.String())
	assert.False(t, id.IsZero())

	// Negative keys are unusual but valid; only zero is rejected.
	neg, err := NewID[Record](-7)
	require.NoError(t, err)
	assert.Equal(t, int64(-7), neg.Int64())

	_, err = NewID[Record](0)
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestIDZeroValue(t *testing.T) {
	var id RecordID
	assert.True(t, id.IsZero())

	_, err := id.Value()
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestIDScan(t *testing.T) {
	var id RevisionID
	require.NoError(t, id.Scan(int64(9)))
	assert.Equal(t, int64(9), id.Int64())

	assert.Error(t, id.Scan(int64(0)))
	assert.Error(t, id.Scan("9"))
}

func TestIDValueRoundTrip(t *testing.T) {
	id, err := NewID[Revision](3)
	require.NoError(t, err)

	v, err := id.Value()
	require.NoError(t, err)

	var got RevisionID
	require.NoError(t, got.Scan(v))
	assert.Equal(t, id, got)
}
