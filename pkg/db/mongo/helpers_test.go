package mongo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTimeout(t *testing.T) {
	t.Run("adds deadline when missing", func(t *testing.T) {
		ctx, cancel := WithTimeout(context.Background(), time.Second)
		defer cancel()

		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(time.Second), deadline, 100*time.Millisecond)
	})

	t.Run("keeps the shorter parent deadline", func(t *testing.T) {
		parent, cancelParent := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancelParent()

		ctx, cancel := WithTimeout(parent, time.Hour)
		defer cancel()

		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.True(t, time.Until(deadline) <= 50*time.Millisecond)
	})
}

func TestObjectID(t *testing.T) {
	_, err := ObjectID("not-hex")
	assert.True(t, errors.Is(err, ErrInvalidObjectID))

	oid, err := ObjectID("65f1c0ffee0000000000abcd")
	require.NoError(t, err)
	assert.Equal(t, "65f1c0ffee0000000000abcd", oid.Hex())
}

func TestNowMillis(t *testing.T) {
	in := time.Date(2026, 1, 2, 3, 4, 5, 123456789, time.UTC)
	assert.Equal(t, 123000000, NowMillis(in).Nanosecond())
}
