package panicerr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafe(t *testing.T) {
	sentinel := errors.New("boom")

	t.Run("passes through errors", func(t *testing.T) {
		err := Safe(func() error { return sentinel })()
		assert.ErrorIs(t, err, sentinel)
	})

	t.Run("converts panics", func(t *testing.T) {
		err := Safe(func() error { panic("exploded") })()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exploded")
	})

	t.Run("nil on success", func(t *testing.T) {
		assert.NoError(t, Safe(func() error { return nil })())
	})
}

func TestSupervise_RecoversPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		Supervise(context.Background(), "test", func(context.Context) error {
			panic("worker exploded")
		})
	})
}
