package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecover(t *testing.T) {
	t.Run("panic becomes PanicError", func(t *testing.T) {
		fn := func() (err error) {
			defer Recover(&err, "shard task")
			panic("index out of range")
		}

		err := fn()
		var panicErr *PanicError
		require.True(t, As(err, &panicErr))
		assert.Equal(t, "shard task", panicErr.Operation)
		assert.Equal(t, "panic in shard task: index out of range", panicErr.Error())
		assert.NotEmpty(t, panicErr.StackTrace)
	})

	t.Run("no panic leaves error untouched", func(t *testing.T) {
		fn := func() (err error) {
			defer Recover(&err, "noop")
			return nil
		}
		assert.NoError(t, fn())
	})

	t.Run("existing error kept", func(t *testing.T) {
		original := fmt.Errorf("original")
		fn := func() (err error) {
			defer Recover(&err, "op")
			err = original
			panic("boom")
		}

		err := fn()
		var panicErr *PanicError
		require.True(t, As(err, &panicErr))
		assert.Contains(t, fmt.Sprintf("%+v", err), "original")
	})

	t.Run("error panic value unwraps", func(t *testing.T) {
		err := SafeExecute("op", func() error { panic(ErrArenaFreed) })
		assert.True(t, Is(err, ErrArenaFreed))
	})
}

func TestSafeExecute(t *testing.T) {
	assert.NoError(t, SafeExecute("ok", func() error { return nil }))

	want := New("failed")
	assert.Equal(t, want, SafeExecute("fail", func() error { return want }))
}
