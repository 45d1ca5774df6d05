package errors

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredErrors(t *testing.T) {
	t.Run("DimensionError", func(t *testing.T) {
		err := NewDimensionError("GBModel.Predict", 3, 2, 1)
		var dimErr *DimensionError
		require.True(t, As(err, &dimErr))
		assert.Equal(t, 3, dimErr.Expected)
		assert.Equal(t, 2, dimErr.Got)
		assert.Contains(t, err.Error(), "axis 1 (features)")
	})

	t.Run("NotFittedError", func(t *testing.T) {
		err := NewNotFittedError("GBModel", "Predict")
		var nf *NotFittedError
		require.True(t, As(err, &nf))
		assert.Equal(t, "Predict", nf.Method)
	})

	t.Run("ModelError unwraps", func(t *testing.T) {
		cause := fmt.Errorf("disk full")
		err := NewModelError("Save", "write", cause)
		assert.True(t, Is(err, cause))
		assert.Equal(t, "histboost: Save: write: disk full", err.Error())
	})

	t.Run("stack trace attached", func(t *testing.T) {
		err := NewValueError("GetLossProfile", "unknown loss \"foo\"")
		assert.Contains(t, fmt.Sprintf("%+v", err), "errors_test.go")
	})
}

func TestSentinelsSurviveWrapping(t *testing.T) {
	err := Wrapf(ErrPoolShutdown, "submit shard %d", 3)
	assert.True(t, Is(err, ErrPoolShutdown))
	assert.False(t, Is(err, ErrArenaFreed))
}

func TestMarshalZerologObject(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	logger.Error().Object("error", &ValidationError{ParamName: "max_depth", Reason: "must be >= 1", Value: 0}).Msg("bad param")

	out := buf.String()
	assert.Contains(t, out, `"param_name":"max_depth"`)
	assert.Contains(t, out, `"type":"ValidationError"`)
}

func TestCheckNumericalStability(t *testing.T) {
	nan := 0.0
	nan = nan / nan
	require.NoError(t, CheckNumericalStability("gradients", []float64{1, 2, 3}, 0))

	err := CheckNumericalStability("gradients", []float64{1, nan, 3}, 7)
	var numErr *NumericalInstabilityError
	require.True(t, As(err, &numErr))
	assert.Equal(t, 7, numErr.Iteration)
	assert.Len(t, numErr.Values, 1)
}
