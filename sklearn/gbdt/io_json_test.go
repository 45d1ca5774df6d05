package gbdt

import (
	"bytes"
	"encoding/json"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/histboost/pkg/errors"
)

func fittedModel(t *testing.T, svc Services) (*GBModel, *mat.Dense) {
	t.Helper()
	params := DefaultParams()
	params.NLearners = 15
	params.Activation = "identity"
	m, err := NewGBModel(params, svc)
	require.NoError(t, err)
	X, y := randomData(250, 3, 8)
	require.NoError(t, m.Fit(X, y))
	return m, X
}

func TestSaveLoadRoundTrip(t *testing.T) {
	svc := newTestServices(t, 2, 3)
	m, X := fittedModel(t, svc)
	want, err := m.Predict(X)
	require.NoError(t, err)

	dir := t.TempDir()
	for _, name := range []string{"model.json", "model.json.zst", "model.json.lz4", "model.json.sz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, m.Save(path))

			loaded, err := Load(path, svc)
			require.NoError(t, err)
			assert.Equal(t, m.NumTrees(), loaded.NumTrees())
			assert.Equal(t, m.Params().LearningRate, loaded.Params().LearningRate)
			assert.Equal(t, m.LossHistory(), loaded.LossHistory())

			got, err := loaded.Predict(X)
			require.NoError(t, err)
			rows, _ := X.Dims()
			for i := 0; i < rows; i++ {
				assert.InDelta(t, want.At(i, 0), got.At(i, 0), 1e-4, "row %d", i)
			}
		})
	}
}

func TestWriteToWithExtremeFeatureRange(t *testing.T) {
	params := DefaultParams()
	params.NLearners = 3
	params.Subsample = 1
	params.BinStrategy = "uniform"
	m, err := NewGBModel(params, newTestServices(t, 2, 3))
	require.NoError(t, err)

	X, y := linearData(50)
	X.Set(0, 0, -math.MaxFloat64)
	X.Set(49, 0, math.MaxFloat64)
	require.NoError(t, m.Fit(X, y))

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	loaded, err := NewGBModel(DefaultParams(), newTestServices(t, 1, 3))
	require.NoError(t, err)
	_, err = loaded.ReadFrom(&buf)
	require.NoError(t, err)
	assert.Equal(t, m.NumTrees(), loaded.NumTrees())
}

func TestDocumentShape(t *testing.T) {
	m, _ := fittedModel(t, newTestServices(t, 1, 3))
	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	for _, key := range []string{
		"format_version", "loss", "activation", "learning_rate", "n_learners", "subsample",
		"max_depth", "min_samples", "weight_decay", "reg_lambda", "gamma", "num_bins",
		"bin_strategy", "n_features", "checksum", "learners",
	} {
		assert.Contains(t, doc, key)
	}
	learners := doc["learners"].([]interface{})
	require.Len(t, learners, 15)

	// Walk to a leaf: children are empty objects.
	node := learners[0].(map[string]interface{})
	for {
		left := node["left"].(map[string]interface{})
		if len(left) == 0 {
			assert.Empty(t, node["right"])
			split := node["split"].(map[string]interface{})
			assert.Equal(t, float64(-1), split["feature"])
			break
		}
		node = left
	}
}

func TestReadFromDetectsTampering(t *testing.T) {
	svc := newTestServices(t, 1, 3)
	m, _ := fittedModel(t, svc)
	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	doc["checksum"] = json.RawMessage(`"0000000000000000"`)
	tampered, err := json.Marshal(doc)
	require.NoError(t, err)

	fresh, err := NewGBModel(DefaultParams(), svc)
	require.NoError(t, err)
	_, err = fresh.ReadFrom(bytes.NewReader(tampered))
	assert.True(t, errors.Is(err, errors.ErrChecksumMismatch))
	assert.False(t, fresh.IsFitted())

	// An indented copy of an untouched document still verifies.
	var pretty bytes.Buffer
	require.NoError(t, json.Indent(&pretty, buf.Bytes(), "", "  "))
	_, err = fresh.ReadFrom(&pretty)
	require.NoError(t, err)
	assert.True(t, fresh.IsFitted())
	assert.Equal(t, m.NFeatures(), fresh.NFeatures())
}

func TestLoadRejectsBadDocuments(t *testing.T) {
	svc := newTestServices(t, 1, 3)
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"wrong version", `{"format_version": 9, "n_features": 1, "learners": []}`},
		{"no features", `{"format_version": 1, "n_features": 0, "learners": []}`},
		{"count mismatch", `{"format_version": 1, "loss": "MSE", "n_features": 1, "n_learners": 2, "learners": [{"split":{"feature":-1,"threshold":0},"value":1,"left":{},"right":{}}]}`},
		{"split feature out of range", `{"format_version": 1, "loss": "MSE", "n_features": 1, "n_learners": 1, "learning_rate": 0.1, "subsample": 1, "num_bins": 256, "learners": [{"split":{"feature":3,"threshold":0},"value":1,"left":{"value":0,"left":{},"right":{}},"right":{"value":2,"left":{},"right":{}}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewGBModel(DefaultParams(), svc)
			require.NoError(t, err)
			_, err = m.ReadFrom(bytes.NewBufferString(tt.doc))
			assert.Error(t, err)
			assert.False(t, m.IsFitted())
		})
	}
}

func TestSaveUnfitted(t *testing.T) {
	m, err := NewGBModel(DefaultParams(), newTestServices(t, 1, 1))
	require.NoError(t, err)
	err = m.Save(filepath.Join(t.TempDir(), "m.json"))
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))
}
