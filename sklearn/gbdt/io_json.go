package gbdt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/YuminosukeSato/histboost/core/model"
	"github.com/YuminosukeSato/histboost/pkg/errors"
	"github.com/YuminosukeSato/histboost/pkg/log"
)

// FormatVersion is the model document version written by Save.
const FormatVersion = 1

// modelDocument is the on-disk form of a fitted GBModel.
type modelDocument struct {
	FormatVersion int     `json:"format_version"`
	Loss          string  `json:"loss"`
	Activation    string  `json:"activation"`
	LearningRate  float64 `json:"learning_rate"`
	NLearners     int     `json:"n_learners"`
	Subsample     float64 `json:"subsample"`
	MaxDepth      int     `json:"max_depth"`
	MinSamples    int     `json:"min_samples"`
	WeightDecay   float64 `json:"weight_decay"`
	RegLambda     float64 `json:"reg_lambda"`
	Gamma         float64 `json:"gamma"`
	NumBins       int     `json:"num_bins"`
	BinStrategy   string  `json:"bin_strategy"`
	NFeatures     int     `json:"n_features"`

	LossHistory []float64 `json:"loss_history,omitempty"`

	// Checksum is the XXH3 digest of the compact encoding of Learners.
	Checksum string          `json:"checksum"`
	Learners json.RawMessage `json:"learners"`
}

// nodeDocument encodes a node. Missing children are written as {}, which
// decodes to a nodeDocument with every field nil.
type nodeDocument struct {
	Split *splitDocument `json:"split,omitempty"`
	Value *float64       `json:"value,omitempty"`
	Left  *nodeDocument  `json:"left,omitempty"`
	Right *nodeDocument  `json:"right,omitempty"`
}

type splitDocument struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
}

func (d *nodeDocument) empty() bool {
	return d == nil || (d.Split == nil && d.Value == nil && d.Left == nil && d.Right == nil)
}

func encodeNode(n *Node) *nodeDocument {
	if n == nil {
		return &nodeDocument{}
	}
	value := n.Value
	doc := &nodeDocument{
		Split: &splitDocument{Feature: n.Split.Feature, Threshold: n.Split.Threshold},
		Value: &value,
	}
	if n.IsLeaf() {
		doc.Split.Feature = -1
		doc.Split.Threshold = 0
		doc.Left, doc.Right = &nodeDocument{}, &nodeDocument{}
		return doc
	}
	doc.Left = encodeNode(n.Left)
	doc.Right = encodeNode(n.Right)
	return doc
}

func decodeNode(d *nodeDocument, nFeatures int) (*Node, error) {
	if d.empty() {
		return nil, nil
	}
	if d.Value == nil {
		return nil, errors.NewValueError("decodeNode", "node without value")
	}
	n := &Node{Split: noSplit(), Value: *d.Value}
	left, err := decodeNode(d.Left, nFeatures)
	if err != nil {
		return nil, err
	}
	right, err := decodeNode(d.Right, nFeatures)
	if err != nil {
		return nil, err
	}
	if left == nil || right == nil {
		return n, nil
	}
	if d.Split == nil || d.Split.Feature < 0 || d.Split.Feature >= nFeatures {
		return nil, errors.NewValueError("decodeNode", "internal node with invalid split feature")
	}
	n.Split.Feature = d.Split.Feature
	n.Split.Threshold = d.Split.Threshold
	n.Left, n.Right = left, right
	return n, nil
}

// encode serializes the fitted model.
func (m *GBModel) encode() ([]byte, error) {
	if err := m.state.RequireFitted("GBModel", "Save"); err != nil {
		return nil, err
	}
	nodes := make([]*nodeDocument, len(m.learners))
	for i, t := range m.learners {
		nodes[i] = encodeNode(t.Root)
	}
	learners, err := json.Marshal(nodes)
	if err != nil {
		return nil, errors.Wrap(err, "encode learners")
	}

	p := m.params
	doc := modelDocument{
		FormatVersion: FormatVersion,
		Loss:          p.Loss,
		Activation:    p.Activation,
		LearningRate:  p.LearningRate,
		NLearners:     len(m.learners),
		Subsample:     p.Subsample,
		MaxDepth:      p.MaxDepth,
		MinSamples:    p.MinSamples,
		WeightDecay:   p.WeightDecay,
		RegLambda:     p.RegLambda,
		Gamma:         p.Gamma,
		NumBins:       p.NumBins,
		BinStrategy:   p.BinStrategy,
		NFeatures:     m.NFeatures(),
		LossHistory:   m.lossHistory,
		Checksum:      model.Checksum(learners),
		Learners:      learners,
	}
	data, err := json.Marshal(doc)
	return data, errors.Wrap(err, "encode model")
}

// decode replaces the model's parameters and trees with those in data.
func (m *GBModel) decode(data []byte) error {
	var doc modelDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.NewModelError("GBModel.Load", "parse", err)
	}
	if doc.FormatVersion != FormatVersion {
		return errors.NewModelError("GBModel.Load", "version",
			errors.Newf("unsupported format_version %d", doc.FormatVersion))
	}
	if doc.NFeatures < 1 {
		return errors.NewValidationError("n_features", "must be >= 1", doc.NFeatures)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, doc.Learners); err != nil {
		return errors.NewModelError("GBModel.Load", "parse learners", err)
	}
	if err := model.VerifyChecksum(compact.Bytes(), doc.Checksum); err != nil {
		return errors.NewModelError("GBModel.Load", "checksum", err)
	}

	var nodes []*nodeDocument
	if err := json.Unmarshal(doc.Learners, &nodes); err != nil {
		return errors.NewModelError("GBModel.Load", "parse learners", err)
	}
	if len(nodes) != doc.NLearners {
		return errors.NewModelError("GBModel.Load", "learners",
			errors.Newf("n_learners is %d but %d trees are stored", doc.NLearners, len(nodes)))
	}

	params := m.params
	params.Loss = doc.Loss
	params.Activation = doc.Activation
	params.LearningRate = doc.LearningRate
	params.NLearners = max(doc.NLearners, 1)
	params.Subsample = doc.Subsample
	params.MaxDepth = doc.MaxDepth
	params.MinSamples = doc.MinSamples
	params.WeightDecay = doc.WeightDecay
	params.RegLambda = doc.RegLambda
	params.Gamma = doc.Gamma
	params.NumBins = doc.NumBins
	params.BinStrategy = doc.BinStrategy
	if err := params.Validate(); err != nil {
		return err
	}

	learners := make([]*TreeBooster, len(nodes))
	for i, nd := range nodes {
		root, err := decodeNode(nd, doc.NFeatures)
		if err != nil {
			return errors.NewModelError("GBModel.Load", fmt.Sprintf("tree %d", i), err)
		}
		if root == nil {
			return errors.NewModelError("GBModel.Load", fmt.Sprintf("tree %d", i), errors.New("empty tree"))
		}
		learners[i] = &TreeBooster{Root: root, Params: params.treeParams(), pool: m.svc.Pool}
	}

	if err := m.configure(params); err != nil {
		return err
	}
	m.learners = learners
	m.lossHistory = doc.LossHistory
	m.state.SetFitted(doc.NFeatures, 0)
	return nil
}

// WriteTo writes the fitted model as uncompressed JSON.
func (m *GBModel) WriteTo(w io.Writer) (int64, error) {
	data, err := m.encode()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), errors.Wrap(err, "write model")
}

// ReadFrom replaces the model with one read from r as written by WriteTo.
func (m *GBModel) ReadFrom(r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return int64(len(data)), errors.Wrap(err, "read model")
	}
	return int64(len(data)), m.decode(data)
}

// Save writes the fitted model to path. The extension selects compression:
// ".zst" zstd, ".lz4" lz4, ".sz" snappy, anything else plain JSON.
func (m *GBModel) Save(path string) error {
	data, err := m.encode()
	if err != nil {
		return err
	}
	if err := model.WriteFile(path, data); err != nil {
		return err
	}
	m.logger.Info("model saved",
		log.OperationKey, "save",
		log.PathKey, path,
		log.CompressionKey, string(model.CompressionFor(path)),
		log.LearnersKey, len(m.learners),
	)
	return nil
}

// Load reads a model saved by Save. The returned model predicts on svc.Pool
// and can be refitted.
func Load(path string, svc Services) (*GBModel, error) {
	data, err := model.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := NewGBModel(DefaultParams(), svc)
	if err != nil {
		return nil, err
	}
	if err := m.decode(data); err != nil {
		return nil, err
	}
	m.logger.Debug("model loaded",
		log.OperationKey, "load",
		log.PathKey, path,
		log.LearnersKey, len(m.learners),
	)
	return m, nil
}
