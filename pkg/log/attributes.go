package log

// Model and operation context.
const (
	// ModelNameKey identifies the model type, e.g. "GBModel".
	ModelNameKey = "model.name"

	// OperationKey names the operation: "fit", "predict", "save", "load", "bin".
	OperationKey = "ml.operation"

	// ComponentKey identifies the emitting package, e.g. "gbdt", "parallel".
	ComponentKey = "ml.component"
)

// Data shape.
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	BinsKey     = "data.bins"
	PathKey     = "data.path"
)

// Boosting progress.
const (
	IterationKey    = "training.iteration"
	LearnersKey     = "training.learners"
	SubsampleKey    = "training.subsample"
	LearningRateKey = "training.learning_rate"
	DepthKey        = "tree.depth"
	LeavesKey       = "tree.leaves"
	LossKey         = "metrics.loss"
	LossNameKey     = "metrics.loss_name"
	DurationMsKey   = "perf.duration_ms"
)

// Runtime resources.
const (
	WorkersKey     = "pool.workers"
	ArenaBytesKey  = "arena.bytes"
	FallbacksKey   = "arena.fallbacks"
	SeedKey        = "rng.seed"
	CompressionKey = "io.compression"
)

// Errors.
const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "error.stacktrace"
)
