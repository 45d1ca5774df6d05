// Package histboost is a histogram-based gradient boosting library for Go.
//
// The library grows regression trees on binned features and combines them
// into an additive model, in the style of LightGBM and XGBoost's "hist"
// method. Training is parallel and deterministic: a fixed seed gives the same
// model on any number of workers.
//
// # Packages
//
//   - core/arena: block allocator for per-tree scratch memory
//   - core/parallel: bounded worker pool with per-worker arenas and futures
//   - core/random: seeded registry of independent random streams
//   - core/model: fitted-state tracking, compression and checksums
//   - preprocessing: quantile and uniform feature binning
//   - sklearn/gbdt: tree builder, boosting loop and model persistence
//   - metrics: regression and classification scores
//   - dataset: CSV loading and train/test splitting
//   - cmd/histboost: command-line trainer and predictor
//
// # Quick Start
//
//	pool, err := parallel.NewPool(parallel.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer pool.Shutdown()
//
//	model, err := gbdt.NewGBModel(gbdt.DefaultParams(), gbdt.Services{Pool: pool})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := model.Fit(X, y); err != nil {
//		log.Fatal(err)
//	}
//	pred, err := model.Predict(XTest)
//
// Fitted models are saved as checksummed JSON, optionally compressed with
// zstd, lz4 or snappy according to the file extension.
package histboost
