// Package gbdt implements histogram-based gradient-boosted regression trees.
//
// Training bins every feature into at most 256 codes, then grows one tree per
// boosting round on the gradients and hessians of a random subsample. Split
// search builds per-feature (G, H) histograms on a shared worker pool and
// derives the larger child's histogram by subtracting the smaller child's from
// its parent's, so only one child per split is scanned over rows.
//
// Basic usage:
//
//	pool, _ := parallel.NewPool(parallel.DefaultConfig())
//	defer pool.Shutdown()
//
//	params := gbdt.DefaultParams()
//	params.NLearners = 100
//	model, err := gbdt.NewGBModel(params, gbdt.Services{Pool: pool, RNG: random.NewRegistry()})
//	if err != nil {
//		return err
//	}
//	if err := model.Fit(X, y); err != nil {
//		return err
//	}
//	pred, _ := model.Predict(X)
//	_ = model.Save("model.json.zst")
//
// Trained models are deterministic: the same seed, parameters and data give
// the same trees regardless of the number of workers.
package gbdt
