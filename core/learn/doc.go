// Package learn contains the small online estimators used by the pricing and
// load clustering models: a feature scaler, a linear regressor trained by
// stochastic gradient descent and a mini-batch k-means clusterer. All three
// are plain structs with exported fields so their state can be persisted as
// JSON and restored without loss.
package learn
