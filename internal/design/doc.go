// Package design builds the pre-bound design of an ML-NMR model: the
// parameter layout, per-arm covariate blocks for IPD rows and integration
// points, covariate centring, the optional QR reparameterisation of the
// regression block and an identifiability check.
//
// A Design is immutable once built and is read concurrently by likelihood
// evaluation on every sampler chain.
package design
