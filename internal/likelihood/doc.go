// Package likelihood evaluates the ML-NMR log density over a bound design.
//
// IPD rows contribute individual-level likelihoods. AgD arms contribute an
// aggregate likelihood of the arm outcome given the individual-level mean
// response averaged over the arm's integration points. Binomial AgD has a
// first-order form (bernoulli) and a second-order form (bernoulli2) that
// also matches the across-point variance of the individual probabilities.
// Contrast studies use a multivariate normal likelihood of the reported
// differences against the differences of the arms' linear predictors
// averaged over their integration points.
//
// A Model holds no mutable state and is safe for concurrent use.
package likelihood
