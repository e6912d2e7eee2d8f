// Package integration attaches quasi-Monte Carlo integration points to the
// aggregate arms of a network and to ad hoc target populations.
//
// The pipeline per call:
//  1. Covariate specs bind each integrated covariate to a marginal family
//     and to the AgD summary columns that supply its parameters.
//  2. A latent correlation matrix is taken from the caller or pooled from
//     the IPD studies of the network.
//  3. One scrambled Halton point set is generated and passed through the
//     Gaussian copula; each arm then applies its own marginals.
//
// Every arm of one call shares the same uniform points, so results are
// reproducible from (specs, correlation, n, seed) alone.
package integration
