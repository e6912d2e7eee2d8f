// Package qmc generates low-discrepancy quasi-random point sets in the unit
// hypercube for quasi-Monte Carlo integration.
//
// Points come from a randomised (Owen-scrambled) Halton sequence. The
// scramble is driven by an explicit seed:
//   - the same (dim, n, seed) always yields identical points;
//   - different seeds yield independent randomisations, each unbiased,
//     which is what replication-based integration error estimates need.
//
// Halton sequences lose uniformity in their projections as the dimension
// grows, so New rejects dimensions above MaxDimension.
package qmc
