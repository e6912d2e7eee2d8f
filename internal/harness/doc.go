// Package harness runs end-to-end conformance scenarios for ML-NMR fits.
//
// A scenario names a network file and a model file, fits the model with a
// fixed seed, stores the fit in a fresh in-memory database, reads it back
// and evaluates assertions against the stored fit. Because every scenario
// uses deterministic seeds, IDs and timestamps, results can be compared
// against golden snapshots.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: three_arm_binary
//	description: "Fixed effects NMA recovers log odds ratios"
//	network: networks/three_arm.yaml
//	model: models/fixed.cue
//	sampler: laplace
//	draws: 2000
//	seed: 7
//	assertions:
//	  - type: estimate_within
//	    parameter: "d[C]"
//	    value: -1.99
//	    tol: 0.1
//	  - type: rank_prob
//	    treatment: C
//	    rank: 1
//	    min: 0.9
//	    lower_better: true
//	  - type: no_warning
//	    code: RHAT
//
// Paths are resolved relative to the scenario file.
//
// # Assertion Types
//
//   - estimate_within: the posterior mean of parameter lies within tol of value
//   - rank_prob: the probability that treatment takes the given rank lies
//     in [min, max] for a population (the first target when omitted)
//   - warning: the fit diagnostics contain code
//   - no_warning: the fit diagnostics do not contain code
//
// # Golden Files
//
// RunWithGolden compares a deterministic snapshot (parameter names,
// assertion outcomes, warning codes) against testdata/golden. To
// regenerate golden files, run:
//
//	go test ./internal/harness -update
package harness
