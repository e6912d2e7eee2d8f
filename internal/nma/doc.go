// Package nma provides the core data model for multilevel network
// meta-regression.
//
// This package contains the network, population, model specification and
// posterior draw types shared by every other package, plus the error
// taxonomy. nma imports nothing internal, so it stays the foundational
// layer with no circular dependencies.
//
// Key constraints:
//   - A Network is immutable once built; AddIntegration returns a copy.
//   - Labels (studies, treatments, covariates) are NFC-normalised and trimmed.
//   - The first treatment of Network.Treatments is the network reference.
//   - Integration points are regenerable from (specs, correlation, n, seed).
package nma
