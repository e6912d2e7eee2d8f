// Package store provides SQLite-backed durable storage for fits.
//
// A fit is stored as:
//   - fits: one row with the design metadata, default populations,
//     sampler name and creation time
//   - fit_params: one row per parameter holding every draw as a
//     little-endian float64 BLOB
//   - fit_diagnostics: warnings attached to the fit, in order
//
// Fit IDs are UUIDv7 by default, so listing by ID is listing by creation
// time. Parameter rows are keyed by (fit_id, idx) and always read back in
// idx order, which reproduces the draw layout exactly.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
