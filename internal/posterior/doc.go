// Package posterior turns posterior draws into population-adjusted
// relative effects, absolute predictions, treatment rankings and rank
// probabilities.
//
// Every analysis is evaluated per target population. A population given
// only covariate means is handled by plug-in; a population carrying
// integration points is averaged over its points wherever the quantity is
// nonlinear in the covariates. Work is split across draws and reduced at
// the end, so results do not depend on the number of workers.
package posterior
