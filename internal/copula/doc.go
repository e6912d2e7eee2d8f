// Package copula maps quasi-random uniform points to correlated covariate
// draws through a Gaussian copula.
//
// For each point u in (0,1)^d:
//
//	z0 = Φ⁻¹(u)          independent standard normals
//	z  = L z0            L Lᵀ = Σ, the latent correlation
//	v  = Φ(z)            correlated uniforms
//	x_j = F_j⁻¹(v_j)     per-covariate marginal quantile functions
//
// The latent normal vector has correlation Σ exactly. After non-linear
// marginal transforms the covariates have correlation close to, but not
// exactly, Σ. This is a known limitation of the copula construction.
//
// A correlation matrix that is not positive semi-definite is projected to
// the nearest correlation matrix and reported through Repair rather than
// rejected.
package copula
