package store

import (
	"path/filepath"
	"testing"

	"github.com/jSoboil/multinma/internal/design"
	"github.com/jSoboil/multinma/internal/nma"
	"github.com/jSoboil/multinma/internal/posterior"
	"github.com/jSoboil/multinma/internal/testutil"
)

// createTestStore creates a new store in a temporary directory with a
// deterministic clock.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	opts = append([]Option{WithClock(testutil.NewStepClock().Now)}, opts...)
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestFit creates a three-treatment fit with dominant draws, one
// diagnostic and one population carrying points.
func createTestFit() *posterior.Fit {
	return &posterior.Fit{
		Sampler: "laplace",
		Meta: &design.Meta{
			Outcome:    nma.OutcomeBinary,
			Model:      nma.ModelSpec{Link: nma.LinkLogit, Family: nma.FamilyBernoulli},
			Treatments: []nma.Treatment{{Name: "A"}, {Name: "B", Class: "Active"}, {Name: "C", Class: "Active"}},
			Covariates: []string{"age"},
			Centers:    []float64{0},
			Params:     []string{"d[B]", "d[C]"},
			Studies:    []string{"S<1>"},
			Hash:       "model-hash",
		},
		Draws: testutil.DominantDraws(1, 25),
		Diagnostics: nma.Diagnostics{
			{Code: nma.WarnIntegrationError, Message: "integration error 0.02", Study: "S<1>", Treatment: "C", Value: 0.02},
		},
		Populations: []nma.Population{{
			Name:   "S<1>",
			Points: &nma.IntegrationPoints{Covariates: []string{"age"}, X: []float64{40, 50, 60}, Seed: 3, Key: "k"},
		}},
	}
}
