package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/jSoboil/multinma/internal/nma"
	"github.com/jSoboil/multinma/internal/posterior"
)

// WriteFit stores a fit in one transaction. An empty fit ID is assigned
// from the store's generator and a zero CreatedAt from its clock; both are
// written back to fit. Writing an ID that already exists is an error.
func (s *Store) WriteFit(ctx context.Context, fit *posterior.Fit) (string, error) {
	if fit.Meta == nil || fit.Draws == nil {
		return "", fmt.Errorf("write fit: fit has no draws")
	}
	if fit.ID == "" {
		fit.ID = s.ids.Generate()
	}
	if fit.CreatedAt.IsZero() {
		fit.CreatedAt = s.now()
	}

	metaJSON, err := marshalJSON(fit.Meta)
	if err != nil {
		return "", fmt.Errorf("write fit: marshal meta: %w", err)
	}
	pops := fit.Populations
	if pops == nil {
		pops = []nma.Population{}
	}
	popsJSON, err := marshalJSON(pops)
	if err != nil {
		return "", fmt.Errorf("write fit: marshal populations: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("write fit: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO fits (id, model_hash, sampler, meta, populations, n_draws, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		fit.ID,
		fit.Meta.Hash,
		fit.Sampler,
		metaJSON,
		popsJSON,
		fit.Draws.Len(),
		formatTime(fit.CreatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("write fit %s: %w", fit.ID, err)
	}

	for j, name := range fit.Draws.Names {
		col, err := fit.Draws.Column(name)
		if err != nil {
			return "", fmt.Errorf("write fit: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO fit_params (fit_id, idx, name, draws) VALUES (?, ?, ?, ?)
		`, fit.ID, j, name, encodeDraws(col))
		if err != nil {
			return "", fmt.Errorf("write fit param %s: %w", name, err)
		}
	}

	for i, w := range fit.Diagnostics {
		value := sql.NullFloat64{Float64: w.Value, Valid: !math.IsNaN(w.Value)}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO fit_diagnostics (fit_id, seq, code, message, study, treatment, value)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, fit.ID, i, string(w.Code), w.Message, w.Study, w.Treatment, value)
		if err != nil {
			return "", fmt.Errorf("write fit diagnostic: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("write fit: commit: %w", err)
	}
	return fit.ID, nil
}

// DeleteFit removes a fit with its draws and diagnostics.
func (s *Store) DeleteFit(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM fits WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete fit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete fit: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete fit %s: %w", id, ErrNotFound)
	}
	return nil
}
