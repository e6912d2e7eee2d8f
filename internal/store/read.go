package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jSoboil/multinma/internal/design"
	"github.com/jSoboil/multinma/internal/nma"
	"github.com/jSoboil/multinma/internal/posterior"
)

// ErrNotFound is returned when a fit does not exist.
var ErrNotFound = errors.New("fit not found")

// Latest selects the most recently created fit in ReadFit.
const Latest = "latest"

// FitInfo is the listing view of a stored fit.
type FitInfo struct {
	ID        string    `json:"id"`
	ModelHash string    `json:"model_hash"`
	Sampler   string    `json:"sampler"`
	Draws     int       `json:"draws"`
	CreatedAt time.Time `json:"created_at"`
}

// ReadFit loads a fit by ID, or the newest fit when id is Latest.
// Returns an error wrapping ErrNotFound when no fit matches.
func (s *Store) ReadFit(ctx context.Context, id string) (*posterior.Fit, error) {
	query := `
		SELECT id, sampler, meta, populations, n_draws, created_at
		FROM fits WHERE id = ?
	`
	args := []any{id}
	if id == Latest {
		query = `
			SELECT id, sampler, meta, populations, n_draws, created_at
			FROM fits ORDER BY created_at DESC, id COLLATE BINARY DESC LIMIT 1
		`
		args = nil
	}

	var (
		fit              posterior.Fit
		metaJSON, popsJS string
		nDraws           int
		created          string
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&fit.ID, &fit.Sampler, &metaJSON, &popsJS, &nDraws, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read fit %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read fit %s: %w", id, err)
	}

	fit.Meta = &design.Meta{}
	if err := unmarshalJSON(metaJSON, fit.Meta); err != nil {
		return nil, fmt.Errorf("read fit %s: unmarshal meta: %w", fit.ID, err)
	}
	if err := unmarshalJSON(popsJS, &fit.Populations); err != nil {
		return nil, fmt.Errorf("read fit %s: unmarshal populations: %w", fit.ID, err)
	}
	if len(fit.Populations) == 0 {
		fit.Populations = nil
	}
	if fit.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}

	if fit.Draws, err = s.readDraws(ctx, fit.ID, nDraws); err != nil {
		return nil, err
	}
	if fit.Diagnostics, err = s.readDiagnostics(ctx, fit.ID); err != nil {
		return nil, err
	}
	return &fit, nil
}

// readDraws reassembles the row-major draw matrix from parameter columns.
func (s *Store) readDraws(ctx context.Context, id string, n int) (*nma.Draws, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, draws FROM fit_params WHERE fit_id = ? ORDER BY idx ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query params: %w", err)
	}
	defer rows.Close()

	var (
		names []string
		cols  [][]float64
	)
	for rows.Next() {
		var (
			name string
			blob []byte
		)
		if err := rows.Scan(&name, &blob); err != nil {
			return nil, fmt.Errorf("scan param: %w", err)
		}
		col, err := decodeDraws(blob)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", name, err)
		}
		if len(col) != n {
			return nil, fmt.Errorf("param %s has %d draws, fit has %d", name, len(col), n)
		}
		names = append(names, name)
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate params: %w", err)
	}

	values := make([]float64, 0, n*len(names))
	for i := 0; i < n; i++ {
		for _, col := range cols {
			values = append(values, col[i])
		}
	}
	return nma.NewDraws(names, values)
}

func (s *Store) readDiagnostics(ctx context.Context, id string) (nma.Diagnostics, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, message, study, treatment, value
		FROM fit_diagnostics WHERE fit_id = ? ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query diagnostics: %w", err)
	}
	defer rows.Close()

	var out nma.Diagnostics
	for rows.Next() {
		var (
			w     nma.Warning
			code  string
			value sql.NullFloat64
		)
		if err := rows.Scan(&code, &w.Message, &w.Study, &w.Treatment, &value); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		w.Code = nma.WarningCode(code)
		w.Value = math.NaN()
		if value.Valid {
			w.Value = value.Float64
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diagnostics: %w", err)
	}
	return out, nil
}

// ListFits returns every stored fit, newest first.
// Returns an empty slice (not nil) when the store is empty.
func (s *Store) ListFits(ctx context.Context) ([]FitInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, model_hash, sampler, n_draws, created_at
		FROM fits
		ORDER BY created_at DESC, id COLLATE BINARY DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query fits: %w", err)
	}
	defer rows.Close()

	out := []FitInfo{}
	for rows.Next() {
		var (
			info    FitInfo
			created string
		)
		if err := rows.Scan(&info.ID, &info.ModelHash, &info.Sampler, &info.Draws, &created); err != nil {
			return nil, fmt.Errorf("scan fit: %w", err)
		}
		if info.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fits: %w", err)
	}
	return out, nil
}
