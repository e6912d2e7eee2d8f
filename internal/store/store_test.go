package store

import (
	"context"
	"database/sql"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jSoboil/multinma/internal/nma"
	"github.com/jSoboil/multinma/internal/testutil"
)

func TestOpen_ReopenKeepsFits(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "fits.db")

	s1, err := Open(path, WithIDGenerator(testutil.NewFixedIDGenerator("")))
	require.NoError(t, err)
	id, err := s1.WriteFit(ctx, createTestFit())
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.ReadFit(ctx, Latest)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, 25, got.Draws.Len())
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/fits.db")
	require.Error(t, err)
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	// synchronous NORMAL and foreign_keys ON both read back as 1.
	for name, want := range map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"busy_timeout": "5000",
		"foreign_keys": "1",
	} {
		assert.NoError(t, s.verifyPragma(name, want), name)
	}
}

func TestSchema_Columns(t *testing.T) {
	s := createTestStore(t)

	cases := map[string][]string{
		"fits":            {"id", "model_hash", "sampler", "meta", "populations", "n_draws", "created_at"},
		"fit_params":      {"fit_id", "idx", "name", "draws"},
		"fit_diagnostics": {"fit_id", "seq", "code", "message", "study", "treatment", "value"},
	}
	for table, want := range cases {
		got := map[string]bool{}
		for _, c := range tableColumns(t, s.db, table) {
			got[c.name] = true
		}
		for _, col := range want {
			assert.True(t, got[col], "%s.%s", table, col)
		}
	}
	assert.Subset(t, tableIndexes(t, s.db, "fits"), []string{"idx_fits_model_hash", "idx_fits_created_at"})
}

func TestSchema_ParamRequiresFit(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`INSERT INTO fit_params (fit_id, idx, name, draws) VALUES ('missing', 0, 'd[B]', x'')`)
	assert.Error(t, err)
}

func TestDeleteFit_Cascades(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	id, err := s.WriteFit(ctx, createTestFit())
	require.NoError(t, err)
	require.NoError(t, s.DeleteFit(ctx, id))

	for _, table := range []string{"fit_params", "fit_diagnostics"} {
		var count int
		require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM `+table+` WHERE fit_id = ?`, id).Scan(&count))
		assert.Zero(t, count, table)
	}
}

func TestMigration_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fits.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "open %d", i)

		var version int
		require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
		assert.Equal(t, currentSchemaVersion, version, "open %d", i)
		require.NoError(t, s.Close())
	}
}

// v1 stored diagnostic values as NOT NULL REAL.
const schemaV1Diagnostics = `
CREATE TABLE fits (
    id          TEXT PRIMARY KEY,
    model_hash  TEXT NOT NULL,
    sampler     TEXT NOT NULL,
    meta        TEXT NOT NULL,
    populations TEXT NOT NULL DEFAULT '[]',
    n_draws     INTEGER NOT NULL,
    created_at  TEXT NOT NULL
);
CREATE INDEX idx_fits_created_at ON fits(created_at);
CREATE TABLE fit_diagnostics (
    fit_id    TEXT NOT NULL REFERENCES fits(id) ON DELETE CASCADE,
    seq       INTEGER NOT NULL,
    code      TEXT NOT NULL,
    message   TEXT NOT NULL,
    study     TEXT NOT NULL DEFAULT '',
    treatment TEXT NOT NULL DEFAULT '',
    value     REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (fit_id, seq)
);
INSERT INTO fits (id, model_hash, sampler, meta, n_draws, created_at)
VALUES ('old', 'hash', 'laplace', '{}', 0, '2025-01-01T00:00:00.000000000Z');
INSERT INTO fit_diagnostics (fit_id, seq, code, message, value)
VALUES ('old', 0, 'INTEGRATION_ERROR', 'integration error 0.02', 0.02);
PRAGMA user_version = 1;
`

func TestMigration_UpgradeFromV1(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "fits.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(schemaV1Diagnostics)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)

	for _, c := range tableColumns(t, s.db, "fit_diagnostics") {
		if c.name == "value" {
			assert.False(t, c.notNull, "value is nullable after migration")
		}
	}

	diags, err := s.readDiagnostics(ctx, "old")
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, 0.02, diags[0].Value)

	fit := createTestFit()
	fit.Diagnostics = nma.Diagnostics{{Code: nma.WarnIntegrationError, Message: "no estimate", Value: math.NaN()}}
	id, err := s.WriteFit(ctx, fit)
	require.NoError(t, err)
	got, err := s.ReadFit(ctx, id)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got.Diagnostics[0].Value))
}

type columnInfo struct {
	name    string
	notNull bool
}

func tableColumns(t *testing.T, db *sql.DB, table string) []columnInfo {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	require.NoError(t, err)
	defer rows.Close()

	var out []columnInfo
	for rows.Next() {
		var (
			cid, notnull, pk int
			name, ctype      string
			dflt             any
		)
		require.NoError(t, rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk))
		out = append(out, columnInfo{name: name, notNull: notnull == 1})
	}
	require.NoError(t, rows.Err())
	return out
}

func tableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	require.NoError(t, err)
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		out = append(out, name)
	}
	require.NoError(t, rows.Err())
	return out
}
