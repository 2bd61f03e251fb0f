package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rowhouse/rowhouse/internal/core"
)

// Row documents are stored as TEXT, not jsonb: jsonb normalizes key order
// and rows must keep their sheet column order.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS datasets (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    title       TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    user_ref    TEXT NOT NULL DEFAULT '',
    options     TEXT NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS dataset_imports (
    id          TEXT PRIMARY KEY,
    dataset_id  TEXT NOT NULL REFERENCES datasets(id) ON DELETE CASCADE,
    seq         BIGSERIAL,
    dt          TIMESTAMPTZ NOT NULL,
    filename    TEXT NOT NULL,
    sheet_index INT NOT NULL,
    status      TEXT NOT NULL,
    error       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS dataset_imports_dataset_idx ON dataset_imports (dataset_id, seq);

CREATE TABLE IF NOT EXISTS dataset_rows (
    dataset_id TEXT NOT NULL REFERENCES datasets(id) ON DELETE CASCADE,
    import_id  TEXT NOT NULL REFERENCES dataset_imports(id) ON DELETE CASCADE,
    position   INT NOT NULL,
    doc        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS dataset_rows_import_idx ON dataset_rows (import_id, position);
`

const codeUniqueViolation = "23505"

// Postgres persists datasets in PostgreSQL through a shared connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool. The caller owns the pool lifecycle.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

var _ core.Store = (*Postgres)(nil)

// EnsureSchema creates the tables the engine needs. Safe to run at every
// startup.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// pgquerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgquerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (p *Postgres) CreateDataset(ctx context.Context, ds *core.Dataset, rows []core.Row) error {
	if len(ds.Imports) == 0 {
		return fmt.Errorf("dataset %q has no imports", ds.Name)
	}
	optJSON, err := json.Marshal(ds.Options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	_, err = tx.Exec(ctx, `
		INSERT INTO datasets (id, name, title, description, user_ref, options, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ds.ID, ds.Name, ds.Title, ds.Description, ds.UserRef, string(optJSON), ds.CreatedAt, ds.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
			return core.ConflictError("dataset %q already exists", ds.Name)
		}
		return fmt.Errorf("insert dataset: %w", err)
	}

	if err := insertImport(ctx, tx, ds.ID, ds.Imports[0]); err != nil {
		return err
	}
	if err := copyRows(ctx, tx, ds.ID, ds.Imports[0].ID, rows); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (p *Postgres) Dataset(ctx context.Context, id string) (*core.Dataset, error) {
	ds, err := scanDataset(p.pool.QueryRow(ctx, `
		SELECT id, name, title, description, user_ref, options, created_at, updated_at
		FROM datasets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.NotFoundError("dataset %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	if ds.Imports, err = loadImports(ctx, p.pool, ds.ID); err != nil {
		return nil, err
	}
	return ds, nil
}

func (p *Postgres) DatasetByName(ctx context.Context, name string) (*core.Dataset, error) {
	ds, err := scanDataset(p.pool.QueryRow(ctx, `
		SELECT id, name, title, description, user_ref, options, created_at, updated_at
		FROM datasets WHERE name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.NotFoundError("dataset %q not found", name)
	}
	if err != nil {
		return nil, err
	}
	if ds.Imports, err = loadImports(ctx, p.pool, ds.ID); err != nil {
		return nil, err
	}
	return ds, nil
}

func (p *Postgres) UpdateMeta(ctx context.Context, ds *core.Dataset) error {
	optJSON, err := json.Marshal(ds.Options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	tag, err := p.pool.Exec(ctx, `
		UPDATE datasets SET title = $2, description = $3, user_ref = $4, options = $5, updated_at = $6
		WHERE id = $1`,
		ds.ID, ds.Title, ds.Description, ds.UserRef, string(optJSON), ds.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update dataset meta: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NotFoundError("dataset %s not found", ds.ID)
	}
	return nil
}

func (p *Postgres) AppendImport(ctx context.Context, datasetID string, imp core.Import, rows []core.Row) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE datasets SET updated_at = $2 WHERE id = $1`, datasetID, imp.Dt)
	if err != nil {
		return fmt.Errorf("touch dataset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NotFoundError("dataset %s not found", datasetID)
	}

	if err := insertImport(ctx, tx, datasetID, imp); err != nil {
		return err
	}
	if err := copyRows(ctx, tx, datasetID, imp.ID, rows); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (p *Postgres) ReplaceImportRows(ctx context.Context, datasetID string, imp core.Import, rows []core.Row) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE dataset_imports SET dt = $3, filename = $4, sheet_index = $5, status = $6, error = $7
		WHERE id = $1 AND dataset_id = $2`,
		imp.ID, datasetID, imp.Dt, imp.Filename, imp.SheetIndex, string(imp.Status), imp.Error,
	)
	if err != nil {
		return fmt.Errorf("update import: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NotFoundError("import %s not found", imp.ID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM dataset_rows WHERE import_id = $1`, imp.ID); err != nil {
		return fmt.Errorf("clear import rows: %w", err)
	}
	if err := copyRows(ctx, tx, datasetID, imp.ID, rows); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE datasets SET updated_at = $2 WHERE id = $1`, datasetID, imp.Dt); err != nil {
		return fmt.Errorf("touch dataset: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (p *Postgres) SetImportStatus(ctx context.Context, datasetID, importID string, status core.ImportStatus, errMsg string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE dataset_imports SET status = $3, error = $4
		WHERE id = $2 AND dataset_id = $1`,
		datasetID, importID, string(status), errMsg,
	)
	if err != nil {
		return fmt.Errorf("update import status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NotFoundError("import %s not found", importID)
	}

	if _, err := tx.Exec(ctx, `UPDATE datasets SET updated_at = $2 WHERE id = $1`, datasetID, time.Now().UTC()); err != nil {
		return fmt.Errorf("touch dataset: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (p *Postgres) Rows(ctx context.Context, datasetID string) ([]core.Row, error) {
	var one int
	err := p.pool.QueryRow(ctx, `SELECT 1 FROM datasets WHERE id = $1`, datasetID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.NotFoundError("dataset %s not found", datasetID)
	}
	if err != nil {
		return nil, fmt.Errorf("check dataset: %w", err)
	}

	rows, err := p.pool.Query(ctx, `
		SELECT r.doc FROM dataset_rows r
		JOIN dataset_imports i ON i.id = r.import_id
		WHERE r.dataset_id = $1
		ORDER BY i.seq, r.position`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	var out []core.Row
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		var r core.Row
		if err := json.Unmarshal([]byte(doc), &r); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func insertImport(ctx context.Context, q pgquerier, datasetID string, imp core.Import) error {
	_, err := q.Exec(ctx, `
		INSERT INTO dataset_imports (id, dataset_id, dt, filename, sheet_index, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		imp.ID, datasetID, imp.Dt, imp.Filename, imp.SheetIndex, string(imp.Status), imp.Error,
	)
	if err != nil {
		return fmt.Errorf("insert import: %w", err)
	}
	return nil
}

// copyRows bulk-loads row documents with COPY, one document per row in
// sheet order.
func copyRows(ctx context.Context, tx pgx.Tx, datasetID, importID string, rows []core.Row) error {
	if len(rows) == 0 {
		return nil
	}
	records := make([][]any, len(rows))
	for i, r := range rows {
		doc, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode row %d: %w", i, err)
		}
		records[i] = []any{datasetID, importID, i, string(doc)}
	}
	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"dataset_rows"},
		[]string{"dataset_id", "import_id", "position", "doc"},
		pgx.CopyFromRows(records),
	)
	if err != nil {
		return fmt.Errorf("copy rows: %w", err)
	}
	return nil
}

func scanDataset(row pgx.Row) (*core.Dataset, error) {
	var (
		ds        core.Dataset
		optJSON   string
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	err := row.Scan(&ds.ID, &ds.Name, &ds.Title, &ds.Description, &ds.UserRef, &optJSON, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan dataset: %w", err)
	}
	if err := json.Unmarshal([]byte(optJSON), &ds.Options); err != nil {
		return nil, fmt.Errorf("decode options: %w", err)
	}
	ds.CreatedAt = createdAt.Time
	ds.UpdatedAt = updatedAt.Time
	return &ds, nil
}

func loadImports(ctx context.Context, q pgquerier, datasetID string) ([]core.Import, error) {
	rows, err := q.Query(ctx, `
		SELECT id, dt, filename, sheet_index, status, error
		FROM dataset_imports WHERE dataset_id = $1 ORDER BY seq`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("query imports: %w", err)
	}
	defer rows.Close()

	var imports []core.Import
	for rows.Next() {
		var (
			imp    core.Import
			dt     pgtype.Timestamptz
			status string
		)
		if err := rows.Scan(&imp.ID, &dt, &imp.Filename, &imp.SheetIndex, &status, &imp.Error); err != nil {
			return nil, fmt.Errorf("scan import: %w", err)
		}
		imp.Dt = dt.Time
		imp.Status = core.ImportStatus(status)
		imports = append(imports, imp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read imports: %w", err)
	}
	return imports, nil
}
