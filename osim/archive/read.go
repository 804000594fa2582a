package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gaitlab/osimctl/osim/storage"
)

// Groups lists every group in path order.
func (a *Archive) Groups(ctx context.Context) ([]Group, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT path, title FROM run_groups ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("listing groups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.Path, &g.Title); err != nil {
			return nil, fmt.Errorf("scanning group: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Tables lists the tables docked directly in group, by name.
func (a *Archive) Tables(ctx context.Context, group []string) ([]TableInfo, error) {
	groupPath, err := joinGroup(group)
	if err != nil {
		return nil, err
	}
	var n int
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM run_groups WHERE path = ?`, groupPath).Scan(&n); err != nil {
		return nil, fmt.Errorf("looking up group %s: %w", groupPath, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("group %s: %w", groupPath, ErrNotFound)
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT id, name, description, source, n_rows, created_at FROM datasets
		 WHERE group_path = ? ORDER BY name`, groupPath)
	if err != nil {
		return nil, fmt.Errorf("listing tables in %s: %w", groupPath, err)
	}
	var out []TableInfo
	for rows.Next() {
		ti := TableInfo{Group: groupPath}
		var created string
		if err := rows.Scan(&ti.ID, &ti.Name, &ti.Description, &ti.Source, &ti.Rows, &created); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scanning table: %w", err)
		}
		if ti.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("table %s created_at: %w", ti.Name, err)
		}
		out = append(out, ti)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	// Columns are fetched after the cursor closes; the pool holds one connection.
	for i := range out {
		if out[i].Columns, err = a.columns(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (a *Archive) columns(ctx context.Context, id string) ([]string, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT name FROM dataset_columns WHERE dataset_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("listing columns: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scanning column: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// ReadTable returns a docked table in storage form. Column labels are the
// archived (sanitized) names.
func (a *Archive) ReadTable(ctx context.Context, group []string, name string) (*storage.Table, error) {
	groupPath, err := joinGroup(group)
	if err != nil {
		return nil, err
	}
	var id string
	var nRows int
	err = a.db.QueryRowContext(ctx,
		`SELECT id, n_rows FROM datasets WHERE group_path = ? AND name = ?`,
		groupPath, name).Scan(&id, &nRows)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", groupPath, name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up %s/%s: %w", groupPath, name, err)
	}

	cols, err := a.columns(ctx, id)
	if err != nil {
		return nil, err
	}
	tbl := &storage.Table{Name: name, Header: map[string]string{}, Columns: cols, Rows: make([][]float64, nRows)}
	for i := range tbl.Rows {
		tbl.Rows[i] = make([]float64, len(cols))
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT row_index, position, value FROM samples WHERE dataset_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("reading samples of %s: %w", name, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var r, c int
		var v sql.NullFloat64
		if err := rows.Scan(&r, &c, &v); err != nil {
			return nil, fmt.Errorf("scanning sample: %w", err)
		}
		if r < 0 || r >= nRows || c < 0 || c >= len(cols) {
			return nil, fmt.Errorf("%s: sample (%d, %d) out of range", name, r, c)
		}
		if v.Valid {
			tbl.Rows[r][c] = v.Float64
		} else {
			tbl.Rows[r][c] = math.NaN()
		}
	}
	return tbl, rows.Err()
}
