// Package archive docks the storage files of a finished run into a
// grouped SQLite table store, one table per file.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/gaitlab/osimctl/osim/storage"
)

const storageExt = ".sto"

var (
	// ErrNoStorageFiles is returned when the output directory has no .sto files.
	ErrNoStorageFiles = errors.New("archive: no storage files found")
	// ErrSingleStorageFile is returned for a lone .sto file without AllowOne;
	// a single file is usually the states file of a run that did not finish.
	ErrSingleStorageFile = errors.New("archive: only one storage file found")
	// ErrTableExists is returned when the target group already holds the table.
	ErrTableExists = errors.New("archive: table already exists in group")
	// ErrNotFound is returned by readers for a missing group or table.
	ErrNotFound = errors.New("archive: not found")
)

// Archive is a table store backed by a single SQLite file.
type Archive struct {
	db   *sql.DB
	path string
}

// Open opens the archive at path, creating it if needed.
func Open(path string) (*Archive, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := initSchema(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize archive schema: %w", err)
	}
	return &Archive{db: db, path: path}, nil
}

// Path returns the archive file location.
func (a *Archive) Path() string { return a.path }

// Close releases the database handle.
func (a *Archive) Close() error { return a.db.Close() }

// DockOptions controls Dock.
type DockOptions struct {
	AllowOne bool   // accept a directory holding a single .sto file
	Title    string // title given to groups created along the path
}

// Group is a node of the group tree.
type Group struct {
	Path  string
	Title string
}

// TableInfo describes a docked table.
type TableInfo struct {
	ID          string
	Group       string
	Name        string
	Description string
	Source      string
	Columns     []string
	Rows        int
	CreatedAt   time.Time
}

// ParseGroupPath splits "a/b/c" into its group names, dropping empty parts.
func ParseGroupPath(s string) []string {
	var out []string
	for _, part := range strings.Split(filepath.ToSlash(s), "/") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func joinGroup(group []string) (string, error) {
	if len(group) == 0 {
		return "", fmt.Errorf("group path is empty")
	}
	for _, g := range group {
		if g == "" || strings.Contains(g, "/") {
			return "", fmt.Errorf("invalid group name %q", g)
		}
	}
	return strings.Join(group, "/"), nil
}

// Dock loads every .sto file in outputDir as a table in the group at the
// end of group, creating groups along the way. The files are assumed to
// come from one run: the table name is the file stem minus the prefix all
// the stems share. The whole directory is docked in one transaction.
func (a *Archive) Dock(ctx context.Context, outputDir string, group []string, opts DockOptions) ([]TableInfo, error) {
	groupPath, err := joinGroup(group)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(outputDir)
	if err != nil {
		return nil, fmt.Errorf("output directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("output path %s is not a directory", outputDir)
	}

	files, err := storageFiles(outputDir)
	if err != nil {
		return nil, err
	}
	switch {
	case len(files) == 0:
		return nil, fmt.Errorf("%s: %w", outputDir, ErrNoStorageFiles)
	case len(files) == 1 && !opts.AllowOne:
		return nil, fmt.Errorf("%s: %w", files[0], ErrSingleStorageFile)
	}
	names := TableNames(files)

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := blazeGroupTrail(ctx, tx, group, opts.Title); err != nil {
		return nil, err
	}

	var docked []TableInfo
	for i, f := range files {
		tbl, err := storage.Read(filepath.Join(outputDir, f))
		if err != nil {
			return nil, err
		}
		ti, err := insertTable(ctx, tx, groupPath, names[i], f, tbl)
		if err != nil {
			return nil, err
		}
		logrus.Debugf("docked %s as %s/%s (%d rows)", f, groupPath, ti.Name, ti.Rows)
		docked = append(docked, ti)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit dock: %w", err)
	}
	logrus.Infof("Docked %d tables from %s into %s", len(docked), outputDir, groupPath)
	return docked, nil
}

// storageFiles lists the .sto files of dir in name order.
func storageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), storageExt) {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// TableNames maps file names to table names: the stem without the prefix
// shared by every name. A single file keeps its full stem, as does any
// file whose stem is the shared prefix itself.
func TableNames(files []string) []string {
	out := make([]string, len(files))
	n := 0
	if len(files) > 1 {
		n = len(sharedPrefix(files))
	}
	for i, f := range files {
		stem := strings.TrimSuffix(f, filepath.Ext(f))
		name := stem
		if n < len(stem) {
			name = stem[n:]
		}
		out[i] = name
	}
	return out
}

func sharedPrefix(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	prefix := ss[0]
	for _, s := range ss[1:] {
		for !strings.HasPrefix(s, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	return prefix
}

func blazeGroupTrail(ctx context.Context, tx *sql.Tx, group []string, title string) error {
	parent := sql.NullString{}
	for i := range group {
		p := strings.Join(group[:i+1], "/")
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO run_groups (path, parent, name, title) VALUES (?, ?, ?, ?)`,
			p, parent, group[i], title); err != nil {
			return fmt.Errorf("creating group %s: %w", p, err)
		}
		parent = sql.NullString{String: p, Valid: true}
	}
	return nil
}

// ColumnName makes a storage label safe as a table column name.
func ColumnName(label string) string {
	return strings.ReplaceAll(label, ".", "_")
}

func insertTable(ctx context.Context, tx *sql.Tx, groupPath, name, source string, tbl *storage.Table) (TableInfo, error) {
	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM datasets WHERE group_path = ? AND name = ?`,
		groupPath, name).Scan(&exists); err != nil {
		return TableInfo{}, fmt.Errorf("checking table %s: %w", name, err)
	}
	if exists > 0 {
		return TableInfo{}, fmt.Errorf("%s/%s: %w", groupPath, name, ErrTableExists)
	}

	ti := TableInfo{
		ID:          uuid.NewString(),
		Group:       groupPath,
		Name:        name,
		Description: "Output file " + name,
		Source:      source,
		Rows:        len(tbl.Rows),
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO datasets (id, group_path, name, description, source, n_rows, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ti.ID, ti.Group, ti.Name, ti.Description, ti.Source, ti.Rows,
		ti.CreatedAt.Format(time.RFC3339Nano)); err != nil {
		return TableInfo{}, fmt.Errorf("inserting table %s: %w", name, err)
	}

	for i, label := range tbl.Columns {
		col := ColumnName(label)
		ti.Columns = append(ti.Columns, col)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO dataset_columns (dataset_id, position, name) VALUES (?, ?, ?)`,
			ti.ID, i, col); err != nil {
			return TableInfo{}, fmt.Errorf("inserting column %s: %w", col, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO samples (dataset_id, row_index, position, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return TableInfo{}, fmt.Errorf("preparing sample insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()
	for r, row := range tbl.Rows {
		for c, v := range row {
			value := sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
			if _, err := stmt.ExecContext(ctx, ti.ID, r, c, value); err != nil {
				return TableInfo{}, fmt.Errorf("inserting %s row %d: %w", name, r, err)
			}
		}
	}
	return ti, nil
}
