package archive

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaitlab/osimctl/osim/storage"
)

func openArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "study.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func writeSto(t *testing.T, dir, file string, columns []string, rows [][]float64) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, storage.Write(filepath.Join(dir, file), &storage.Table{
		Name:    file,
		Columns: columns,
		Rows:    rows,
	}))
}

func runOutput(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "cmc")
	writeSto(t, dir, "walk2_states.sto",
		[]string{"time", "hip_flexion_r.value", "knee_angle_r.value"},
		[][]float64{{0, 0.1, 0.2}, {0.01, 0.15, 0.25}})
	writeSto(t, dir, "walk2_Actuation_force.sto",
		[]string{"time", "soleus_r"},
		[][]float64{{0, 100}, {0.01, 120}, {0.02, 130}})
	return dir
}

func TestTableNames(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  []string
	}{
		{"shared run prefix", []string{"walk2_states.sto", "walk2_controls.sto"}, []string{"states", "controls"}},
		{"single file keeps stem", []string{"walk2_states.sto"}, []string{"walk2_states"}},
		{"stem equal to prefix", []string{"run.sto", "run_pErr.sto"}, []string{"run", "_pErr"}},
		{"nothing shared", []string{"a.sto", "b.sto"}, []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, TableNames(tt.files)); diff != "" {
				t.Errorf("TableNames mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseGroupPath(t *testing.T) {
	assert.Equal(t, []string{"subject01", "walk2", "cmc"}, ParseGroupPath("/subject01/walk2//cmc/"))
	assert.Nil(t, ParseGroupPath(""))
}

func TestDock_CreatesGroupsAndTables(t *testing.T) {
	a := openArchive(t)
	ctx := context.Background()
	dir := runOutput(t)

	docked, err := a.Dock(ctx, dir, []string{"subject01", "walk2"}, DockOptions{Title: "Subject 1"})
	require.NoError(t, err)
	require.Len(t, docked, 2)
	// files are docked in name order
	assert.Equal(t, "Actuation_force", docked[0].Name)
	assert.Equal(t, "states", docked[1].Name)
	assert.Equal(t, "Output file states", docked[1].Description)
	assert.NotEmpty(t, docked[0].ID)
	assert.NotEqual(t, docked[0].ID, docked[1].ID)

	groups, err := a.Groups(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Group{{Path: "subject01", Title: "Subject 1"}, {Path: "subject01/walk2", Title: "Subject 1"}}, groups)

	tables, err := a.Tables(ctx, []string{"subject01", "walk2"})
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "Actuation_force", tables[0].Name)
	assert.Equal(t, 3, tables[0].Rows)
	assert.Equal(t, []string{"time", "hip_flexion_r_value", "knee_angle_r_value"}, tables[1].Columns)
	assert.Equal(t, "walk2_states.sto", tables[1].Source)
}

func TestDock_ReadTableRoundTrip(t *testing.T) {
	a := openArchive(t)
	ctx := context.Background()
	_, err := a.Dock(ctx, runOutput(t), []string{"s1"}, DockOptions{})
	require.NoError(t, err)

	tbl, err := a.ReadTable(ctx, []string{"s1"}, "states")
	require.NoError(t, err)
	want := [][]float64{{0, 0.1, 0.2}, {0.01, 0.15, 0.25}}
	if diff := cmp.Diff(want, tbl.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
	col, ok := tbl.Column("knee_angle_r_value")
	require.True(t, ok)
	assert.Equal(t, []float64{0.2, 0.25}, col)
}

func TestDock_NaNSamplesRoundTrip(t *testing.T) {
	a := openArchive(t)
	ctx := context.Background()
	dir := runOutput(t)
	writeSto(t, dir, "walk2_states.sto",
		[]string{"time", "hip_flexion_r.value"},
		[][]float64{{0, 0.1}, {0.01, math.NaN()}})

	_, err := a.Dock(ctx, dir, []string{"s1"}, DockOptions{})
	require.NoError(t, err)

	tbl, err := a.ReadTable(ctx, []string{"s1"}, "states")
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, 0.1, tbl.Rows[0][1])
	assert.True(t, math.IsNaN(tbl.Rows[1][1]), "got %v", tbl.Rows[1][1])
	assert.Equal(t, 0.01, tbl.Rows[1][0])
}

func TestDock_ExistingGroupKeepsTitle(t *testing.T) {
	a := openArchive(t)
	ctx := context.Background()
	_, err := a.Dock(ctx, runOutput(t), []string{"s1", "a"}, DockOptions{Title: "first"})
	require.NoError(t, err)
	_, err = a.Dock(ctx, runOutput(t), []string{"s1", "b"}, DockOptions{Title: "second"})
	require.NoError(t, err)

	groups, err := a.Groups(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Group{
		{Path: "s1", Title: "first"},
		{Path: "s1/a", Title: "first"},
		{Path: "s1/b", Title: "second"},
	}, groups)
}

func TestDock_DuplicateTable_FailsAtomically(t *testing.T) {
	a := openArchive(t)
	ctx := context.Background()
	dir := runOutput(t)
	_, err := a.Dock(ctx, dir, []string{"s1"}, DockOptions{})
	require.NoError(t, err)

	// a new file sorts first, so it would be inserted before the clash
	writeSto(t, dir, "walk2_Aa.sto", []string{"time"}, [][]float64{{0}})
	_, err = a.Dock(ctx, dir, []string{"s1"}, DockOptions{})
	assert.True(t, errors.Is(err, ErrTableExists), "got %v", err)

	tables, err := a.Tables(ctx, []string{"s1"})
	require.NoError(t, err)
	assert.Len(t, tables, 2)
}

func TestDock_Errors(t *testing.T) {
	a := openArchive(t)
	ctx := context.Background()

	_, err := a.Dock(ctx, filepath.Join(t.TempDir(), "missing"), []string{"s1"}, DockOptions{})
	assert.True(t, errors.Is(err, os.ErrNotExist), "got %v", err)

	empty := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(empty, "notes.txt"), []byte("x"), 0644))
	_, err = a.Dock(ctx, empty, []string{"s1"}, DockOptions{})
	assert.True(t, errors.Is(err, ErrNoStorageFiles), "got %v", err)

	one := filepath.Join(t.TempDir(), "one")
	writeSto(t, one, "walk2_states.sto", []string{"time", "x"}, [][]float64{{0, 1}})
	_, err = a.Dock(ctx, one, []string{"s1"}, DockOptions{})
	assert.True(t, errors.Is(err, ErrSingleStorageFile), "got %v", err)

	docked, err := a.Dock(ctx, one, []string{"s1"}, DockOptions{AllowOne: true})
	require.NoError(t, err)
	require.Len(t, docked, 1)
	assert.Equal(t, "walk2_states", docked[0].Name)

	_, err = a.Dock(ctx, one, nil, DockOptions{AllowOne: true})
	assert.Error(t, err)
}

func TestReaders_NotFound(t *testing.T) {
	a := openArchive(t)
	ctx := context.Background()

	_, err := a.Tables(ctx, []string{"nope"})
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = a.ReadTable(ctx, []string{"nope"}, "states")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "study.db")
	a, err := Open(path)
	require.NoError(t, err)
	_, err = a.Dock(context.Background(), runOutput(t), []string{"s1"}, DockOptions{})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	b, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = b.Close() }()
	tables, err := b.Tables(context.Background(), []string{"s1"})
	require.NoError(t, err)
	assert.Len(t, tables, 2)
}
