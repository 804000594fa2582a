package cmd

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaitlab/osimctl/osim/storage"
)

func pErrTable() *storage.Table {
	return &storage.Table{
		Name:    "subject01_pErr",
		Header:  map[string]string{"inDegrees": "no"},
		Columns: []string{"time", "pelvis_tx", "knee_angle_r"},
		Rows: [][]float64{
			{0, 0.004, -2 * math.Pi / 180},
			{0.5, -0.012, 1 * math.Pi / 180},
		},
	}
}

func TestWritePeaks_UsesTaskUnits(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writePeaks(&buf, pErrTable(), withoutTime(pErrTable().Columns)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"pelvis_tx", "1.2000"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"knee_angle_r", "2.0000"}, strings.Fields(lines[1]))
}

func TestWriteColumns_Selection(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeColumns(&buf, pErrTable(), []string{"time", "pelvis_tx"}))
	assert.Equal(t, "time\tpelvis_tx\n0\t0.004\n0.5\t-0.012\n", buf.String())

	assert.Error(t, writeColumns(&buf, pErrTable(), []string{"ankle_angle_r"}))
	assert.Error(t, writePeaks(&buf, pErrTable(), []string{"ankle_angle_r"}))
}
