package osim

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextWeight_AboveBand_ProportionalIncrease(t *testing.T) {
	// GIVEN error 2.0 deg, band [1.0, 1.5], weight 10
	next, changed, err := NextWeight(10.0, 2.0, Band{Min: 1.0, Max: 1.5})
	require.NoError(t, err)

	// THEN midpoint 1.25, increment 0.75, 10 + 0.5*0.75*10
	assert.True(t, changed)
	assert.InDelta(t, 13.75, next, 1e-12)
}

func TestNextWeight_BelowBand_ProportionalDecrease(t *testing.T) {
	next, changed, err := NextWeight(10.0, 0.25, Band{Min: 1.0, Max: 1.5})
	require.NoError(t, err)
	assert.True(t, changed)
	// increment = -|1.25 - 0.25| = -1
	assert.InDelta(t, 5.0, next, 1e-12)
}

func TestNextWeight_InsideBand_Unchanged(t *testing.T) {
	for _, e := range []float64{1.0, 1.2, 1.5} {
		next, changed, err := NextWeight(7.0, e, Band{Min: 1.0, Max: 1.5})
		require.NoError(t, err)
		assert.False(t, changed, "err=%g", e)
		assert.Equal(t, 7.0, next)
	}
}

func TestNextWeight_NaN_ReturnsErrInvalidError(t *testing.T) {
	_, _, err := NextWeight(1, math.NaN(), Band{Min: 1, Max: 2})
	assert.True(t, errors.Is(err, ErrInvalidError))
	_, _, err = NextWeight(1, math.Inf(1), Band{Min: 1, Max: 2})
	assert.True(t, errors.Is(err, ErrInvalidError))
}

func TestTaskError_Units(t *testing.T) {
	// Rotations: radians to degrees
	assert.InDelta(t, 90.0, TaskError("knee_angle_r", []float64{0.1, -math.Pi / 2}, false), 1e-9)
	// Already in degrees
	assert.InDelta(t, 2.5, TaskError("knee_angle_r", []float64{-2.5, 1}, true), 1e-12)
	// Pelvis translations: meters to centimeters, regardless of inDegrees
	assert.InDelta(t, 1.2, TaskError("pelvis_ty", []float64{0.004, -0.012}, true), 1e-12)
	assert.InDelta(t, 0.0, TaskError("pelvis_tx", nil, false), 1e-12)
	// pelvis_tilt is a rotation
	assert.InDelta(t, 180.0, TaskError("pelvis_tilt", []float64{math.Pi}, false), 1e-9)
}

func TestBand(t *testing.T) {
	b := Band{Min: 0.5, Max: 1.5}
	assert.Equal(t, 1.0, b.Mid())
	assert.True(t, b.Contains(0.5))
	assert.False(t, b.Contains(1.6))
	assert.InDelta(t, 0.1, b.Excess(1.6), 1e-12)
	assert.InDelta(t, 0.25, b.Excess(0.25), 1e-12)
	assert.Equal(t, 0.0, b.Excess(1.0))

	assert.NoError(t, b.Validate())
	assert.Error(t, Band{Min: 2, Max: 1}.Validate())
	assert.Error(t, Band{Min: -1, Max: 1}.Validate())
	assert.Error(t, Band{Min: 0, Max: math.Inf(1)}.Validate())
}
