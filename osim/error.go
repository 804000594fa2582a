package osim

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/gaitlab/osimctl/osim/storage"
)

// translationPrefix marks pelvis translation tasks, tracked in meters.
const translationPrefix = "pelvis_t"

// ErrInvalidError is returned when a task's error is not a finite number.
var ErrInvalidError = errors.New("osim: error value is not finite")

// Band is the accepted range for every tracked task's peak error.
type Band struct {
	Min float64 // lowest acceptable peak error
	Max float64 // highest acceptable peak error
}

// Mid is the band's midpoint, the value weights are steered toward.
func (b Band) Mid() float64 { return 0.5 * (b.Min + b.Max) }

// Contains reports whether err lies within [Min, Max].
func (b Band) Contains(err float64) bool { return err >= b.Min && err <= b.Max }

// Excess is the distance of err outside the band; 0 when inside.
func (b Band) Excess(err float64) float64 {
	switch {
	case err > b.Max:
		return err - b.Max
	case err < b.Min:
		return b.Min - err
	}
	return 0
}

// Validate checks the band is usable.
func (b Band) Validate() error {
	if math.IsNaN(b.Min) || math.IsNaN(b.Max) || math.IsInf(b.Min, 0) || math.IsInf(b.Max, 0) {
		return fmt.Errorf("error band must be finite, got [%g, %g]", b.Min, b.Max)
	}
	if b.Min < 0 {
		return fmt.Errorf("min error must be non-negative, got %g", b.Min)
	}
	if b.Min > b.Max {
		return fmt.Errorf("min error %g exceeds max error %g", b.Min, b.Max)
	}
	return nil
}

// TaskError converts a pErr column into the task's peak error: centimeters
// for pelvis translations, degrees for everything else. inDegrees tells
// whether rotational samples are already in degrees.
func TaskError(column string, values []float64, inDegrees bool) float64 {
	peak := storage.PeakAbs(values)
	if strings.HasPrefix(column, translationPrefix) {
		return 100.0 * peak
	}
	if inDegrees {
		return peak
	}
	return peak * 180.0 / math.Pi
}

// NextWeight returns the proportional correction of weight old for a task
// whose peak error is err. Above the band the increment is err - mid;
// below it is -|mid - err|; the weight moves by half the increment scaled
// by the weight itself. changed is false when err is inside the band.
func NextWeight(old, err float64, band Band) (next float64, changed bool, e error) {
	if math.IsNaN(err) || math.IsInf(err, 0) {
		return old, false, fmt.Errorf("%w: %g", ErrInvalidError, err)
	}
	var increment float64
	switch {
	case err > band.Max:
		increment = err - band.Mid()
	case err < band.Min:
		increment = -math.Abs(band.Mid() - err)
	default:
		return old, false, nil
	}
	return old + 0.5*increment*old, true, nil
}
