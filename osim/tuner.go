package osim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/gaitlab/osimctl/osim/plot"
	"github.com/gaitlab/osimctl/osim/setup"
	"github.com/gaitlab/osimctl/osim/storage"
)

var (
	// ErrMaxIterations is returned when the iteration cap is hit first.
	ErrMaxIterations = errors.New("osim: iteration limit reached before convergence")
	// ErrDiverged is returned when weights stop being usable or errors keep growing.
	ErrDiverged = errors.New("osim: weight adjustment diverged")
	// ErrNoTrackedColumns is returned when pErr has no column for any tracked task.
	ErrNoTrackedColumns = errors.New("osim: no tracked task appears in the error file")
)

const (
	// DefaultToolElement is the setup element whose name prefixes output files.
	DefaultToolElement = "RRATool"
	// DefaultPlotName is written next to the setup file.
	DefaultPlotName = "residuals_and_kinematics_error_auto_rra.pdf"
	defaultResultsDir = "results"
	pErrSuffix        = "_pErr.sto"
	timeColumn        = "time"
)

// Runner runs the external tool against a setup file and blocks until done.
type Runner interface {
	Run(ctx context.Context, setupPath string) error
}

// Plotter writes the per-iteration diagnostic figure.
type Plotter interface {
	Write(path string, series []plot.Series, lo, hi float64) error
}

// TunerConfig configures a weight-selection run.
type TunerConfig struct {
	SetupPath          string         // tool setup file; its task set is rewritten in place
	Tasks              []string       // tasks to adjust; empty means every task in the task set
	OmitPattern        string         // tasks matching this (anchored at the start) are left alone
	Band               Band           // accepted range of each task's peak error
	MaxIterations      int            // 0 means no cap
	DivergencePatience int            // consecutive worsening iterations tolerated; 0 disables
	WeightFormat       setup.WeightFormat
	PlotPath           string // defaults to DefaultPlotName beside the setup file
	ToolElement        string // defaults to DefaultToolElement
}

// Validate checks the configuration before any file is touched.
func (c *TunerConfig) Validate() error {
	if c.SetupPath == "" {
		return fmt.Errorf("setup path is required")
	}
	if err := c.Band.Validate(); err != nil {
		return err
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("max iterations must be non-negative, got %d", c.MaxIterations)
	}
	if c.DivergencePatience < 0 {
		return fmt.Errorf("divergence patience must be non-negative, got %d", c.DivergencePatience)
	}
	if c.OmitPattern != "" {
		if _, err := regexp.Compile(c.OmitPattern); err != nil {
			return fmt.Errorf("omit pattern: %w", err)
		}
	}
	return nil
}

// TaskStatus is one tracked task's peak error at an evaluation.
type TaskStatus struct {
	Task  string
	Error float64
}

// WeightUpdate records one task's weight change within an iteration.
type WeightUpdate struct {
	Task  string
	Error float64
	Old   float64
	New   float64
}

// Iteration records one pass of the loop.
type Iteration struct {
	Index   int
	Updates []WeightUpdate
}

// Result summarizes a run. It is returned alongside ErrMaxIterations and
// ErrDiverged so callers can inspect where the loop stopped.
type Result struct {
	Converged  bool
	Iterations int
	Errors     []TaskStatus  // latest evaluation, in tracked-task order
	Weights    setup.Weights // weights on disk when the loop stopped
	History    []Iteration
}

// Paths are the files a run reads and writes, derived from the setup.
type Paths struct {
	Setup    string
	TaskSet  string
	ErrorSto string
	Plot     string
}

// Tuner adjusts task weights until every tracked error is within the band.
type Tuner struct {
	cfg     TunerConfig
	runner  Runner
	plotter Plotter // nil disables plotting
}

// NewTuner validates cfg and binds the collaborators.
func NewTuner(cfg TunerConfig, runner Runner, plotter Plotter) (*Tuner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if cfg.ToolElement == "" {
		cfg.ToolElement = DefaultToolElement
	}
	return &Tuner{cfg: cfg, runner: runner, plotter: plotter}, nil
}

// ResolvePaths reads the setup file and locates the task set, the pErr
// output, and the plot.
func (t *Tuner) ResolvePaths() (*Paths, error) {
	doc, err := setup.Load(t.cfg.SetupPath)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(t.cfg.SetupPath)

	taskSet, err := doc.Field("task_set_file")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.cfg.SetupPath, err)
	}
	toolName, err := doc.Attr(t.cfg.ToolElement, "name")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.cfg.SetupPath, err)
	}
	resultsDir, err := doc.FieldOptional("results_directory")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.cfg.SetupPath, err)
	}
	resultsDir = strings.TrimSpace(resultsDir)
	if resultsDir == "" {
		resultsDir = defaultResultsDir
	}

	plotPath := t.cfg.PlotPath
	if plotPath == "" {
		plotPath = filepath.Join(dir, DefaultPlotName)
	}
	return &Paths{
		Setup:    t.cfg.SetupPath,
		TaskSet:  underDir(dir, strings.TrimSpace(taskSet)),
		ErrorSto: filepath.Join(underDir(dir, resultsDir), toolName+pErrSuffix),
		Plot:     plotPath,
	}, nil
}

func underDir(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// trackedTasks applies the task list and the omit pattern.
func (t *Tuner) trackedTasks(taskSetPath string) ([]string, error) {
	names := append([]string(nil), t.cfg.Tasks...)
	if len(names) == 0 {
		doc, err := setup.Load(taskSetPath)
		if err != nil {
			return nil, err
		}
		names = doc.TaskNames()
	}
	if t.cfg.OmitPattern == "" {
		return names, nil
	}
	omit := regexp.MustCompile(`^(?:` + t.cfg.OmitPattern + `)`)
	kept := names[:0]
	for _, n := range names {
		if omit.MatchString(n) {
			logrus.Debugf("omitting task %s", n)
			continue
		}
		kept = append(kept, n)
	}
	return kept, nil
}

// Evaluate reads the error file and returns the peak error of every
// tracked task that has a column, in tracked order, plus the table.
func Evaluate(errorSto string, tracked []string) ([]TaskStatus, *storage.Table, error) {
	tbl, err := storage.Read(errorSto)
	if err != nil {
		return nil, nil, err
	}
	var out []TaskStatus
	for _, task := range tracked {
		col, ok := tbl.Column(task)
		if !ok {
			continue
		}
		out = append(out, TaskStatus{Task: task, Error: TaskError(task, col, tbl.InDegrees())})
	}
	if len(out) == 0 {
		return nil, tbl, fmt.Errorf("%s: %w", errorSto, ErrNoTrackedColumns)
	}
	return out, tbl, nil
}

// Run executes the loop: evaluate, update every out-of-band weight at once,
// rewrite the task set, rerun the tool, plot, and repeat.
func (t *Tuner) Run(ctx context.Context) (*Result, error) {
	paths, err := t.ResolvePaths()
	if err != nil {
		return nil, err
	}
	tracked, err := t.trackedTasks(paths.TaskSet)
	if err != nil {
		return nil, err
	}
	if len(tracked) == 0 {
		return nil, fmt.Errorf("no tasks left to track: %w", ErrNoTrackedColumns)
	}
	band := t.cfg.Band
	logrus.Infof("Tuning %d task weights in %s toward [%.2f, %.2f]", len(tracked), paths.TaskSet, band.Min, band.Max)

	if _, err := os.Stat(paths.ErrorSto); errors.Is(err, os.ErrNotExist) {
		logrus.Info("No error file yet; running the tool...")
		if err := t.runner.Run(ctx, paths.Setup); err != nil {
			return nil, err
		}
	}

	res := &Result{}
	prevExcess := math.Inf(1)
	worsening := 0

	for {
		statuses, _, err := Evaluate(paths.ErrorSto, tracked)
		if err != nil {
			return res, err
		}
		res.Errors = statuses

		excess := 0.0
		converged := true
		for _, s := range statuses {
			if !band.Contains(s.Error) {
				converged = false
			}
			excess += band.Excess(s.Error)
		}
		if converged {
			res.Converged = true
			res.Weights, err = setup.ReadWeights(paths.TaskSet, statusTasks(statuses))
			if err != nil {
				return res, err
			}
			logrus.Infof("All peak errors are within [%.2f, %.2f] after %d iterations", band.Min, band.Max, res.Iterations)
			return res, nil
		}

		if excess > prevExcess {
			worsening++
		} else {
			worsening = 0
		}
		prevExcess = excess
		if t.cfg.DivergencePatience > 0 && worsening >= t.cfg.DivergencePatience {
			return res, fmt.Errorf("%w: out-of-band error grew for %d consecutive iterations", ErrDiverged, worsening)
		}
		if t.cfg.MaxIterations > 0 && res.Iterations >= t.cfg.MaxIterations {
			return res, fmt.Errorf("%w (%d)", ErrMaxIterations, t.cfg.MaxIterations)
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		res.Iterations++
		logrus.Infof("Iteration %d", res.Iterations)

		// Weights are reread every pass; the task-set file is the only copy.
		weights, err := setup.ReadWeights(paths.TaskSet, tracked)
		if err != nil {
			return res, err
		}
		it, next, err := t.step(res.Iterations, statuses, weights)
		if err != nil {
			return res, err
		}
		res.History = append(res.History, it)
		res.Weights = next

		if err := setup.WriteWeights(paths.TaskSet, next, t.cfg.WeightFormat); err != nil {
			return res, err
		}
		logrus.Info("Running the tool...")
		if err := t.runner.Run(ctx, paths.Setup); err != nil {
			return res, err
		}
		if t.plotter != nil {
			if err := t.writePlot(paths, tracked); err != nil {
				logrus.Warnf("diagnostic plot: %v", err)
			}
		}
	}
}

// step computes the new weight of every out-of-band task from the same
// evaluation; none is written until all are computed.
func (t *Tuner) step(index int, statuses []TaskStatus, weights setup.Weights) (Iteration, setup.Weights, error) {
	it := Iteration{Index: index}
	next := weights.Clone()
	for _, s := range statuses {
		old, ok := weights.Get(s.Task)
		if !ok {
			return it, nil, fmt.Errorf("task %q has no weight", s.Task)
		}
		w, changed, err := NextWeight(old, s.Error, t.cfg.Band)
		if err != nil {
			return it, nil, fmt.Errorf("task %s: %w", s.Task, err)
		}
		if !changed {
			continue
		}
		if w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return it, nil, fmt.Errorf("%w: task %s weight %.4g -> %.4g", ErrDiverged, s.Task, old, w)
		}
		next.Set(s.Task, w)
		it.Updates = append(it.Updates, WeightUpdate{Task: s.Task, Error: s.Error, Old: old, New: w})
		logrus.Infof("Task %s has max error %.2f: %.2f -> %.2f", s.Task, s.Error, old, w)
	}
	return it, next, nil
}

func (t *Tuner) writePlot(paths *Paths, tracked []string) error {
	tbl, err := storage.Read(paths.ErrorSto)
	if err != nil {
		return err
	}
	timeCol, hasTime := tbl.Column(timeColumn)
	var series []plot.Series
	for _, task := range tracked {
		col, ok := tbl.Column(task)
		if !ok {
			continue
		}
		s := plot.Series{Name: task, X: make([]float64, len(col)), Y: make([]float64, len(col))}
		for i, v := range col {
			if hasTime {
				s.X[i] = timeCol[i]
			} else {
				s.X[i] = float64(i)
			}
			s.Y[i] = TaskError(task, []float64{v}, tbl.InDegrees()) * sign(v)
		}
		series = append(series, s)
	}
	return t.plotter.Write(paths.Plot, series, t.cfg.Band.Min, t.cfg.Band.Max)
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func statusTasks(statuses []TaskStatus) []string {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = s.Task
	}
	return names
}
