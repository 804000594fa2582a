package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gaitlab/osimctl/osim"
	"github.com/gaitlab/osimctl/osim/plot"
	"github.com/gaitlab/osimctl/osim/runner"
)

const studyConfigName = "osimctl.yaml"

var (
	studyConfigPath    string   // Study YAML; see resolveStudyConfig for the lookup order
	tuneSetup          string   // Tool setup file
	tuneExecutable     string   // Tool executable
	tuneTasks          []string // Tasks to adjust
	tuneOmit           string   // Pattern of tasks to leave alone
	tuneMinErr         float64  // Lower edge of the accepted peak error
	tuneMaxErr         float64  // Upper edge of the accepted peak error
	tuneMaxIterations  int      // Iteration cap, 0 for none
	tunePatience       int      // Consecutive worsening iterations tolerated
	tuneRoundWeights   bool     // Write weights as integers
	tunePlot           string   // Diagnostic plot path
	tuneNoPlot         bool     // Skip the diagnostic plot
	tuneToolElement    string   // Setup element carrying the run name
	tuneShowToolOutput bool     // Pass the tool's console output through
)

// resolveStudyConfig finds the study file.
// Resolution order: explicit flag > ./osimctl.yaml > ~/.osimctl.yaml > none.
func resolveStudyConfig(explicit, workDir string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	local := filepath.Join(workDir, studyConfigName)
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", nil
	}
	global := filepath.Join(home, "."+studyConfigName)
	if _, err := os.Stat(global); err == nil {
		return global, nil
	}
	return "", nil
}

// applyTuneFlags overlays explicitly set flags on the study file.
func applyTuneFlags(cmd *cobra.Command, cfg *osim.StudyConfig) {
	flags := cmd.Flags()
	if flags.Changed("setup") {
		cfg.Setup = tuneSetup
	}
	if flags.Changed("executable") {
		cfg.Executable = tuneExecutable
	}
	if flags.Changed("tasks") {
		cfg.Tasks = tuneTasks
	}
	if flags.Changed("omit") {
		cfg.Omit = tuneOmit
	}
	if flags.Changed("min-err") {
		cfg.MinMaxErr = &tuneMinErr
	}
	if flags.Changed("max-err") {
		cfg.MaxMaxErr = &tuneMaxErr
	}
	if flags.Changed("max-iterations") {
		cfg.MaxIterations = &tuneMaxIterations
	}
	if flags.Changed("divergence-patience") {
		cfg.DivergencePatience = &tunePatience
	}
	if flags.Changed("round-weights") {
		cfg.RoundWeights = tuneRoundWeights
	}
	if flags.Changed("plot") {
		cfg.Plot = tunePlot
	}
	if flags.Changed("tool-element") {
		cfg.ToolElement = tuneToolElement
	}
	if flags.Changed("show-tool-output") {
		cfg.ShowToolOutput = tuneShowToolOutput
	}
}

// tuneCmd runs the weight-selection loop
var tuneCmd = &cobra.Command{
	Use:   "tune",
	Short: "Adjust tracking task weights until every peak error is in range",
	Long: "Repeatedly runs the tracking tool (RRA by default), reads the per-task peak errors from " +
		"<name>_pErr.sto, and rescales the weight of every task outside the accepted range in the task set file.",
	Run: func(cmd *cobra.Command, args []string) {
		wd, err := os.Getwd()
		if err != nil {
			logrus.Fatalf("Could not determine working directory: %v", err)
		}
		path, err := resolveStudyConfig(studyConfigPath, wd)
		if err != nil {
			logrus.Fatalf("Could not locate study config: %v", err)
		}
		cfg := &osim.StudyConfig{}
		if path != "" {
			logrus.Infof("Using study config %s", path)
			if cfg, err = osim.LoadStudyConfig(path); err != nil {
				logrus.Fatalf("%v", err)
			}
		}
		applyTuneFlags(cmd, cfg)
		if cfg.Setup == "" {
			logrus.Fatalf("No setup file given; pass --setup or set it in the study config")
		}

		tool := &runner.Tool{Executable: cfg.ExecutableOrDefault(), Dir: filepath.Dir(cfg.Setup)}
		if cfg.ShowToolOutput {
			tool.Stdout, tool.Stderr = os.Stdout, os.Stderr
		}
		var plotter osim.Plotter
		if !tuneNoPlot {
			plotter = plot.NewErrorPlot()
		}

		tuner, err := osim.NewTuner(cfg.TunerConfig(), &setupRunner{tool: tool}, plotter)
		if err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		res, err := tuner.Run(ctx)
		if res != nil {
			for _, s := range res.Errors {
				logrus.Infof("%-24s max error %.3f", s.Task, s.Error)
			}
		}
		if err != nil {
			var exitErr *runner.ExitError
			switch {
			case errors.Is(err, osim.ErrMaxIterations), errors.Is(err, osim.ErrDiverged):
				logrus.Fatalf("Tuning stopped after %d iterations: %v", res.Iterations, err)
			case errors.As(err, &exitErr):
				logrus.Fatalf("Tool failed (exit status %d); see its output with --show-tool-output", exitErr.Code)
			default:
				logrus.Fatalf("Tuning failed: %v", err)
			}
		}
		logrus.Info("Tuning complete.")
	},
}

// setupRunner runs the tool from the setup's directory with a setup path
// relative to it, which is how the tools expect relative references.
type setupRunner struct {
	tool *runner.Tool
}

func (r *setupRunner) Run(ctx context.Context, setupPath string) error {
	return r.tool.Run(ctx, filepath.Base(setupPath))
}

func init() {
	tuneCmd.Flags().StringVar(&studyConfigPath, "config", "", "Study config YAML (default ./"+studyConfigName+" or ~/."+studyConfigName+")")
	tuneCmd.Flags().StringVar(&tuneSetup, "setup", "", "Tool setup file whose task set is tuned")
	tuneCmd.Flags().StringVar(&tuneExecutable, "executable", osim.DefaultExecutable, "Tool executable")
	tuneCmd.Flags().StringSliceVar(&tuneTasks, "tasks", nil, "Comma-separated tasks to adjust (default: every task in the task set)")
	tuneCmd.Flags().StringVar(&tuneOmit, "omit", "", "Regular expression of task names to leave alone")
	tuneCmd.Flags().Float64Var(&tuneMinErr, "min-err", osim.DefaultMinMaxErr, "Lowest accepted peak error (degrees, or cm for pelvis translations)")
	tuneCmd.Flags().Float64Var(&tuneMaxErr, "max-err", osim.DefaultMaxMaxErr, "Highest accepted peak error (degrees, or cm for pelvis translations)")
	tuneCmd.Flags().IntVar(&tuneMaxIterations, "max-iterations", osim.DefaultMaxIterations, "Give up after this many iterations (0 for no limit)")
	tuneCmd.Flags().IntVar(&tunePatience, "divergence-patience", osim.DefaultDivergencePatience, "Stop when out-of-range error grows this many iterations in a row (0 to disable)")
	tuneCmd.Flags().BoolVar(&tuneRoundWeights, "round-weights", false, "Write weights as integers")
	tuneCmd.Flags().StringVar(&tunePlot, "plot", "", "Diagnostic plot path (format by extension; default beside the setup file)")
	tuneCmd.Flags().BoolVar(&tuneNoPlot, "no-plot", false, "Skip the diagnostic plot")
	tuneCmd.Flags().StringVar(&tuneToolElement, "tool-element", osim.DefaultToolElement, "Setup element whose name attribute prefixes output files")
	tuneCmd.Flags().BoolVar(&tuneShowToolOutput, "show-tool-output", false, "Show the tool's console output")

	rootCmd.AddCommand(tuneCmd)
}
