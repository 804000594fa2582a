package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gaitlab/osimctl/osim/bundle"
	"github.com/gaitlab/osimctl/osim/experiment"
	"github.com/gaitlab/osimctl/osim/setup"
)

var (
	experimentDescription string
	experimentProfile     string
	experimentFull        bool     // copy every input instead of only the changed ones
	experimentOverwrite   bool
	experimentRun         string   // executable to run once the files are written
	experimentReplace     []string // old=new substitutions
	experimentSetWeights  []string // task=weight edits applied to the task set
	experimentRoundWeight bool
)

// weightEdit returns a hook that rewrites task weights in the copied task set.
func weightEdit(overrides setup.Weights, format setup.WeightFormat) experiment.EditFunc {
	return func(in experiment.Inputs, _ string) error {
		if len(overrides) == 0 {
			return nil
		}
		tasks, ok := in[bundle.RoleTasks]
		if !ok {
			return fmt.Errorf("setup has no task set to edit")
		}
		doc, err := setup.Load(tasks)
		if err != nil {
			return err
		}
		// unknown task names fail here instead of being skipped
		if _, err := doc.Weights(overrides.Names()); err != nil {
			return err
		}
		if err := doc.SetWeights(overrides, format); err != nil {
			return err
		}
		return doc.Save(tasks)
	}
}

var experimentCmd = &cobra.Command{
	Use:   "experiment SETUP PARENT NAME",
	Short: "Create a variation of a simulation in PARENT/NAME with a provenance README",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		profile, ok := bundle.ProfileByName(experimentProfile)
		if !ok {
			logrus.Fatalf("Unknown profile %q (want cmc, rra or so)", experimentProfile)
		}
		replace, err := parseSubstitutions(experimentReplace)
		if err != nil {
			logrus.Fatalf("--replace: %v", err)
		}
		overrides, err := parseWeightOverrides(experimentSetWeights)
		if err != nil {
			logrus.Fatalf("--set-weight: %v", err)
		}
		format := setup.FormatFloat
		if experimentRoundWeight {
			format = setup.FormatInt
		}

		opts := experiment.Options{
			Setup:       args[0],
			Parent:      args[1],
			Name:        args[2],
			Description: experimentDescription,
			Profile:     profile,
			Replace:     replace,
			Minimal:     !experimentFull,
			Overwrite:   experimentOverwrite,
			Edit:        weightEdit(overrides, format),
			Executable:  experimentRun,
			Stdout:      os.Stdout,
			Stderr:      os.Stderr,
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		exp, err := experiment.Create(ctx, opts)
		if err != nil {
			logrus.Fatalf("Experiment failed: %v", err)
		}
		for _, c := range exp.Changes {
			logrus.Infof("%s changed: %s", c.Role, c.Modified)
		}
		logrus.Infof("Experiment written to %s", exp.Dir)
	},
}

func init() {
	experimentCmd.Flags().StringVar(&experimentDescription, "description", "", "One-line description recorded in the README")
	experimentCmd.Flags().StringVar(&experimentProfile, "profile", "cmc", "Setup kind: cmc, rra or so")
	experimentCmd.Flags().BoolVar(&experimentFull, "full", false, "Copy every input, not only the changed ones")
	experimentCmd.Flags().BoolVar(&experimentOverwrite, "overwrite", false, "Write into an existing experiment directory")
	experimentCmd.Flags().StringVar(&experimentRun, "run", "", "Tool executable to run in the experiment directory afterwards")
	experimentCmd.Flags().StringArrayVar(&experimentReplace, "replace", nil, "old=new substitution tried on references that do not exist (can be repeated)")
	experimentCmd.Flags().StringArrayVar(&experimentSetWeights, "set-weight", nil, "task=weight edit applied to the copied task set (can be repeated)")
	experimentCmd.Flags().BoolVar(&experimentRoundWeight, "round-weights", false, "Write edited weights as integers")

	rootCmd.AddCommand(experimentCmd)
}
