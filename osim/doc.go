// Package osim drives external biomechanics simulation tools toward a
// target kinematic tracking error.
//
// # Reading Guide
//
//   - error.go: how a pErr column becomes one peak error (degrees or cm)
//     and how a weight moves toward the accepted band
//   - tuner.go: the feedback loop (read weights, update, rewrite, rerun)
//   - config.go: YAML study configuration for the loop
//
// # Sub-packages
//
//   - osim/storage: .sto/.mot table reader and writer
//   - osim/setup: XML setup-document field editor and task weights
//   - osim/bundle: copies a run's inputs into an isolated directory
//   - osim/runner: invokes "<tool> -S <setup>"
//   - osim/plot: per-iteration diagnostic figure
//   - osim/archive: docks .sto outputs into a grouped SQLite table store
//   - osim/experiment: reproducible experiment directories with a README
//
// The loop talks to its collaborators through two small interfaces,
// Runner and Plotter, so tests can substitute an in-process tool.
package osim
