package cmd

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logLevel string // Log verbosity level
	logFile  string // Optional rotated log file, written alongside stderr
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "osimctl",
	Short: "Drive OpenSim tool runs: tune tracking weights, bundle inputs, archive outputs",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
		if logFile != "" {
			logrus.SetOutput(io.MultiWriter(os.Stderr, newLogFileWriter(logFile)))
		}
	},
}

// newLogFileWriter rotates at 10 MB and keeps a few old files; long tuning
// sessions log one line per task per iteration.
func newLogFileWriter(path string) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
	}
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write logs to this file, rotated by size")
}
