package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gaitlab/osimctl/osim"
	"github.com/gaitlab/osimctl/osim/storage"
)

var (
	readColumns []string // columns to print; empty means all
	readPeaks   bool     // print peak error per column instead of rows
)

// writePeaks prints each column's peak error in the tuner's units.
func writePeaks(w io.Writer, tbl *storage.Table, columns []string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, c := range columns {
		values, ok := tbl.Column(c)
		if !ok {
			return fmt.Errorf("no column %q", c)
		}
		fmt.Fprintf(tw, "%s\t%.4f\n", c, osim.TaskError(c, values, tbl.InDegrees()))
	}
	return tw.Flush()
}

// writeColumns prints the selected columns, tab-separated.
func writeColumns(w io.Writer, tbl *storage.Table, columns []string) error {
	idx := make([]int, len(columns))
	for i, c := range columns {
		if idx[i] = tbl.ColumnIndex(c); idx[i] < 0 {
			return fmt.Errorf("no column %q", c)
		}
	}
	if _, err := fmt.Fprintln(w, strings.Join(columns, "\t")); err != nil {
		return err
	}
	for _, row := range tbl.Rows {
		parts := make([]string, len(idx))
		for i, j := range idx {
			parts[i] = fmt.Sprintf("%g", row[j])
		}
		if _, err := fmt.Fprintln(w, strings.Join(parts, "\t")); err != nil {
			return err
		}
	}
	return nil
}

var readCmd = &cobra.Command{
	Use:   "read FILE",
	Short: "Print columns of a storage (.sto/.mot) file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		tbl, err := storage.Read(args[0])
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		columns := readColumns
		if len(columns) == 0 {
			columns = tbl.Columns
		}
		if readPeaks {
			err = writePeaks(os.Stdout, tbl, withoutTime(columns))
		} else {
			err = writeColumns(os.Stdout, tbl, columns)
		}
		if err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

func withoutTime(columns []string) []string {
	var out []string
	for _, c := range columns {
		if c != "time" {
			out = append(out, c)
		}
	}
	return out
}

func init() {
	readCmd.Flags().StringSliceVar(&readColumns, "columns", nil, "Comma-separated columns to print (default: all)")
	readCmd.Flags().BoolVar(&readPeaks, "peaks", false, "Print each column's peak error (degrees, or cm for pelvis translations)")

	rootCmd.AddCommand(readCmd)
}
