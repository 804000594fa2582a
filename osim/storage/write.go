package storage

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Write stores t at path in storage format, overwriting any existing file.
// nRows and nColumns are always derived from the table contents.
func Write(path string, t *Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating storage file: %w", err)
	}
	if err := Format(f, t); err != nil {
		_ = f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

// Format writes t to w in storage format.
func Format(w io.Writer, t *Table) error {
	bw := bufio.NewWriter(w)

	if t.Name != "" {
		fmt.Fprintln(bw, t.Name)
	}
	header := make(map[string]string, len(t.Header)+2)
	for k, v := range t.Header {
		header[k] = v
	}
	header["nRows"] = strconv.Itoa(len(t.Rows))
	header["nColumns"] = strconv.Itoa(len(t.Columns))
	if _, ok := header["version"]; !ok {
		header["version"] = "1"
	}
	for _, k := range headerKeyOrder(header) {
		fmt.Fprintf(bw, "%s=%s\n", k, header[k])
	}
	fmt.Fprintln(bw, EndHeader)
	fmt.Fprintln(bw, strings.Join(t.Columns, "\t"))

	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("row %d: %d values, expected %d", i, len(row), len(t.Columns))
		}
		for j, v := range row {
			if j > 0 {
				_ = bw.WriteByte('\t')
			}
			_, _ = bw.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
		_ = bw.WriteByte('\n')
	}
	return bw.Flush()
}

// headerKeyOrder puts the engine's conventional keys first, then the rest sorted.
func headerKeyOrder(header map[string]string) []string {
	known := []string{"version", "nRows", "nColumns", "inDegrees"}
	seen := make(map[string]bool, len(known))
	keys := make([]string, 0, len(header))
	for _, k := range known {
		if _, ok := header[k]; ok {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range header {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}
