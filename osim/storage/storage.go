// Package storage reads and writes the header-delimited time-series files
// (.sto/.mot) produced by the simulation engine.
//
// A storage file starts with free-form header lines, ends the header with a
// line containing the literal "endheader", and continues with one line of
// column labels followed by whitespace-separated numeric rows.
package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// EndHeader is the sentinel that terminates the header block.
const EndHeader = "endheader"

// ErrNoEndHeader is returned when a file has no EndHeader sentinel line.
var ErrNoEndHeader = errors.New("storage: no endheader line")

// maxLineBytes bounds a single line; wide files carry hundreds of columns.
const maxLineBytes = 16 * 1024 * 1024

// Table is a parsed storage file: named columns over rows of samples.
type Table struct {
	Name    string            // first header line without '=' (e.g. "Kinematics_q"); may be empty
	Header  map[string]string // key=value lines preceding the sentinel
	Columns []string          // column labels, in file order
	Rows    [][]float64       // one entry per time step, len == len(Columns)
}

// Read parses the storage file at path.
func Read(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening storage file: %w", err)
	}
	defer func() { _ = f.Close() }()

	t, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse reads a storage table from r. The line following the first line
// containing EndHeader supplies the column labels; every non-blank line
// after that is a data row.
func Parse(r io.Reader) (*Table, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	t := &Table{Header: make(map[string]string)}
	lineNo := 0
	inHeader := true
	haveLabels := false

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		if inHeader {
			if strings.Contains(line, EndHeader) {
				inHeader = false
				continue
			}
			parseHeaderLine(t, line)
			continue
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if !haveLabels {
			t.Columns = fields
			haveLabels = true
			continue
		}

		if len(fields) != len(t.Columns) {
			return nil, fmt.Errorf("line %d: %d fields, expected %d", lineNo, len(fields), len(t.Columns))
		}
		row := make([]float64, len(fields))
		for i, tok := range fields {
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d, column %q: %w", lineNo, t.Columns[i], err)
			}
			row[i] = v
		}
		t.Rows = append(t.Rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning storage data: %w", err)
	}
	if inHeader {
		return nil, ErrNoEndHeader
	}
	if !haveLabels {
		return nil, fmt.Errorf("line %d: missing column labels after %s", lineNo, EndHeader)
	}
	return t, nil
}

func parseHeaderLine(t *Table, line string) {
	s := strings.TrimSpace(line)
	if s == "" {
		return
	}
	if key, value, ok := strings.Cut(s, "="); ok {
		t.Header[strings.TrimSpace(key)] = strings.TrimSpace(value)
		return
	}
	if t.Name == "" {
		t.Name = s
	}
}

// ColumnIndex returns the index of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the table has a column with the given label.
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Column returns a copy of the named column's samples.
func (t *Table) Column(name string) ([]float64, bool) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil, false
	}
	out := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, true
}

// InDegrees reports whether the header declares rotational values in degrees.
func (t *Table) InDegrees() bool {
	v, ok := t.Header["inDegrees"]
	return ok && strings.EqualFold(v, "yes")
}

// PeakAbs returns the largest absolute value in values, or 0 when empty.
func PeakAbs(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return floats.Norm(values, math.Inf(1))
}
