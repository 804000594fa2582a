// Package testutil provides shared test infrastructure for the osim
// packages: study fixtures on disk and an in-process stand-in for the
// external tracking tool.
package testutil

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gaitlab/osimctl/osim/setup"
	"github.com/gaitlab/osimctl/osim/storage"
)

// Task is a fixture task with its initial weight.
type Task struct {
	Name   string
	Weight float64
}

// WriteRRAStudy lays out setup.xml and tasks.xml for an RRA run named
// "subject01" under dir and returns the setup path.
func WriteRRAStudy(t *testing.T, dir string, tasks []Task) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<OpenSimDocument Version=\"30000\">\n")
	b.WriteString("\t<CMC_TaskSet name=\"rra_tasks\">\n\t\t<defaults>\n")
	b.WriteString("\t\t\t<CMC_Joint name=\"default\"><weight>1</weight></CMC_Joint>\n")
	b.WriteString("\t\t</defaults>\n\t\t<objects>\n")
	for _, task := range tasks {
		fmt.Fprintf(&b, "\t\t\t<CMC_Joint name=%q>\n\t\t\t\t<on>true</on>\n\t\t\t\t<weight>%g</weight>\n\t\t\t</CMC_Joint>\n", task.Name, task.Weight)
	}
	b.WriteString("\t\t</objects>\n\t</CMC_TaskSet>\n</OpenSimDocument>\n")
	writeFile(t, filepath.Join(dir, "tasks.xml"), b.String())

	setupPath := filepath.Join(dir, "setup.xml")
	writeFile(t, setupPath, `<?xml version="1.0" encoding="UTF-8"?>
<OpenSimDocument Version="30000">
	<RRATool name="subject01">
		<model_file>subject01.osim</model_file>
		<task_set_file> tasks.xml </task_set_file>
		<results_directory>results</results_directory>
	</RRATool>
</OpenSimDocument>
`)
	return setupPath
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// FakeTool mimics the tracking tool: each run reads the current weights
// and writes a pErr file where a task's peak error is Gains[task]/weight,
// expressed in degrees (centimeters for pelvis translations). With Growth
// set, run n scales every error by Growth^n.
type FakeTool struct {
	Gains  map[string]float64
	Growth float64
	Calls  []map[string]float64 // weights seen by each run, in call order
	Err    error                // returned by every run when set
}

// Run implements the runner contract for setupPath.
func (f *FakeTool) Run(_ context.Context, setupPath string) error {
	if f.Err != nil {
		return f.Err
	}
	doc, err := setup.Load(setupPath)
	if err != nil {
		return err
	}
	dir := filepath.Dir(setupPath)
	taskSet, err := doc.Field("task_set_file")
	if err != nil {
		return err
	}
	name, err := doc.Attr("RRATool", "name")
	if err != nil {
		return err
	}
	results, err := doc.Field("results_directory")
	if err != nil {
		return err
	}

	tasksDoc, err := setup.Load(filepath.Join(dir, strings.TrimSpace(taskSet)))
	if err != nil {
		return err
	}
	names := tasksDoc.TaskNames()
	weights, err := tasksDoc.Weights(names)
	if err != nil {
		return err
	}

	scale := 1.0
	if f.Growth > 0 {
		scale = math.Pow(f.Growth, float64(len(f.Calls)))
	}
	seen := make(map[string]float64, len(weights))
	tbl := &storage.Table{
		Name:    name + "_pErr",
		Header:  map[string]string{"inDegrees": "no"},
		Columns: append([]string{"time"}, names...),
	}
	times := []float64{0, 0.5, 1.0}
	for i, tm := range times {
		row := []float64{tm}
		for _, w := range weights {
			seen[w.Task] = w.Value
			peak := scale * f.Gains[w.Task] / w.Value
			// the peak sits mid-trial; other samples are smaller and negative
			v := peak
			if i != 1 {
				v = -0.5 * peak
			}
			if strings.HasPrefix(w.Task, "pelvis_t") {
				row = append(row, v/100.0)
			} else {
				row = append(row, v*math.Pi/180.0)
			}
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	f.Calls = append(f.Calls, seen)

	outDir := filepath.Join(dir, strings.TrimSpace(results))
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}
	return storage.Write(filepath.Join(outDir, name+"_pErr.sto"), tbl)
}

// AssertFloat64Equal fails t unless got is within relTol of want, relative
// to the larger magnitude of the two.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	scale := math.Max(math.Abs(want), math.Abs(got))
	if scale == 0 || math.Abs(want-got) <= relTol*scale {
		return
	}
	t.Errorf("%s = %v, want %v within %g", name, got, want, relTol)
}
