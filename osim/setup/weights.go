package setup

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

const (
	taskTag   = "CMC_Joint"
	weightTag = "weight"
)

// WeightFormat controls how weights are rendered into the task-set file.
type WeightFormat int

const (
	// FormatFloat renders weights like printf's %f.
	FormatFloat WeightFormat = iota
	// FormatInt renders weights like printf's %i, truncating toward zero.
	FormatInt
)

// Render formats v according to the weight format.
func (f WeightFormat) Render(v float64) string {
	if f == FormatInt {
		t := math.Trunc(v)
		if t == 0 {
			t = 0 // drop the sign of -0
		}
		return strconv.FormatFloat(t, 'f', 0, 64)
	}
	return fmt.Sprintf("%f", v)
}

// Weight is one task's weight.
type Weight struct {
	Task  string
	Value float64
}

// Weights is an ordered task-name → weight vector.
type Weights []Weight

// Names returns the task names in order.
func (w Weights) Names() []string {
	names := make([]string, len(w))
	for i, x := range w {
		names[i] = x.Task
	}
	return names
}

// Get returns the weight of task.
func (w Weights) Get(task string) (float64, bool) {
	for _, x := range w {
		if x.Task == task {
			return x.Value, true
		}
	}
	return 0, false
}

// Set updates the weight of task, appending it when absent.
func (w *Weights) Set(task string, v float64) {
	for i := range *w {
		if (*w)[i].Task == task {
			(*w)[i].Value = v
			return
		}
	}
	*w = append(*w, Weight{Task: task, Value: v})
}

// Clone returns an independent copy.
func (w Weights) Clone() Weights {
	return append(Weights(nil), w...)
}

// tasks returns the CMC_Joint elements inside <objects> blocks; the
// template entries under <defaults> are never tasks.
func (d *Document) tasks() []*etree.Element {
	return d.doc.FindElements("//objects//" + taskTag)
}

// TaskNames lists the task names in document order.
func (d *Document) TaskNames() []string {
	var names []string
	for _, el := range d.tasks() {
		names = append(names, el.SelectAttrValue("name", ""))
	}
	return names
}

// Weights reads the weights of the named tasks, in the order given.
// The order of names and the order of elements in the file are independent.
func (d *Document) Weights(names []string) (Weights, error) {
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	inFile := make(map[string]float64)
	for _, el := range d.tasks() {
		name := el.SelectAttrValue("name", "")
		if !wanted[name] {
			continue
		}
		w := el.SelectElement(weightTag)
		if w == nil {
			return nil, fmt.Errorf("task %q has no <%s>", name, weightTag)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(w.Text()), 64)
		if err != nil {
			return nil, fmt.Errorf("task %q weight: %w", name, err)
		}
		inFile[name] = v
	}

	out := make(Weights, 0, len(names))
	for _, name := range names {
		v, ok := inFile[name]
		if !ok {
			return nil, fmt.Errorf("%w: task %q", ErrFieldNotFound, name)
		}
		out = append(out, Weight{Task: name, Value: v})
	}
	return out, nil
}

// SetWeights writes every weight in w whose task appears in the document.
// Tasks of the document that are not in w keep their values.
func (d *Document) SetWeights(w Weights, format WeightFormat) error {
	for _, el := range d.tasks() {
		name := el.SelectAttrValue("name", "")
		v, ok := w.Get(name)
		if !ok {
			continue
		}
		we := el.SelectElement(weightTag)
		if we == nil {
			return fmt.Errorf("task %q has no <%s>", name, weightTag)
		}
		we.SetText(format.Render(v))
	}
	return nil
}

// ReadWeights loads the task-set file at path and reads the named weights.
func ReadWeights(path string, names []string) (Weights, error) {
	doc, err := Load(path)
	if err != nil {
		return nil, err
	}
	w, err := doc.Weights(names)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// WriteWeights rewrites the weights in the task-set file at path.
func WriteWeights(path string, w Weights, format WeightFormat) error {
	doc, err := Load(path)
	if err != nil {
		return err
	}
	if err := doc.SetWeights(w, format); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return doc.Save(path)
}
