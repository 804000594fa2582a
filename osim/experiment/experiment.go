// Package experiment sets up a variation of an existing simulation in its
// own directory: inputs are bundled, a hook edits them, unchanged copies
// are dropped in favor of the originals, and a README records provenance.
package experiment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gaitlab/osimctl/osim/bundle"
	"github.com/gaitlab/osimctl/osim/runner"
	"github.com/gaitlab/osimctl/osim/setup"
)

// ReadmeName is appended to in every experiment directory.
const ReadmeName = "README.txt"

// ErrExists is returned when the experiment directory exists and
// Overwrite is not set.
var ErrExists = errors.New("experiment: directory exists")

// dataRoles stay in place in minimal mode; experiments rarely edit them
// and they are the bulkiest inputs.
var dataRoles = []bundle.Role{
	bundle.RoleDesiredKinematics,
	bundle.RoleCoordinates,
	bundle.RoleForcePlates,
	bundle.RoleExtloadKinematics,
}

// Inputs maps each editable role to its file in the experiment directory.
// An Edit hook may modify those files in place or point a role at a new
// file; the setup document is under RoleSetup.
type Inputs map[bundle.Role]string

// EditFunc changes the experiment's inputs. originalSetup is the absolute
// path of the setup the experiment is based on.
type EditFunc func(in Inputs, originalSetup string) error

// Options configures Create.
type Options struct {
	Setup       string // setup file the experiment is based on
	Parent      string
	Name        string
	Description string
	Profile     bundle.Profile // zero value means bundle.ProfileCMC
	Replace     []bundle.Substitution
	Minimal     bool // keep only the inputs the hook changed
	Overwrite   bool
	Edit        EditFunc

	// Executable, when set, is run on the experiment's setup from inside
	// the experiment directory once the files are written.
	Executable string
	Stdout     io.Writer
	Stderr     io.Writer

	Now func() time.Time // defaults to time.Now
}

// Change is an input the experiment replaced.
type Change struct {
	Role     bundle.Role
	Original string
	Modified string
}

// Experiment describes what Create produced.
type Experiment struct {
	Dir      string
	Setup    string // setup document inside Dir
	Inputs   Inputs
	Changes  []Change
	Manifest *bundle.Manifest
}

// Create lays out the experiment named opts.Name under opts.Parent.
func Create(ctx context.Context, opts Options) (*Experiment, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("experiment name is required")
	}
	if len(opts.Profile.Fields) == 0 {
		opts.Profile = bundle.ProfileCMC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	dest := filepath.Join(opts.Parent, opts.Name)

	if _, err := os.Stat(dest); err == nil {
		if !opts.Overwrite {
			return nil, fmt.Errorf("%s: %w", dest, ErrExists)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		return nil, fmt.Errorf("creating experiment directory: %w", err)
	}

	readme, err := os.OpenFile(filepath.Join(dest, ReadmeName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening readme: %w", err)
	}
	defer func() { _ = readme.Close() }()

	fmt.Fprintf(readme, "OpenSim %s experiment '%s': %s\n", modeLabel(opts.Profile), opts.Name, opts.Description)
	fmt.Fprintf(readme, "These files were generated on/at %s.\n", opts.Now().UTC().Format("2006-01-02T15:04Z"))
	fmt.Fprintf(readme, "This simulation is based on %s.\n", opts.Setup)

	bopts := bundle.Options{Profile: opts.Profile, Replace: opts.Replace}
	if opts.Minimal {
		bopts.DoNotCopy = dataRoles
	}
	manifest, err := bundle.Copy(opts.Setup, dest, bopts)
	if err != nil {
		return nil, err
	}

	exp := &Experiment{
		Dir:      dest,
		Setup:    manifest.Copied[bundle.RoleSetup],
		Inputs:   editableInputs(manifest, opts.Profile),
		Manifest: manifest,
	}

	written, err := setupFields(exp.Setup, opts.Profile)
	if err != nil {
		return nil, err
	}

	if opts.Edit != nil {
		absSetup, err := filepath.Abs(opts.Setup)
		if err != nil {
			return nil, err
		}
		if err := opts.Edit(exp.Inputs, absSetup); err != nil {
			return nil, fmt.Errorf("editing experiment inputs: %w", err)
		}
		if s := exp.Inputs[bundle.RoleSetup]; s != "" {
			exp.Setup = s
		}
	}

	if opts.Minimal {
		fmt.Fprint(readme, "\n\nThe files that have changed:\n")
		if exp.Changes, err = prune(exp, opts.Profile, written); err != nil {
			return nil, err
		}
		for _, c := range exp.Changes {
			fmt.Fprintf(readme, "%s --> %s\n", c.Original, c.Modified)
		}
	}
	fmt.Fprintln(readme)

	if opts.Executable != "" {
		tool := &runner.Tool{Executable: opts.Executable, Dir: dest, Stdout: opts.Stdout, Stderr: opts.Stderr}
		logrus.Infof("Running %s in %s", opts.Executable, dest)
		if err := tool.Run(ctx, filepath.Base(exp.Setup)); err != nil {
			return exp, err
		}
	}
	return exp, nil
}

func modeLabel(p bundle.Profile) string {
	switch p.Name {
	case bundle.ProfileSO.Name:
		return "Static Optimization"
	case bundle.ProfileRRA.Name:
		return "RRA"
	}
	return "CMC"
}

// editableInputs are the copied setup plus every copied profile input
// other than the external loads document.
func editableInputs(m *bundle.Manifest, p bundle.Profile) Inputs {
	in := Inputs{bundle.RoleSetup: m.Copied[bundle.RoleSetup]}
	for _, f := range p.Fields {
		if f.Role == bundle.RoleExternalLoads {
			continue
		}
		if path, ok := m.Copied[f.Role]; ok {
			in[f.Role] = path
		}
	}
	return in
}

// setupFields records the path fields of the copied setup as the bundle
// wrote them.
func setupFields(path string, p bundle.Profile) (map[bundle.Role]string, error) {
	doc, err := setup.Load(path)
	if err != nil {
		return nil, err
	}
	out := make(map[bundle.Role]string, len(p.Fields))
	for _, f := range p.Fields {
		v, err := doc.FieldOptional(f.Tag)
		if err != nil {
			return nil, err
		}
		out[f.Role] = strings.TrimSpace(v)
	}
	return out, nil
}

// prune removes copies the hook left untouched, points the setup back at
// their originals, and returns the inputs that did change. A field the
// hook rewrote keeps the hook's value with the bundled file name in it
// replaced by the new reference. Force set lists that no longer name the
// bundled file get the reference prepended.
func prune(exp *Experiment, p bundle.Profile, written map[bundle.Role]string) ([]Change, error) {
	doc, err := setup.Load(exp.Setup)
	if err != nil {
		return nil, err
	}

	roles := make([]string, 0, len(exp.Inputs))
	for r := range exp.Inputs {
		if bundle.Role(r) != bundle.RoleSetup {
			roles = append(roles, string(r))
		}
	}
	sort.Strings(roles)

	var changes []Change
	for _, r := range roles {
		role := bundle.Role(r)
		tag, ok := p.SetupTag(role)
		if !ok {
			continue
		}
		current := exp.Inputs[role]
		if current == "" {
			continue
		}
		orig := exp.Manifest.Original[role]

		// A role with no original file was added by the hook.
		same := false
		if orig != "" {
			if same, err = sameContent(orig, current); err != nil {
				return nil, err
			}
		}
		var target string
		if same {
			if err := os.Remove(current); err != nil {
				return nil, fmt.Errorf("removing unchanged copy: %w", err)
			}
			delete(exp.Inputs, role)
			target = orig
		} else {
			changes = append(changes, Change{Role: role, Original: orig, Modified: current})
			target = current
		}
		rel, err := bundle.RelativeTo(target, exp.Dir)
		if err != nil {
			return nil, err
		}
		value, err := doc.FieldOptional(tag)
		if err != nil {
			return nil, err
		}
		value = strings.TrimSpace(value)
		if value == written[role] {
			value = rel
		} else {
			value = mergeReference(value, written[role], rel, role == bundle.RoleActuators)
		}
		if err := doc.SetField(tag, value); err != nil {
			return nil, err
		}
		logrus.Debugf("experiment %s: %s -> %s (changed=%t)", exp.Dir, role, value, !same)
	}
	if err := doc.Save(exp.Setup); err != nil {
		return nil, err
	}
	return changes, nil
}

// mergeReference swaps bundled for rel in the whitespace-separated edited
// value. When bundled does not appear, rel is prepended to a list and
// dropped otherwise.
func mergeReference(edited, bundled, rel string, list bool) string {
	fields := strings.Fields(edited)
	found := false
	for i, f := range fields {
		if bundled != "" && f == bundled {
			fields[i] = rel
			found = true
		}
	}
	if !found && list {
		fields = append([]string{rel}, fields...)
	}
	return strings.Join(fields, " ")
}

func sameContent(a, b string) (bool, error) {
	da, err := os.ReadFile(a)
	if err != nil {
		return false, fmt.Errorf("comparing inputs: %w", err)
	}
	db, err := os.ReadFile(b)
	if err != nil {
		return false, fmt.Errorf("comparing inputs: %w", err)
	}
	return bytes.Equal(da, db), nil
}
