// Package bundle copies the set of files a simulation run depends on into
// an isolated directory and rewrites the setup documents so the copy is
// self-contained.
package bundle

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/gaitlab/osimctl/osim/setup"
)

// ResultsDirectory is written into every bundled setup.
const ResultsDirectory = "results"

// Options tunes Copy.
type Options struct {
	Profile   Profile         // fields to follow; zero value means ProfileCMC
	Replace   []Substitution  // applied to references that do not exist as written
	DoNotCopy []Role          // roles left in place and referenced by relative path
	Rename    map[Role]string // new base names for copied files
}

// Manifest records where each role's file came from and where it went.
// Roles whose reference is blank are absent from both maps; roles left in
// place appear only in Original.
type Manifest struct {
	Original map[Role]string
	Copied   map[Role]string
}

func (o Options) skip(role Role) bool {
	for _, r := range o.DoNotCopy {
		if r == role {
			return true
		}
	}
	return false
}

func (o Options) fileName(role Role, original string) string {
	if name, ok := o.Rename[role]; ok && name != "" {
		return name
	}
	return filepath.Base(original)
}

// Copy bundles the inputs of the setup file at setupPath into destination.
func Copy(setupPath, destination string, opts Options) (*Manifest, error) {
	if len(opts.Profile.Fields) == 0 {
		opts.Profile = ProfileCMC
	}
	if opts.skip(RoleSetup) || opts.skip(RoleExternalLoads) {
		return nil, fmt.Errorf("do-not-copy cannot contain %q or %q", RoleSetup, RoleExternalLoads)
	}

	doc, err := setup.Load(setupPath)
	if err != nil {
		return nil, err
	}

	m := &Manifest{Original: map[Role]string{RoleSetup: setupPath}, Copied: map[Role]string{}}

	if err := resolveFields(m, doc, setupPath, opts.Profile.Fields, opts.Replace); err != nil {
		return nil, err
	}

	var extLoads *setup.Document
	if extPath, ok := m.Original[RoleExternalLoads]; ok {
		extLoads, err = setup.Load(extPath)
		if err != nil {
			return nil, err
		}
		if err := resolveFields(m, extLoads, extPath, externalLoadsFields, opts.Replace); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(destination, 0755); err != nil {
		return nil, fmt.Errorf("creating destination: %w", err)
	}

	if err := copyFiles(m, destination, opts); err != nil {
		return nil, err
	}

	// Point the setup documents at the copies.
	if doc.HasField("results_directory") {
		if err := doc.SetField("results_directory", ResultsDirectory); err != nil {
			return nil, err
		}
	}
	if err := rewriteFields(m, doc, opts.Profile.Fields, destination, opts); err != nil {
		return nil, fmt.Errorf("%s: %w", setupPath, err)
	}

	if extLoads != nil {
		if err := rewriteFields(m, extLoads, externalLoadsFields, destination, opts); err != nil {
			return nil, fmt.Errorf("%s: %w", m.Original[RoleExternalLoads], err)
		}
		extDest := filepath.Join(destination, opts.fileName(RoleExternalLoads, m.Original[RoleExternalLoads]))
		if err := extLoads.Save(extDest); err != nil {
			return nil, err
		}
		m.Copied[RoleExternalLoads] = extDest
	}

	setupDest := filepath.Join(destination, opts.fileName(RoleSetup, setupPath))
	if err := doc.Save(setupDest); err != nil {
		return nil, err
	}
	m.Copied[RoleSetup] = setupDest

	logrus.Debugf("bundled %d inputs of %s into %s", len(m.Copied), setupPath, destination)
	return m, nil
}

func resolveFields(m *Manifest, doc *setup.Document, containing string, fields []Field, replace []Substitution) error {
	for _, f := range fields {
		raw, err := doc.FieldOptional(f.Tag)
		if err != nil {
			return fmt.Errorf("%s: %w", containing, err)
		}
		path, ok, err := Resolve(containing, raw, replace)
		if err != nil {
			return fmt.Errorf("resolving <%s>: %w", f.Tag, err)
		}
		if ok {
			m.Original[f.Role] = path
		}
	}
	return nil
}

func copyFiles(m *Manifest, destination string, opts Options) error {
	roles := make([]string, 0, len(m.Original))
	for r := range m.Original {
		roles = append(roles, string(r))
	}
	sort.Strings(roles)

	written := make(map[string]string) // destination -> source
	for _, r := range roles {
		role := Role(r)
		if role == RoleSetup || role == RoleExternalLoads || opts.skip(role) {
			continue
		}
		src := m.Original[role]
		dst := filepath.Join(destination, opts.fileName(role, src))
		if prev, ok := written[dst]; ok && !sameFile(prev, src) {
			return fmt.Errorf("%s and %s would both be copied to %s", prev, src, dst)
		}
		if err := copyFile(src, dst); err != nil {
			return err
		}
		written[dst] = src
		m.Copied[role] = dst
	}
	return nil
}

func rewriteFields(m *Manifest, doc *setup.Document, fields []Field, destination string, opts Options) error {
	for _, f := range fields {
		orig, ok := m.Original[f.Role]
		if !ok {
			continue
		}
		var value string
		if opts.skip(f.Role) {
			rel, err := RelativeTo(orig, destination)
			if err != nil {
				return err
			}
			value = rel
		} else {
			value = opts.fileName(f.Role, orig)
		}
		if err := doc.SetField(f.Tag, value); err != nil {
			return err
		}
	}
	return nil
}

// RelativeTo expresses path relative to dir.
func RelativeTo(path, dir string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return "", fmt.Errorf("relative path from %s to %s: %w", dir, path, err)
	}
	return rel, nil
}

func sameFile(a, b string) bool {
	ia, err := os.Stat(a)
	if err != nil {
		return false
	}
	ib, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ia, ib)
}

func copyFile(src, dst string) error {
	if sameFile(src, dst) {
		return nil
	}
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("copying %s: %w", src, err)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("copying %s: %w", src, err)
	}
	if err := os.WriteFile(dst, data, info.Mode().Perm()); err != nil {
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return nil
}
