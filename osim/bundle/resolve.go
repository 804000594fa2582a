package bundle

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Substitution replaces Old with New inside a referenced path.
type Substitution struct {
	Old string `yaml:"old"`
	New string `yaml:"new"`
}

// UnresolvedPathError reports a reference that matched no existing file.
type UnresolvedPathError struct {
	Containing string   // file holding the reference
	Raw        string   // reference text as written
	Tried      []string // candidates, in the order they were tried
}

func (e *UnresolvedPathError) Error() string {
	return fmt.Sprintf("path %q referenced from %s does not exist (tried %s)",
		e.Raw, e.Containing, strings.Join(e.Tried, ", "))
}

// Candidates returns the paths Resolve tries for raw, in order: as written;
// with the substitutions applied; with backslashes turned into slashes;
// then joined to the containing file's directory as is, left-trimmed, and
// right-trimmed.
func Candidates(containing, raw string, replace []Substitution) []string {
	out := []string{raw}

	p := raw
	for _, s := range replace {
		p = strings.ReplaceAll(p, s.Old, s.New)
	}
	out = append(out, p)

	p = strings.ReplaceAll(p, `\`, "/")
	out = append(out, p)

	dir := filepath.Dir(containing)
	out = append(out,
		joinDir(dir, p),
		joinDir(dir, strings.TrimLeft(p, " \t\r\n")),
		joinDir(dir, strings.TrimRight(p, " \t\r\n")),
	)
	return out
}

func joinDir(dir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(dir, p)
}

// Resolve finds the existing file that raw, referenced from containing,
// points at. A blank reference resolves to ("", false, nil).
func Resolve(containing, raw string, replace []Substitution) (string, bool, error) {
	if strings.TrimSpace(raw) == "" {
		return "", false, nil
	}
	tried := Candidates(containing, raw, replace)
	for _, c := range tried {
		if _, err := os.Stat(c); err == nil {
			return c, true, nil
		}
	}
	return "", false, &UnresolvedPathError{Containing: containing, Raw: raw, Tried: tried}
}
