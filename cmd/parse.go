package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gaitlab/osimctl/osim/bundle"
	"github.com/gaitlab/osimctl/osim/setup"
)

// splitPair splits "key=value" at the first '='.
func splitPair(s string) (string, string, error) {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return "", "", fmt.Errorf("expected key=value, got %q", s)
	}
	return k, v, nil
}

// parseSubstitutions reads repeated --replace old=new flags in order.
func parseSubstitutions(pairs []string) ([]bundle.Substitution, error) {
	var out []bundle.Substitution
	for _, p := range pairs {
		k, v, err := splitPair(p)
		if err != nil {
			return nil, err
		}
		out = append(out, bundle.Substitution{Old: k, New: v})
	}
	return out, nil
}

var knownRoles = []bundle.Role{
	bundle.RoleSetup, bundle.RoleModel, bundle.RoleTasks, bundle.RoleActuators,
	bundle.RoleControlConstraints, bundle.RoleDesiredKinematics, bundle.RoleCoordinates,
	bundle.RoleExternalLoads, bundle.RoleForcePlates, bundle.RoleExtloadKinematics,
}

func parseRole(s string) (bundle.Role, error) {
	for _, r := range knownRoles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown input role %q", s)
}

func parseRoles(names []string) ([]bundle.Role, error) {
	var out []bundle.Role
	for _, n := range names {
		r, err := parseRole(n)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// parseRenames reads role=filename pairs.
func parseRenames(pairs []string) (map[bundle.Role]string, error) {
	out := make(map[bundle.Role]string, len(pairs))
	for _, p := range pairs {
		k, v, err := splitPair(p)
		if err != nil {
			return nil, err
		}
		r, err := parseRole(k)
		if err != nil {
			return nil, err
		}
		out[r] = v
	}
	return out, nil
}

// parseWeightOverrides reads task=weight pairs, preserving flag order.
func parseWeightOverrides(pairs []string) (setup.Weights, error) {
	var out setup.Weights
	for _, p := range pairs {
		k, v, err := splitPair(p)
		if err != nil {
			return nil, err
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("weight for %s: %w", k, err)
		}
		out.Set(k, w)
	}
	return out, nil
}
