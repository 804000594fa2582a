package cmd

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaitlab/osimctl/osim/bundle"
	"github.com/gaitlab/osimctl/osim/setup"
)

func TestParseSubstitutions_KeepsOrderAndSplitsOnFirstEquals(t *testing.T) {
	got, err := parseSubstitutions([]string{`C:\data=/mnt/data`, "a=b=c"})
	require.NoError(t, err)
	want := []bundle.Substitution{{Old: `C:\data`, New: "/mnt/data"}, {Old: "a", New: "b=c"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("substitutions mismatch (-want +got):\n%s", diff)
	}

	_, err = parseSubstitutions([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseSubstitutions([]string{"=x"})
	assert.Error(t, err)
}

func TestParseRoles(t *testing.T) {
	got, err := parseRoles([]string{"desired_kinematics", "force_plates"})
	require.NoError(t, err)
	assert.Equal(t, []bundle.Role{bundle.RoleDesiredKinematics, bundle.RoleForcePlates}, got)

	_, err = parseRoles([]string{"kinematics"})
	assert.Error(t, err)
}

func TestParseRenames(t *testing.T) {
	got, err := parseRenames([]string{"setup=cmc_setup.xml", "model=subject.osim"})
	require.NoError(t, err)
	assert.Equal(t, map[bundle.Role]string{bundle.RoleSetup: "cmc_setup.xml", bundle.RoleModel: "subject.osim"}, got)

	_, err = parseRenames([]string{"nope=x"})
	assert.Error(t, err)
}

func TestParseWeightOverrides(t *testing.T) {
	got, err := parseWeightOverrides([]string{"knee_angle_r=20", "hip_flexion_r= 7.5", "knee_angle_r=25"})
	require.NoError(t, err)
	assert.Equal(t, setup.Weights{{Task: "knee_angle_r", Value: 25}, {Task: "hip_flexion_r", Value: 7.5}}, got)

	_, err = parseWeightOverrides([]string{"knee_angle_r=heavy"})
	assert.Error(t, err)
}
