package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaitlab/osimctl/osim/bundle"
	"github.com/gaitlab/osimctl/osim/experiment"
	"github.com/gaitlab/osimctl/osim/setup"
)

const editableTaskSet = `<OpenSimDocument>
	<CMC_TaskSet>
		<objects>
			<CMC_Joint name="hip_flexion_r"><weight>10</weight></CMC_Joint>
			<CMC_Joint name="knee_angle_r"><weight>10</weight></CMC_Joint>
		</objects>
	</CMC_TaskSet>
</OpenSimDocument>
`

func TestWeightEdit_RewritesOnlyNamedTasks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.xml")
	require.NoError(t, os.WriteFile(path, []byte(editableTaskSet), 0644))

	edit := weightEdit(setup.Weights{{Task: "knee_angle_r", Value: 22.9}}, setup.FormatInt)
	require.NoError(t, edit(experiment.Inputs{bundle.RoleTasks: path}, "/orig/setup.xml"))

	w, err := setup.ReadWeights(path, []string{"hip_flexion_r", "knee_angle_r"})
	require.NoError(t, err)
	assert.Equal(t, setup.Weights{{Task: "hip_flexion_r", Value: 10}, {Task: "knee_angle_r", Value: 22}}, w)
}

func TestWeightEdit_UnknownTask(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.xml")
	require.NoError(t, os.WriteFile(path, []byte(editableTaskSet), 0644))

	edit := weightEdit(setup.Weights{{Task: "ankle_angle_r", Value: 5}}, setup.FormatFloat)
	err := edit(experiment.Inputs{bundle.RoleTasks: path}, "")
	assert.True(t, errors.Is(err, setup.ErrFieldNotFound), "got %v", err)
}

func TestWeightEdit_NoOverridesIsNoOp(t *testing.T) {
	edit := weightEdit(nil, setup.FormatFloat)
	assert.NoError(t, edit(experiment.Inputs{}, ""))

	edit = weightEdit(setup.Weights{{Task: "x", Value: 1}}, setup.FormatFloat)
	assert.Error(t, edit(experiment.Inputs{}, ""), "a setup without a task set cannot take weight edits")
}
