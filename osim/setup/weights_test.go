package setup

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const taskSet = `<?xml version="1.0" encoding="UTF-8"?>
<OpenSimDocument Version="30000">
	<CMC_TaskSet name="rra_tasks">
		<defaults>
			<CMC_Joint name="default"><weight>1</weight></CMC_Joint>
		</defaults>
		<objects>
			<!-- pelvis -->
			<CMC_Joint name="pelvis_tx"><on>true</on><weight>5</weight></CMC_Joint>
			<CMC_Joint name="hip_flexion_r"><on>true</on><weight> 20.5 </weight></CMC_Joint>
			<CMC_Joint name="knee_angle_r"><on>true</on><weight>10</weight></CMC_Joint>
		</objects>
	</CMC_TaskSet>
</OpenSimDocument>
`

func TestTaskNames_SkipsDefaults(t *testing.T) {
	doc, err := Parse(taskSet)
	require.NoError(t, err)
	assert.Equal(t, []string{"pelvis_tx", "hip_flexion_r", "knee_angle_r"}, doc.TaskNames())
}

func TestWeights_OrderFollowsRequestedNames(t *testing.T) {
	doc, err := Parse(taskSet)
	require.NoError(t, err)

	w, err := doc.Weights([]string{"knee_angle_r", "pelvis_tx", "hip_flexion_r"})
	require.NoError(t, err)
	assert.Equal(t, Weights{
		{Task: "knee_angle_r", Value: 10},
		{Task: "pelvis_tx", Value: 5},
		{Task: "hip_flexion_r", Value: 20.5},
	}, w)
}

func TestWeights_UnknownTask_ReturnsError(t *testing.T) {
	doc, err := Parse(taskSet)
	require.NoError(t, err)
	_, err = doc.Weights([]string{"lumbar_extension"})
	assert.True(t, errors.Is(err, ErrFieldNotFound), "got %v", err)
}

func TestWeights_IgnoresUnrequestedTasks(t *testing.T) {
	doc, err := Parse(`<CMC_TaskSet><objects>
		<CMC_Joint name="pelvis_tx"><on>false</on></CMC_Joint>
		<CMC_Joint name="knee_angle_r"><weight>oops</weight></CMC_Joint>
		<CMC_Joint name="hip_flexion_r"><weight>3</weight></CMC_Joint>
	</objects></CMC_TaskSet>`)
	require.NoError(t, err)

	w, err := doc.Weights([]string{"hip_flexion_r"})
	require.NoError(t, err)
	assert.Equal(t, Weights{{Task: "hip_flexion_r", Value: 3}}, w)

	_, err = doc.Weights([]string{"pelvis_tx"})
	assert.Error(t, err)
}

func TestWriteWeights_FloatFormat_RoundTrip(t *testing.T) {
	path := writeFile(t, "tasks.xml", taskSet)

	err := WriteWeights(path, Weights{{Task: "knee_angle_r", Value: 13.75}}, FormatFloat)
	require.NoError(t, err)

	doc, err := Load(path)
	require.NoError(t, err)
	w, err := doc.Weights(doc.TaskNames())
	require.NoError(t, err)
	assert.Equal(t, Weights{
		{Task: "pelvis_tx", Value: 5},
		{Task: "hip_flexion_r", Value: 20.5},
		{Task: "knee_angle_r", Value: 13.75},
	}, w)
	assert.Contains(t, doc.String(), "<weight>13.750000</weight>")
	assert.Contains(t, doc.String(), "<!-- pelvis -->")
	// defaults untouched
	assert.Contains(t, doc.String(), `<CMC_Joint name="default"><weight>1</weight>`)
}

func TestWriteWeights_IntFormat_Truncates(t *testing.T) {
	path := writeFile(t, "tasks.xml", taskSet)
	require.NoError(t, WriteWeights(path, Weights{{Task: "pelvis_tx", Value: 13.75}}, FormatInt))

	w, err := ReadWeights(path, []string{"pelvis_tx"})
	require.NoError(t, err)
	v, ok := w.Get("pelvis_tx")
	require.True(t, ok)
	assert.Equal(t, 13.0, v)
}

func TestWeightFormat_Render(t *testing.T) {
	assert.Equal(t, "2.500000", FormatFloat.Render(2.5))
	assert.Equal(t, "-2", FormatInt.Render(-2.9))
	assert.Equal(t, "0", FormatInt.Render(0.4))
	assert.Equal(t, "0", FormatInt.Render(-0.4))
	assert.Equal(t, "100000000000000000000", FormatInt.Render(1e20))
}

func TestWeights_SetAndClone(t *testing.T) {
	w := Weights{{Task: "a", Value: 1}}
	c := w.Clone()
	c.Set("a", 2)
	c.Set("b", 3)

	v, _ := w.Get("a")
	assert.Equal(t, 1.0, v)
	assert.Equal(t, []string{"a", "b"}, c.Names())
}
