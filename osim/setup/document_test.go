package setup

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rraSetup = `<?xml version="1.0" encoding="UTF-8"?>
<OpenSimDocument Version="30000">
	<!-- hand-tuned for subject 01 -->
	<RRATool name="subject01">
		<model_file> subject01.osim</model_file>
		<task_set_file>tasks.xml</task_set_file>
		<results_directory>out</results_directory>
		<AnalysisSet>
			<objects>
				<Actuation name="act"><on>true</on></Actuation>
				<Kinematics name="kin"><on>true</on></Kinematics>
			</objects>
		</AnalysisSet>
	</RRATool>
</OpenSimDocument>
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestField_UniqueElement(t *testing.T) {
	doc, err := Parse(rraSetup)
	require.NoError(t, err)

	v, err := doc.Field("model_file")
	require.NoError(t, err)
	assert.Equal(t, " subject01.osim", v)

	name, err := doc.Attr("RRATool", "name")
	require.NoError(t, err)
	assert.Equal(t, "subject01", name)
}

func TestField_Missing_ReturnsErrFieldNotFound(t *testing.T) {
	doc, err := Parse(rraSetup)
	require.NoError(t, err)

	_, err = doc.Field("constraints_file")
	assert.True(t, errors.Is(err, ErrFieldNotFound), "got %v", err)

	err = doc.SetField("constraints_file", "x")
	assert.True(t, errors.Is(err, ErrFieldNotFound), "got %v", err)

	v, err := doc.FieldOptional("constraints_file")
	assert.NoError(t, err)
	assert.Empty(t, v)
}

func TestField_Duplicate_ReturnsErrAmbiguousField(t *testing.T) {
	doc, err := Parse(rraSetup)
	require.NoError(t, err)

	// <on> appears once per analysis
	_, err = doc.Field("on")
	assert.True(t, errors.Is(err, ErrAmbiguousField), "got %v", err)
	_, err = doc.FieldOptional("on")
	assert.True(t, errors.Is(err, ErrAmbiguousField), "got %v", err)
}

func TestField_InvalidTag_ReturnsError(t *testing.T) {
	doc, err := Parse(rraSetup)
	require.NoError(t, err)
	_, err = doc.Field("a/b")
	assert.Error(t, err)
	assert.False(t, doc.HasField(""))
}

func TestSetField_SaveAndReload_ExactString(t *testing.T) {
	path := writeFile(t, "setup.xml", rraSetup)
	doc, err := Load(path)
	require.NoError(t, err)

	written := "  ../models/subject01 scaled.osim "
	require.NoError(t, doc.SetField("model_file", written))
	require.NoError(t, doc.Save(path))

	reloaded, err := Load(path)
	require.NoError(t, err)
	got, err := reloaded.Field("model_file")
	require.NoError(t, err)
	assert.Equal(t, written, got)

	// Comments survive the rewrite
	assert.Contains(t, reloaded.String(), "hand-tuned for subject 01")
}

func TestAttr_MissingAttribute(t *testing.T) {
	doc, err := Parse(rraSetup)
	require.NoError(t, err)
	_, err = doc.Attr("model_file", "name")
	assert.True(t, errors.Is(err, ErrFieldNotFound))
}
