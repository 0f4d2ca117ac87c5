package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNew(t *testing.T) {
	c, err := New([]string{"toyota_camry_2018", "honda_civic_2016", "suv"})
	require.NoError(t, err)

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, Category{ID: "honda_civic_2016", Index: 1}, c.At(1))

	got, ok := c.Lookup("suv")
	require.True(t, ok)
	assert.Equal(t, 2, got.Index)

	_, ok = c.Lookup("missing")
	assert.False(t, ok)
}

func TestNewRejectsBadIDs(t *testing.T) {
	tests := []struct {
		name string
		ids  []string
	}{
		{"empty list", nil},
		{"empty id", []string{"a", ""}},
		{"duplicate", []string{"sedan_2020", "sedan_2020"}},
		{"empty token", []string{"sedan__2020"}},
		{"leading separator", []string{"_sedan"}},
		{"dot dot", []string{"cars_.._etc"}},
		{"slash", []string{"cars/sedan"}},
		{"backslash", []string{`cars\sedan`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.ids)
			require.Error(t, err)
		})
	}
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"toyota", "camry", "2018"}, Tokens("toyota_camry_2018"))
	assert.Equal(t, []string{"suv"}, Tokens("suv"))
	assert.Equal(t, []string{"a", "b"}, Category{ID: "a_b"}.Tokens())
}

func TestValidate(t *testing.T) {
	c, err := New([]string{"a", "b", "c", "d"})
	require.NoError(t, err)

	require.NoError(t, c.Validate(4))

	err = c.Validate(5)
	var me *MismatchError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, 4, me.Categories)
	assert.Equal(t, 5, me.Scores)
}

func TestLoadArray(t *testing.T) {
	path := writeFile(t, "categories.json", `["toyota_camry_2018", "honda_civic_2016"]`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, "toyota_camry_2018", c.At(0).ID)
}

func TestLoadMetadata(t *testing.T) {
	path := writeFile(t, "model_metadata.json", `{
		"input_shape": [1, 224, 224, 3],
		"output_shape": [1, 2],
		"classes": ["sedan_2020", "suv"],
		"image_size": 224
	}`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []Category{{ID: "sedan_2020", Index: 0}, {ID: "suv", Index: 1}}, c.All())
}

func TestLoadMetadataShapeMismatch(t *testing.T) {
	path := writeFile(t, "model_metadata.json", `{"output_shape": [1, 3], "classes": ["a", "b"]}`)

	_, err := Load(path)
	var me *MismatchError
	require.ErrorAs(t, err, &me)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)

	_, err = Load(writeFile(t, "empty.json", "  \n"))
	require.Error(t, err)

	_, err = Load(writeFile(t, "bad.json", `["a", 1]`))
	require.Error(t, err)

	_, err = Load(writeFile(t, "none.json", `[]`))
	require.Error(t, err)
}

func TestAllReturnsCopy(t *testing.T) {
	c, err := New([]string{"a", "b"})
	require.NoError(t, err)

	all := c.All()
	all[0].ID = "changed"
	assert.Equal(t, "a", c.At(0).ID)
}
