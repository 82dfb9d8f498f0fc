package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleOut struct {
	Summary string   `json:"summary" prompt_desc:"One paragraph."`
	Items   []string `json:"items,omitempty" prompt:"optional"`
	Nested  struct {
		A int `json:"a"`
	} `json:"nested" prompt_type:"{a:int}"`
	Hidden string `json:"hidden" prompt:"-"`
	secret string
}

func TestFieldsOf(t *testing.T) {
	_ = sampleOut{}.secret
	fields, err := FieldsOf(sampleOut{})
	require.NoError(t, err)
	assert.Equal(t, []Field{
		{Name: "summary", Type: "string", Required: true, Description: "One paragraph."},
		{Name: "items", Type: "[]string", Required: false},
		{Name: "nested", Type: "{a:int}", Required: true},
	}, fields)

	_, err = FieldsOf(42)
	assert.Error(t, err)
}

func TestRenderSections(t *testing.T) {
	spec := ApplyPresets(Spec{
		Purpose:      "Describe the thing.",
		OutputFields: MustFieldsOf(sampleOut{}),
		Rules:        []string{"Be brief."},
	}, PresetStrictJSON())

	out, err := Render(spec, map[string]any{"repo": "acme/widgets"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "[PURPOSE]\nDescribe the thing.\n"))
	assert.Contains(t, out, "[INPUT]\n{\n  \"repo\": \"acme/widgets\"\n}")
	assert.Contains(t, out, "- summary (string, required): One paragraph.")
	assert.Contains(t, out, "[CONSTRAINTS]\n- Return a single JSON object")
	assert.NotContains(t, out, "[BACKGROUND]")

	_, err = Render(Spec{}, nil)
	assert.Error(t, err)
}
