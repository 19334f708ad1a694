package hierarchy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stoxyerr "github.com/stoxy/stoxy/internal/errors"
)

func TestMetadataNotShared(t *testing.T) {
	shared := map[string]string{"a": "1"}
	e1 := NewContainer("one", shared)
	e2 := NewContainer("two", shared)
	e3 := NewContainer("three", nil)

	e1.Metadata["a"] = "changed"
	e3.Metadata["x"] = "y"

	assert.Equal(t, "1", shared["a"])
	assert.Equal(t, "1", e2.Metadata["a"])
	assert.NotContains(t, NewContainer("four", nil).Metadata, "x")
	assert.NotEqual(t, e1.ID, e2.ID)
}

func TestKindForMediaType(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
		ok   bool
	}{
		{"application/cdmi-container", KindContainer, true},
		{"application/cdmi-object; charset=utf-8", KindDataObject, true},
		{"Application/CDMI-Object", KindDataObject, true},
		{"text/plain", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		k, ok := KindForMediaType(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, k, tt.in)
	}
	assert.Equal(t, MediaTypeContainer, KindContainer.MediaType())
	assert.Equal(t, MediaTypeObject, KindDataObject.MediaType())
}

func TestValidate(t *testing.T) {
	ok := NewDataObject("fine.txt", "text/plain", nil)
	require.NoError(t, ok.Validate())

	tests := []struct {
		name  string
		mod   func(e *Entity)
		field string
	}{
		{"empty name", func(e *Entity) { e.Name = "" }, "objectName"},
		{"dot", func(e *Entity) { e.Name = ".." }, "objectName"},
		{"slash", func(e *Entity) { e.Name = "a/b" }, "objectName"},
		{"long name", func(e *Entity) { e.Name = strings.Repeat("n", 256) }, "objectName"},
		{"bad id", func(e *Entity) { e.ID = "xyz" }, "objectID"},
		{"bad value", func(e *Entity) { e.Value = "/not/a/uri" }, "value"},
		{"negative length", func(e *Entity) { e.ContentLength = -5 }, "content_length"},
		{"empty metadata key", func(e *Entity) { e.Metadata[""] = "v" }, "metadata"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewDataObject("fine.txt", "text/plain", nil)
			tt.mod(e)
			err := e.Validate()
			require.ErrorIs(t, err, stoxyerr.ErrValidationFailed)
			var verr *stoxyerr.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}

	c := NewContainer("c", nil)
	c.Value = "file:///x"
	assert.ErrorIs(t, c.Validate(), stoxyerr.ErrValidationFailed)
}

func TestApplyLeavesUnsetFields(t *testing.T) {
	e := NewDataObject("o", "text/plain", map[string]string{"k": "v"})
	id := e.ID
	length := int64(42)
	e.Apply(Patch{ContentLength: &length})

	assert.Equal(t, id, e.ID)
	assert.Equal(t, "o", e.Name)
	assert.Equal(t, "text/plain", e.MimeType)
	assert.Equal(t, int64(42), e.ContentLength)
	assert.Equal(t, map[string]string{"k": "v"}, e.Metadata)

	md := map[string]string{"new": "x"}
	e.Apply(Patch{Metadata: md})
	md["new"] = "mutated"
	assert.Equal(t, map[string]string{"new": "x"}, e.Metadata)
}
