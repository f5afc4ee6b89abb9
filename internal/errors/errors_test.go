package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderDefaults(t *testing.T) {
	err := Newf("something broke: %d", 42).Build()
	require.NotNil(t, err)
	assert.Equal(t, "something broke: 42", err.Error())
	assert.Equal(t, ComponentUnknown, err.Component)
	assert.Equal(t, CategoryGeneric, err.Category)
	assert.False(t, err.Timestamp.IsZero())
}

func TestBuilderMetadata(t *testing.T) {
	err := New(NewStd("experiment missing")).
		Component("datastore").
		Category(CategoryNotFound).
		Context("experiment", "e1").
		Build()

	assert.Equal(t, "datastore", err.Component)
	assert.True(t, IsNotFound(err))

	ctx := err.GetContext()
	require.NotNil(t, ctx)
	assert.Equal(t, "e1", ctx["experiment"])

	// Returned context is a copy
	ctx["experiment"] = "mutated"
	assert.Equal(t, "e1", err.GetContext()["experiment"])
}

func TestUnwrapPreservesSentinel(t *testing.T) {
	sentinel := NewStd("sample not found")
	err := New(sentinel).Category(CategoryNotFound).Build()

	assert.True(t, Is(err, sentinel))
	assert.True(t, IsCategory(err, CategoryNotFound))
	assert.False(t, IsCategory(err, CategoryConflict))
}

func TestIsCategoryOnPlainError(t *testing.T) {
	assert.False(t, IsCategory(NewStd("plain"), CategoryNotFound))
	assert.False(t, IsNotFound(nil))
}
