package samplestore

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pqtoolkit/pqtoolkit-go/internal/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "samples"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestUploadAndOpenRoundTrip(t *testing.T) {
	store := newTestStore(t)

	stored, err := store.Upload("exp1", "drums.mp3", strings.NewReader("audio-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "exp1/drums.mp3", stored)

	r, err := store.Open("exp1", "drums.mp3")
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "audio-bytes", string(data))
}

func TestUploadGlobalPool(t *testing.T) {
	store := newTestStore(t)

	stored, err := store.Upload("", "ref.mp3", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "ref.mp3", stored)

	names, err := store.List("")
	require.NoError(t, err)
	assert.Equal(t, []string{"ref.mp3"}, names)
}

func TestUploadConflictRejected(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Upload("exp1", "a.mp3", strings.NewReader("first"))
	require.NoError(t, err)

	_, err = store.Upload("exp1", "a.mp3", strings.NewReader("second"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFileExists))
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict))

	// Original content untouched
	r, err := store.Open("exp1", "a.mp3")
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
}

func TestPathViolations(t *testing.T) {
	store := newTestStore(t)

	bad := []struct {
		scope    string
		filename string
	}{
		{"exp1", "../escape.mp3"},
		{"exp1", "a/b.mp3"},
		{"exp1", `a\b.mp3`},
		{"exp1", ".."},
		{"exp1", "."},
		{"exp1", ""},
		{"../exp1", "a.mp3"},
		{"..", "a.mp3"},
		{"/abs", "a.mp3"},
	}
	for _, tc := range bad {
		_, err := store.Upload(tc.scope, tc.filename, strings.NewReader("x"))
		require.Error(t, err, "scope=%q filename=%q", tc.scope, tc.filename)
		assert.True(t, errors.Is(err, ErrPathViolation), "scope=%q filename=%q", tc.scope, tc.filename)
		assert.True(t, errors.IsCategory(err, errors.CategoryPathViolation))

		_, err = store.Open(tc.scope, tc.filename)
		assert.True(t, errors.Is(err, ErrPathViolation), "open scope=%q filename=%q", tc.scope, tc.filename)
	}

	// Nothing escaped the sandbox
	_, err := os.Stat(filepath.Join(filepath.Dir(store.BaseDir()), "escape.mp3"))
	assert.True(t, os.IsNotExist(err))
}

func TestOpenMissingFile(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Open("exp1", "missing.mp3")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFileNotFound))
	assert.True(t, errors.IsNotFound(err))
}

func TestListScopesAreIsolated(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Upload("exp1", "b.mp3", strings.NewReader("x"))
	require.NoError(t, err)
	_, err = store.Upload("exp1", "a.mp3", strings.NewReader("x"))
	require.NoError(t, err)
	_, err = store.Upload("exp2", "c.mp3", strings.NewReader("x"))
	require.NoError(t, err)

	names, err := store.List("exp1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.mp3", "b.mp3"}, names)

	names, err = store.List("exp2")
	require.NoError(t, err)
	assert.Equal(t, []string{"c.mp3"}, names)

	// Global pool lists files only, not the scope directories
	names, err = store.List("")
	require.NoError(t, err)
	assert.Empty(t, names)

	// A pool that never saw an upload is empty, not an error
	names, err = store.List("exp3")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestRemove(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Upload("exp1", "a.mp3", strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, store.Remove("exp1", "a.mp3"))

	err = store.Remove("exp1", "a.mp3")
	assert.True(t, errors.Is(err, ErrFileNotFound))
}

func TestCopyBetweenPools(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Upload("", "shared.mp3", strings.NewReader("payload"))
	require.NoError(t, err)

	stored, err := store.Copy("", "shared.mp3", "exp1")
	require.NoError(t, err)
	assert.Equal(t, "exp1/shared.mp3", stored)

	// Source intact, destination readable
	for _, scope := range []string{"", "exp1"} {
		r, err := store.Open(scope, "shared.mp3")
		require.NoError(t, err)
		data, err := io.ReadAll(r)
		require.NoError(t, err)
		require.NoError(t, r.Close())
		assert.Equal(t, "payload", string(data))
	}

	// Copying again conflicts at the destination
	_, err = store.Copy("", "shared.mp3", "exp1")
	assert.True(t, errors.Is(err, ErrFileExists))
}

func TestSplitPath(t *testing.T) {
	cases := []struct {
		path  string
		scope string
		file  string
	}{
		{"exp1/a.mp3", "exp1", "a.mp3"},
		{"a.mp3", "", "a.mp3"},
		{`exp1\a.mp3`, "exp1", "a.mp3"},
	}
	for _, tc := range cases {
		scope, file := SplitPath(tc.path)
		assert.Equal(t, tc.scope, scope, tc.path)
		assert.Equal(t, tc.file, file, tc.path)
	}
}
