// Package samplestore stores audio assets on disk inside an os.Root
// sandbox. All access goes through scope + filename pairs: the empty scope
// is the global pool at the store root, any other scope is a per-experiment
// subdirectory created on demand. os.Root enforces the directory boundary
// at the OS level, so traversal via "..", absolute paths or symlinks cannot
// escape the asset root.
package samplestore

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pqtoolkit/pqtoolkit-go/internal/errors"
)

// ContentType is the media type assets are served with.
const ContentType = "audio/mpeg"

// Sentinel errors for asset store operations.
var (
	// ErrPathViolation indicates a scope or filename that is empty, contains
	// separators or otherwise escapes its pool.
	ErrPathViolation = errors.NewStd("path violation")

	// ErrFileNotFound indicates the named asset does not exist in the pool.
	ErrFileNotFound = errors.NewStd("sample file not found")

	// ErrFileExists indicates an upload would overwrite an existing asset.
	// Uploads are reject-on-conflict, never last-writer-wins.
	ErrFileExists = errors.NewStd("sample file already exists")
)

// Store is a sandboxed filesystem of sample pools.
type Store struct {
	baseDir string
	root    *os.Root
}

// New opens a store rooted at baseDir, creating the directory if needed.
func New(baseDir string) (*Store, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolving asset root: %w", err)
	}
	if err := os.MkdirAll(absPath, 0o750); err != nil {
		return nil, fmt.Errorf("creating asset root: %w", err)
	}

	root, err := os.OpenRoot(absPath)
	if err != nil {
		return nil, fmt.Errorf("opening asset root sandbox: %w", err)
	}

	return &Store{baseDir: absPath, root: root}, nil
}

// BaseDir returns the absolute path of the asset root.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// Close releases the underlying sandbox handle.
func (s *Store) Close() error {
	return s.root.Close()
}

// validateElement checks one path element: a scope or a filename. Elements
// must be single local names, never paths.
func validateElement(kind, name string) error {
	if name == "" ||
		name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) ||
		!filepath.IsLocal(name) {
		return errors.New(fmt.Errorf("%w: invalid %s %q", ErrPathViolation, kind, name)).
			Component("samplestore").
			Category(errors.CategoryPathViolation).
			Context(kind, name).
			Build()
	}
	return nil
}

// resolve validates scope and filename and joins them into a path relative
// to the sandbox root. An empty scope addresses the global pool.
func (s *Store) resolve(scope, filename string) (string, error) {
	if err := validateElement("filename", filename); err != nil {
		return "", err
	}
	if scope == "" {
		return filename, nil
	}
	if err := validateElement("scope", scope); err != nil {
		return "", err
	}
	return path.Join(scope, filename), nil
}

// ensureScope creates the pool directory for a non-empty scope.
func (s *Store) ensureScope(scope string) error {
	if scope == "" {
		return nil
	}
	if err := s.root.Mkdir(scope, 0o750); err != nil && !errors.Is(err, fs.ErrExist) {
		return fileIOError("creating pool directory", scope, err)
	}
	return nil
}

// Upload writes a new asset into the pool and returns its store-relative
// path. An existing file with the same name rejects the upload.
func (s *Store) Upload(scope, filename string, data io.Reader) (string, error) {
	target, err := s.resolve(scope, filename)
	if err != nil {
		return "", err
	}
	if err := s.ensureScope(scope); err != nil {
		return "", err
	}

	// O_EXCL makes the conflict check and the create one atomic operation.
	f, err := s.root.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", errors.New(fmt.Errorf("%w: %s", ErrFileExists, target)).
				Component("samplestore").
				Category(errors.CategoryConflict).
				Context("path", target).
				Build()
		}
		return "", fileIOError("creating sample file", target, err)
	}

	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = s.root.Remove(target)
		return "", fileIOError("writing sample file", target, err)
	}
	if err := f.Close(); err != nil {
		_ = s.root.Remove(target)
		return "", fileIOError("closing sample file", target, err)
	}
	return target, nil
}

// Open returns a forward-only reader over the asset's bytes. Callers wanting
// to restart a stream open the asset again.
func (s *Store) Open(scope, filename string) (io.ReadCloser, error) {
	target, err := s.resolve(scope, filename)
	if err != nil {
		return nil, err
	}

	f, err := s.root.Open(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fileNotFound(target)
		}
		return nil, fileIOError("opening sample file", target, err)
	}
	return f, nil
}

// List returns the filenames of the pool's assets in lexical order.
// Subdirectories are not descended into: nested pools are separate pools.
// A scope whose directory was never created lists as empty.
func (s *Store) List(scope string) ([]string, error) {
	dir := "."
	if scope != "" {
		if err := validateElement("scope", scope); err != nil {
			return nil, err
		}
		dir = scope
	}

	entries, err := fs.ReadDir(s.root.FS(), dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fileIOError("listing pool", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Remove deletes an asset from the pool.
func (s *Store) Remove(scope, filename string) error {
	target, err := s.resolve(scope, filename)
	if err != nil {
		return err
	}

	if err := s.root.Remove(target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fileNotFound(target)
		}
		return fileIOError("removing sample file", target, err)
	}
	return nil
}

// RemovePath deletes an asset by its store-relative path as recorded at
// upload time.
func (s *Store) RemovePath(storedPath string) error {
	scope, filename := SplitPath(storedPath)
	return s.Remove(scope, filename)
}

// OpenPath opens an asset by its store-relative path as recorded at upload
// time.
func (s *Store) OpenPath(storedPath string) (io.ReadCloser, error) {
	scope, filename := SplitPath(storedPath)
	return s.Open(scope, filename)
}

// Copy duplicates an asset's bytes from one pool into another under the
// same filename. The source is left intact; an existing file at the
// destination rejects the copy.
func (s *Store) Copy(srcScope, filename, dstScope string) (string, error) {
	src, err := s.Open(srcScope, filename)
	if err != nil {
		return "", err
	}
	defer func() { _ = src.Close() }()

	return s.Upload(dstScope, filename, src)
}

// SplitPath splits a store-relative path into its scope and filename.
// Paths without a separator address the global pool.
func SplitPath(storedPath string) (scope, filename string) {
	storedPath = strings.ReplaceAll(storedPath, `\`, "/")
	dir, file := path.Split(storedPath)
	return strings.Trim(dir, "/"), file
}

func fileNotFound(target string) error {
	return errors.New(fmt.Errorf("%w: %s", ErrFileNotFound, target)).
		Component("samplestore").
		Category(errors.CategoryNotFound).
		Context("path", target).
		Build()
}

func fileIOError(op, target string, err error) error {
	return errors.Newf("%s %s: %v", op, target, err).
		Component("samplestore").
		Category(errors.CategoryFileIO).
		Context("path", target).
		Build()
}
