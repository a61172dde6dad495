// Package artifact persists named JSON payloads under the fixed category
// taxonomy of an export directory.
package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

var ErrNotFound = errors.New("artifact not found")

// Category is a top-level artifact directory.
type Category string

const (
	Metadata     Category = "metadata"
	Structure    Category = "structure"
	Styles       Category = "styles"
	Components   Category = "components"
	Nodes        Category = "nodes"
	Interactions Category = "interactions"
	Overrides    Category = "overrides"
	Annotations  Category = "annotations"
	Batches      Category = "batches"
	Images       Category = "images"
)

// Categories lists every category in taxonomy order.
var Categories = []Category{
	Metadata, Structure, Styles, Components, Nodes,
	Interactions, Overrides, Annotations, Batches, Images,
}

// ReorganizedDir is the sibling tree written by the reorganizer.
const ReorganizedDir = "reorganized"

// Store writes pretty-printed JSON files keyed by category + name.
// A later write with the same key overwrites; nothing is merged in place.
type Store struct {
	fs billy.Filesystem
}

// NewStore wraps fs.
func NewStore(fs billy.Filesystem) *Store {
	return &Store{fs: fs}
}

// Open returns a store rooted at dir on the local disk.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: create %s: %w", dir, err)
	}
	return NewStore(osfs.New(dir)), nil
}

// Filesystem exposes the underlying filesystem.
func (s *Store) Filesystem() billy.Filesystem {
	return s.fs
}

// Init creates every category directory.
func (s *Store) Init() error {
	for _, c := range Categories {
		if err := s.fs.MkdirAll(string(c), 0o755); err != nil {
			return fmt.Errorf("artifact: create %s: %w", c, err)
		}
	}
	return nil
}

// Reset removes every category directory and the reorganized tree, then
// recreates the empty taxonomy.
func (s *Store) Reset() error {
	dirs := make([]string, 0, len(Categories)+1)
	for _, c := range Categories {
		dirs = append(dirs, string(c))
	}
	dirs = append(dirs, ReorganizedDir)
	for _, d := range dirs {
		if err := util.RemoveAll(s.fs, d); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("artifact: clear %s: %w", d, err)
		}
	}
	return s.Init()
}

// Path returns the slash path of an artifact relative to the store root.
func Path(c Category, name string) string {
	return path.Join(string(c), fileName(name))
}

func fileName(name string) string {
	if strings.HasSuffix(name, ".json") {
		return name
	}
	return name + ".json"
}

// Save encodes v as indented JSON and writes it.
func (s *Store) Save(c Category, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact: encode %s: %w", Path(c, name), err)
	}
	return s.write(Path(c, name), data)
}

// SaveRaw re-indents raw JSON and writes it. An empty payload is stored
// as null.
func (s *Store) SaveRaw(c Category, name string, raw json.RawMessage) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("null")
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return fmt.Errorf("artifact: invalid json for %s: %w", Path(c, name), err)
	}
	return s.write(Path(c, name), buf.Bytes())
}

// write replaces p through a temp file and rename, so readers never see a
// half-written artifact.
func (s *Store) write(p string, data []byte) error {
	return WriteFile(s.fs, p, append(data, '\n'))
}

// WriteFile replaces p on fs through a temp file in the same directory.
// The rename is atomic wherever fs renames over an existing file.
func WriteFile(fs billy.Filesystem, p string, data []byte) error {
	dir := path.Dir(p)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("artifact: create %s: %w", dir, err)
	}
	tmp, err := util.TempFile(fs, dir, ".tmp-")
	if err != nil {
		return fmt.Errorf("artifact: temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(tmpName)
		return fmt.Errorf("artifact: write %s: %w", p, err)
	}
	if err := tmp.Close(); err != nil {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("artifact: close %s: %w", p, err)
	}
	if err := fs.Rename(tmpName, p); err == nil {
		return nil
	}
	// Some filesystems refuse to rename over an existing file.
	if err := fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("artifact: replace %s: %w", p, err)
	}
	if err := fs.Rename(tmpName, p); err != nil {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("artifact: rename %s: %w", p, err)
	}
	return nil
}

// Exists reports whether the artifact is on disk.
func (s *Store) Exists(c Category, name string) bool {
	_, err := s.fs.Stat(Path(c, name))
	return err == nil
}

// Read returns the raw bytes of an artifact.
func (s *Store) Read(c Category, name string) ([]byte, error) {
	data, err := util.ReadFile(s.fs, Path(c, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, Path(c, name))
		}
		return nil, fmt.Errorf("artifact: read %s: %w", Path(c, name), err)
	}
	return data, nil
}

// Load decodes an artifact into v.
func (s *Store) Load(c Category, name string, v any) error {
	data, err := s.Read(c, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("artifact: decode %s: %w", Path(c, name), err)
	}
	return nil
}

// List returns the artifact names (without .json) in a category, sorted.
// A missing category is empty, not an error.
func (s *Store) List(c Category) ([]string, error) {
	infos, err := s.fs.ReadDir(string(c))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("artifact: list %s: %w", c, err)
	}
	var names []string
	for _, fi := range infos {
		n := fi.Name()
		if fi.IsDir() || !strings.HasSuffix(n, ".json") || strings.HasPrefix(n, ".tmp-") {
			continue
		}
		names = append(names, strings.TrimSuffix(n, ".json"))
	}
	sort.Strings(names)
	return names, nil
}
