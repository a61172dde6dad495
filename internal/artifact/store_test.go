package artifact

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveOverwritesNeverMerges(t *testing.T) {
	s := NewStore(memfs.New())
	require.NoError(t, s.Init())

	require.NoError(t, s.Save(Metadata, "document_info", map[string]any{"name": "A", "pages": 2}))
	require.NoError(t, s.Save(Metadata, "document_info", map[string]any{"name": "B"}))

	var got map[string]any
	require.NoError(t, s.Load(Metadata, "document_info", &got))
	assert.Equal(t, map[string]any{"name": "B"}, got)
}

func TestStore_SaveRawIsPrettyPrinted(t *testing.T) {
	s := NewStore(memfs.New())
	require.NoError(t, s.SaveRaw(Annotations, "all_annotations", json.RawMessage(`{"a":[1,2]}`)))

	data, err := s.Read(Annotations, "all_annotations.json")
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": [\n    1,\n    2\n  ]\n}\n", string(data))

	require.NoError(t, s.SaveRaw(Images, "empty", nil))
	data, err = s.Read(Images, "empty")
	require.NoError(t, err)
	assert.Equal(t, "null\n", string(data))

	assert.Error(t, s.SaveRaw(Images, "broken", json.RawMessage(`{`)))
}

func TestStore_ListMissingCategoryIsEmpty(t *testing.T) {
	s := NewStore(memfs.New())
	names, err := s.List(Batches)
	require.NoError(t, err)
	assert.Empty(t, names)

	_, err = s.Read(Batches, "batch_1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListSorted(t *testing.T) {
	s := NewStore(memfs.New())
	require.NoError(t, s.Save(Batches, "batch_2", []int{2}))
	require.NoError(t, s.Save(Batches, "batch_1", []int{1}))
	require.NoError(t, util.WriteFile(s.Filesystem(), "batches/notes.txt", []byte("x"), 0o644))

	names, err := s.List(Batches)
	require.NoError(t, err)
	assert.Equal(t, []string{"batch_1", "batch_2"}, names)
	assert.True(t, s.Exists(Batches, "batch_1"))
	assert.False(t, s.Exists(Batches, "batch_3"))
}

func TestStore_ResetClearsTaxonomyAndReorganized(t *testing.T) {
	s := NewStore(memfs.New())
	require.NoError(t, s.Save(Structure, "document_structure", map[string]any{"id": "0:1"}))
	require.NoError(t, util.WriteFile(s.Filesystem(), "reorganized/layers/x.json", []byte("{}"), 0o644))
	require.NoError(t, util.WriteFile(s.Filesystem(), "keep.txt", []byte("mine"), 0o644))

	require.NoError(t, s.Reset())

	assert.False(t, s.Exists(Structure, "document_structure"))
	_, err := s.Filesystem().Stat("reorganized")
	assert.Error(t, err)
	for _, c := range Categories {
		fi, err := s.Filesystem().Stat(string(c))
		require.NoError(t, err, c)
		assert.True(t, fi.IsDir())
	}
	_, err = s.Filesystem().Stat("keep.txt")
	assert.NoError(t, err)
}

func TestOpen_WritesToDisk(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Save(Structure, "document_structure", map[string]string{"id": "0:1"}))

	data, err := os.ReadFile(filepath.Join(dir, "structure", "document_structure.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"0:1"}`, string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "structure"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

// recordingFS counts removals and can refuse to rename over an existing file.
type recordingFS struct {
	billy.Filesystem
	refuseOverwrite bool
	removed         []string
}

func (f *recordingFS) Rename(from, to string) error {
	if f.refuseOverwrite {
		if _, err := f.Filesystem.Stat(to); err == nil {
			return os.ErrExist
		}
	}
	return f.Filesystem.Rename(from, to)
}

func (f *recordingFS) Remove(p string) error {
	f.removed = append(f.removed, p)
	return f.Filesystem.Remove(p)
}

func TestWriteFile_ReplacesWithoutRemovingTarget(t *testing.T) {
	for name, fs := range map[string]billy.Filesystem{
		"memfs": memfs.New(),
		"osfs":  osfs.New(t.TempDir()),
	} {
		t.Run(name, func(t *testing.T) {
			rfs := &recordingFS{Filesystem: fs}
			require.NoError(t, WriteFile(rfs, "structure/a.json", []byte("old")))
			require.NoError(t, WriteFile(rfs, "structure/a.json", []byte("new")))

			data, err := util.ReadFile(fs, "structure/a.json")
			require.NoError(t, err)
			assert.Equal(t, "new", string(data))
			assert.Empty(t, rfs.removed)

			entries, err := fs.ReadDir("structure")
			require.NoError(t, err)
			assert.Len(t, entries, 1)
		})
	}
}

func TestWriteFile_FallsBackWhenRenameCannotOverwrite(t *testing.T) {
	rfs := &recordingFS{Filesystem: memfs.New(), refuseOverwrite: true}
	require.NoError(t, WriteFile(rfs, "styles/all_styles.json", []byte("old")))
	assert.Empty(t, rfs.removed)

	require.NoError(t, WriteFile(rfs, "styles/all_styles.json", []byte("new")))
	assert.Equal(t, []string{"styles/all_styles.json"}, rfs.removed)

	data, err := util.ReadFile(rfs, "styles/all_styles.json")
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	entries, err := rfs.ReadDir("styles")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
