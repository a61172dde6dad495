package reorganize

import (
	"context"
	"encoding/json"
	"os"
	"path"
	"strings"
	"testing"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/figport/api"
	"github.com/agentic-research/figport/internal/artifact"
)

const fixtureStructure = `{"id":"0:1","type":"PAGE","name":"Page 1","children":[
  {"id":"1:1","type":"FRAME","name":"Login","children":[
    {"id":"1:2","type":"TEXT","name":"Title","characters":"Welcome","style":{"fontSize":24}},
    {"id":"1:3","type":"INSTANCE","name":"Submit Button",
     "fills":[{"type":"SOLID","color":{"r":1,"g":0,"b":0}}],
     "absoluteBoundingBox":{"x":10,"y":20,"width":100,"height":40}}
  ]},
  {"id":"2:1","type":"FRAME","name":"Login","children":[
    {"id":"2:2","type":"RECTANGLE","name":"bg",
     "fills":[{"type":"SOLID","color":{"r":1,"g":0,"b":0}}],
     "absoluteBoundingBox":{"x":10,"y":300,"width":100,"height":40}}
  ]}
]}`

const fixtureStyles = `{
  "colors":[{"id":"S:1","name":"Primary","key":"k","paint":{"type":"SOLID","color":{"r":0,"g":0,"b":1}}}],
  "texts":[{"id":"S:2","name":"H1","key":"k2","fontSize":32}],
  "effects":[],
  "grids":[]
}`

func fixtureStore(t *testing.T, structure string) *artifact.Store {
	t.Helper()
	s := artifact.NewStore(memfs.New())
	require.NoError(t, s.Init())
	require.NoError(t, s.SaveRaw(artifact.Structure, "document_structure", json.RawMessage(structure)))
	require.NoError(t, s.SaveRaw(artifact.Styles, "all_styles", json.RawMessage(fixtureStyles)))
	return s
}

func readJSON(t *testing.T, fs billy.Filesystem, p string, v any) {
	t.Helper()
	data, err := util.ReadFile(fs, p)
	require.NoError(t, err, p)
	require.NoError(t, json.Unmarshal(data, v), p)
}

// snapshot returns every file under reorganized/ except stats.json.
func snapshot(t *testing.T, fs billy.Filesystem) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := util.Walk(fs, artifact.ReorganizedDir, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || path.Base(p) == statsFile {
			return err
		}
		data, rerr := util.ReadFile(fs, p)
		out[p] = string(data)
		return rerr
	})
	require.NoError(t, err)
	return out
}

func TestRun_WritesLayersComponentsAndTokens(t *testing.T) {
	s := fixtureStore(t, fixtureStructure)
	original, err := s.Read(artifact.Structure, "document_structure")
	require.NoError(t, err)

	stats, err := New(s).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, stats.OriginalNodes)
	assert.Equal(t, 5, stats.SavedNodes)
	assert.Equal(t, 1, stats.DataLoss, "the page itself is in no layer")
	assert.NotEmpty(t, stats.Warnings)
	assert.Equal(t, api.StepStats{Folders: 3, Files: 10}, stats.Steps[StepLayers])
	assert.Equal(t, api.StepStats{Folders: 3, Files: 2}, stats.Steps[StepComponents])
	assert.Equal(t, api.StepStats{Folders: 1, Files: 4}, stats.Steps[StepTokens])
	assert.Equal(t, 8, stats.CreatedFolders)
	assert.Equal(t, 17, stats.CreatedFiles)
	assert.Positive(t, stats.TotalSize)
	assert.Contains(t, stats.SizeComparison.Summary, "->")

	fs := s.Filesystem()
	var st LayerStructure
	readJSON(t, fs, "reorganized/layers/layer-login/structure.json", &st)
	assert.Equal(t, "1:1", st.Root.ID())
	assert.Equal(t, []string{"1:1", "1:2", "1:3"}, st.Nodes)
	assert.Equal(t, map[string][]string{"1:1": {"1:2", "1:3"}}, st.Adjacency)
	require.Len(t, st.Children, 2)

	// same name, so the second layer is disambiguated by id
	var meta LayerMetadata
	readJSON(t, fs, "reorganized/layers/layer-login-2-1/metadata.json", &meta)
	assert.Equal(t, "2:1", meta.ID)
	assert.Equal(t, 2, meta.NodeCount)
	assert.Equal(t, map[string]int{"FRAME": 1, "RECTANGLE": 1}, meta.TypeCounts)

	var content []ContentNode
	readJSON(t, fs, "reorganized/layers/layer-login/content.json", &content)
	require.Len(t, content, 1)
	assert.Equal(t, "Welcome", content[0].Characters)

	var buttons []ComponentRef
	readJSON(t, fs, "reorganized/components/button/button.json", &buttons)
	require.Len(t, buttons, 1)
	assert.Equal(t, "1:3", buttons[0].ID)

	var colors []Token
	readJSON(t, fs, "reorganized/design-tokens/colors.json", &colors)
	require.Len(t, colors, 2)
	assert.Equal(t, 2, colors[0].Count, "identical fills are one token")
	assert.Equal(t, "Primary", colors[1].Name)

	var spacing []float64
	readJSON(t, fs, "reorganized/design-tokens/spacing.json", &spacing)
	assert.Equal(t, []float64{10, 20, 40, 100, 300}, spacing)

	var typography []Token
	readJSON(t, fs, "reorganized/design-tokens/typography.json", &typography)
	assert.Len(t, typography, 2)

	after, err := s.Read(artifact.Structure, "document_structure")
	require.NoError(t, err)
	assert.Equal(t, original, after, "originals are never modified")
}

func TestRun_IsIdempotent(t *testing.T) {
	s := fixtureStore(t, fixtureStructure)
	_, err := New(s).Run(context.Background())
	require.NoError(t, err)
	first := snapshot(t, s.Filesystem())

	_, err = New(s).Run(context.Background())
	require.NoError(t, err)
	second := snapshot(t, s.Filesystem())

	require.NotEmpty(t, first)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("second run differs (-first +second):\n%s", diff)
	}
}

func TestRun_EveryNodeInExactlyOneLayer(t *testing.T) {
	s := fixtureStore(t, fixtureStructure)
	_, err := New(s).Run(context.Background())
	require.NoError(t, err)

	fs := s.Filesystem()
	layers, err := fs.ReadDir("reorganized/layers")
	require.NoError(t, err)
	seen := map[string]int{}
	for _, l := range layers {
		var st LayerStructure
		readJSON(t, fs, path.Join("reorganized/layers", l.Name(), "structure.json"), &st)
		for _, id := range st.Nodes {
			seen[id]++
		}
	}
	for _, id := range []string{"1:1", "1:2", "1:3", "2:1", "2:2"} {
		assert.Equal(t, 1, seen[id], id)
	}
	assert.NotContains(t, seen, "0:1")
}

func TestRun_NoRootFrames(t *testing.T) {
	s := fixtureStore(t, `{"id":"0:1","type":"PAGE","children":[{"id":"0:2","type":"TEXT"}]}`)
	stats, err := New(s).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, api.StepStats{Folders: 1, Files: 0}, stats.Steps[StepLayers])

	entries, err := s.Filesystem().ReadDir("reorganized/layers")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_EmptyExportStillWritesTree(t *testing.T) {
	s := artifact.NewStore(memfs.New())
	stats, err := New(s).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.OriginalNodes)
	assert.Equal(t, 0, stats.DataLoss)
	assert.True(t, strings.HasPrefix(stats.SizeComparison.Summary, "0 B"))

	var colors []Token
	readJSON(t, s.Filesystem(), "reorganized/design-tokens/colors.json", &colors)
	assert.Empty(t, colors)
}

func TestRun_ClearsPreviousOutput(t *testing.T) {
	s := fixtureStore(t, fixtureStructure)
	require.NoError(t, util.WriteFile(s.Filesystem(), "reorganized/layers/stale/structure.json", []byte("{}"), 0o644))
	_, err := New(s).Run(context.Background())
	require.NoError(t, err)
	_, err = s.Filesystem().Stat("reorganized/layers/stale")
	assert.Error(t, err)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(fixtureStore(t, fixtureStructure)).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// expiringContext reports cancellation once Err has been consulted n times.
type expiringContext struct {
	context.Context
	n int
}

func (c *expiringContext) Err() error {
	if c.n <= 0 {
		return context.Canceled
	}
	c.n--
	return nil
}

func TestRun_CancelledKeepsPreviousOutput(t *testing.T) {
	s := fixtureStore(t, fixtureStructure)
	first, err := New(s).Run(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(s).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// cancelled between the layers and components steps
	_, err = New(s).Run(&expiringContext{Context: context.Background(), n: 3})
	require.ErrorIs(t, err, context.Canceled)

	got, err := LoadStats(s)
	require.NoError(t, err)
	assert.Equal(t, first.SavedNodes, got.SavedNodes)
	assert.Equal(t, first.CreatedFiles, got.CreatedFiles)

	bfs := s.Filesystem()
	_, err = bfs.Stat("reorganized/design-tokens/colors.json")
	assert.NoError(t, err)
	_, err = bfs.Stat(stagingDir)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRun_ReplacesPreviousOutput(t *testing.T) {
	s := fixtureStore(t, fixtureStructure)
	bfs := s.Filesystem()
	require.NoError(t, bfs.MkdirAll("reorganized/layers/layer-stale", 0o755))
	require.NoError(t, util.WriteFile(bfs, "reorganized/layers/layer-stale/structure.json", []byte("{}"), 0o644))

	_, err := New(s).Run(context.Background())
	require.NoError(t, err)

	_, err = bfs.Stat("reorganized/layers/layer-stale")
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = bfs.Stat("reorganized/stats.json")
	assert.NoError(t, err)
	_, err = bfs.Stat(stagingDir)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPostProcess(t *testing.T) {
	s := fixtureStore(t, fixtureStructure)
	require.NoError(t, PostProcess(context.Background(), s))
	_, err := s.Filesystem().Stat("reorganized/stats.json")
	assert.NoError(t, err)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "sign-up-form", slug("Sign Up / Form"))
	assert.Equal(t, "1-2", slug("1:2"))
	assert.Equal(t, "unnamed", slug("  ✨ "))
}

func TestLoadStats(t *testing.T) {
	s := fixtureStore(t, fixtureStructure)
	_, err := LoadStats(s)
	assert.Error(t, err)

	stats, err := New(s).Run(context.Background())
	require.NoError(t, err)
	loaded, err := LoadStats(s)
	require.NoError(t, err)
	assert.Equal(t, stats.SavedNodes, loaded.SavedNodes)
	assert.Equal(t, stats.SizeComparison.Summary, loaded.SizeComparison.Summary)
}
