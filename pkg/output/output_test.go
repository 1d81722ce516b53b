package output

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yumyai/seqst/pkg/blast"
	"github.com/yumyai/seqst/pkg/hits"
	"github.com/yumyai/seqst/pkg/seq"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func gzipped(t *testing.T, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newMirror(t *testing.T) MirrorFetcher {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "pdb", "1lyz.cif"), []byte("data_1LYZ\n"))
	writeFile(t, filepath.Join(dir, "pdb", "2LYZ.cif.gz"), gzipped(t, "data_2LYZ\n"))
	writeFile(t, filepath.Join(dir, "alphafold", "AF-P1-F1.cif"), []byte("data_AF-P1-F1\n"))
	return MirrorFetcher{Dir: dir}
}

func TestMirrorFetcher(t *testing.T) {
	ctx := context.Background()
	m := newMirror(t)

	tests := []struct {
		name string
		src  seq.Source
		id   string
		want string
	}{
		{"lower case file", seq.SourcePDB, "1LYZ", "data_1LYZ\n"},
		{"gzipped file", seq.SourcePDB, "2LYZ", "data_2LYZ\n"},
		{"prediction", seq.SourceAlphaFold, "AF-P1-F1", "data_AF-P1-F1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc, err := m.Fetch(ctx, tt.src, tt.id)
			require.NoError(t, err)
			defer rc.Close()

			b, err := io.ReadAll(rc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(b))
		})
	}

	_, err := m.Fetch(ctx, seq.SourcePDB, "9XYZ")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.Fetch(ctx, seq.SourceNone, "1LYZ")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.Fetch(ctx, seq.SourcePDB, "../pdb/1LYZ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewDir(t *testing.T) {
	base := filepath.Join(t.TempDir(), "out")

	first, err := NewDir(base)
	require.NoError(t, err)
	assert.Equal(t, base, first.Dir)

	second, err := NewDir(base)
	require.NoError(t, err)
	assert.Equal(t, base+"_1", second.Dir)
	assert.DirExists(t, second.Dir)
}

func TestUse(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")

	w, err := Use(dir)
	require.NoError(t, err)
	assert.DirExists(t, dir)

	again, err := Use(dir)
	require.NoError(t, err)
	assert.Equal(t, w.Dir, again.Dir)
}

func testRegistry(t *testing.T) *seq.Registry {
	t.Helper()
	reg := seq.NewRegistry()
	require.Equal(t, seq.Added, reg.Add("lysozyme", "KVFGRCELAA"))
	require.Equal(t, seq.Added, reg.Add("sp|P1|model", "MKTAYIAK"))
	require.Equal(t, seq.Added, reg.Add("bare", "GAVLIPFM"))
	require.True(t, reg.AttachStructuresTrusted("lysozyme", seq.NewStructures(seq.SourcePDB, "1LYZ", "2LYZ", "9XYZ")))
	require.True(t, reg.AttachStructuresTrusted("sp|P1|model", seq.NewStructures(seq.SourceAlphaFold, "AF-P1-F1")))
	require.True(t, reg.AttachAccessionsTrusted("sp|P1|model", []string{"P1"}))
	return reg
}

func TestSaveStructures(t *testing.T) {
	w, err := Use(t.TempDir())
	require.NoError(t, err)

	stats, err := w.SaveStructures(context.Background(), testRegistry(t), newMirror(t))
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Files)
	assert.Equal(t, []string{"lysozyme/9XYZ"}, stats.Missing)
	assert.Equal(t, int64(len("data_1LYZ\n")+len("data_2LYZ\n")+len("data_AF-P1-F1\n")), stats.Bytes)

	b, err := os.ReadFile(w.Path("lysozyme/2LYZ.cif"))
	require.NoError(t, err)
	assert.Equal(t, "data_2LYZ\n", string(b))

	assert.FileExists(t, w.Path("sp|P1|model/AF-P1-F1.cif"))
	assert.NoDirExists(t, w.Path("bare"))
	assert.Equal(t, map[string]string{"lysozyme": "lysozyme", "sp|P1|model": "sp|P1|model"}, stats.Dirs)
}

// stubFetcher serves body for every id, failing with err after it when set.
type stubFetcher struct {
	body string
	err  error
}

func (f stubFetcher) Fetch(_ context.Context, _ seq.Source, _ string) (io.ReadCloser, error) {
	var r io.Reader = strings.NewReader(f.body)
	if f.err != nil {
		r = io.MultiReader(r, iotest.ErrReader(f.err))
	}
	return io.NopCloser(r), nil
}

func TestSaveStructuresUnsafeIDs(t *testing.T) {
	w, err := Use(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)

	reg := seq.NewRegistry()
	require.Equal(t, seq.Added, reg.Add("a", "MKTAYIAK"))
	require.True(t, reg.AttachStructuresTrusted("a", seq.NewStructures(seq.SourceAlphaFold, "../escape")))

	stats, err := w.SaveStructures(context.Background(), reg, stubFetcher{body: "data\n"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Files)
	assert.FileExists(t, w.Path("a/.._escape.cif"))
	assert.NoFileExists(t, filepath.Join(w.Dir, "escape.cif"))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(w.Dir), "escape.cif"))
}

func TestSaveStructuresDistinctDirs(t *testing.T) {
	w, err := Use(t.TempDir())
	require.NoError(t, err)

	reg := seq.NewRegistry()
	require.Equal(t, seq.Added, reg.Add("a/b", "MKTAYIAK"))
	require.Equal(t, seq.Added, reg.Add("a_b", "GAVLIPFM"))
	require.True(t, reg.AttachStructuresTrusted("a/b", seq.NewStructures(seq.SourcePDB, "1AAA")))
	require.True(t, reg.AttachStructuresTrusted("a_b", seq.NewStructures(seq.SourcePDB, "2BBB")))

	stats, err := w.SaveStructures(context.Background(), reg, stubFetcher{body: "data\n"})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"a/b": "a_b_1", "a_b": "a_b"}, stats.Dirs)
	assert.FileExists(t, w.Path("a_b_1/1AAA.cif"))
	assert.FileExists(t, w.Path("a_b/2BBB.cif"))
	assert.NoFileExists(t, w.Path("a_b/1AAA.cif"))
}

func TestSaveStructuresRemovesPartialFile(t *testing.T) {
	w, err := Use(t.TempDir())
	require.NoError(t, err)

	reg := seq.NewRegistry()
	require.Equal(t, seq.Added, reg.Add("a", "MKTAYIAK"))
	require.True(t, reg.AttachStructuresTrusted("a", seq.NewStructures(seq.SourcePDB, "1AAA")))

	broken := errors.New("read failed")
	_, err = w.SaveStructures(context.Background(), reg, stubFetcher{body: "data_1AAA\n", err: broken})
	require.ErrorIs(t, err, broken)
	assert.NoFileExists(t, w.Path("a/1AAA.cif"))
}

func TestDirNames(t *testing.T) {
	tests := []struct {
		name        string
		descriptors []string
		want        map[string]string
	}{
		{"safe names kept", []string{"x", "sp|P1|y"}, map[string]string{"x": "x", "sp|P1|y": "sp|P1|y"}},
		{"rewritten after safe", []string{"a/b", "a_b"}, map[string]string{"a/b": "a_b_1", "a_b": "a_b"}},
		{"two rewritten", []string{"a/b", "a\x00b", "a_b_1"}, map[string]string{"a/b": "a_b", "a\x00b": "a_b_2", "a_b_1": "a_b_1"}},
		{"dot dirs", []string{"..", "."}, map[string]string{"..": "__", ".": "_"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dirNames(tt.descriptors))
		})
	}
}

func TestSaveStructuresCancelled(t *testing.T) {
	w, err := Use(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = w.SaveStructures(ctx, testRegistry(t), newMirror(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "a_b", safeName("a/b"))
	assert.Equal(t, "__", safeName(".."))
	assert.Equal(t, "sp|P1|x", safeName("sp|P1|x"))
}

func TestWriteFastaAndReport(t *testing.T) {
	w, err := Use(t.TempDir())
	require.NoError(t, err)
	reg := testRegistry(t)

	require.NoError(t, w.WriteFasta(reg))
	b, err := os.ReadFile(w.Path(FastaFile))
	require.NoError(t, err)
	assert.Equal(t, reg.FASTA(), string(b))

	rep, err := blast.Load(filepath.Join("..", "blast", "testdata", "report.json"))
	require.NoError(t, err)
	require.NoError(t, w.SaveReport(rep))

	back, err := blast.Load(w.Path(ReportFile))
	require.NoError(t, err)
	assert.Equal(t, rep, back)
}

func TestSummaryRoundTrip(t *testing.T) {
	w, err := Use(t.TempDir())
	require.NoError(t, err)
	reg := testRegistry(t)

	s := Summary{
		RunID:      "8d0c2d4e-4a4e-4b55-9d51-3b1d7c2a0f11",
		CreatedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Thresholds: hits.DefaultThresholds(),
		Counts:     map[string]int{"sequences": 3, "unmatched": 1},
		Steps:      []StepSummary{{Name: "blast", Status: "completed", Duration: "1s"}},
		Entries:    Entries(reg),
	}
	require.NoError(t, w.WriteSummary(s))

	back, err := ReadSummary(w.Path(SummaryFile))
	require.NoError(t, err)
	assert.Equal(t, s, back)

	require.Len(t, back.Entries, 3)
	assert.Equal(t, EntrySummary{
		Descriptor: "sp|P1|model",
		Length:     8,
		Source:     "alphafold",
		Structures: []string{"AF-P1-F1"},
		Accessions: []string{"P1"},
	}, back.Entries[1])
	assert.Equal(t, "none", back.Entries[2].Source)
}
