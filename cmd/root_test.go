package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yumyai/seqst/internal/pipeline"
	"github.com/yumyai/seqst/pkg/output"
)

// execute runs the root command with args after resetting flags left over
// from earlier calls.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	for _, c := range []*pflag.FlagSet{rootCmd.Flags(), rootCmd.PersistentFlags()} {
		c.VisitAll(reset)
	}
	cfgFile = ""

	var out bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCheckExtension(t *testing.T) {
	tests := []struct {
		path    string
		exts    []string
		wantErr bool
	}{
		{"", []string{".json"}, false},
		{"in.fasta", []string{".fasta", ".fa"}, false},
		{"IN.FA", []string{".fasta", ".fa"}, false},
		{"in.txt", []string{".fasta", ".fa"}, true},
		{"out/BLAST.json", []string{".json"}, false},
		{"BLAST.xml", []string{".json"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := checkExtension(tt.path, tt.exts...)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPromptSequence(t *testing.T) {
	var prompt bytes.Buffer
	s, err := promptSequence(strings.NewReader("  KVFGRCELAA \nignored\n"), &prompt)
	require.NoError(t, err)
	assert.Equal(t, "KVFGRCELAA", s)
	assert.Equal(t, "Protein sequence: ", prompt.String())

	_, err = promptSequence(strings.NewReader("\n"), &prompt)
	assert.ErrorIs(t, err, pipeline.ErrInvalidInput)
}

func TestFlagConflicts(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SEQST_LOG_LEVEL", "error")

	_, err := execute(t, "", "-f", "a.fasta", "-s", "KVF")
	assert.Error(t, err)

	_, err = execute(t, "", "-b", "BLAST.json", "--only-blast")
	assert.Error(t, err)

	_, err = execute(t, "", "-f", "a.txt")
	assert.ErrorContains(t, err, "invalid file extension")
}

// fakeBlastp prints report on stdout whatever it is asked.
func fakeBlastp(t *testing.T, report string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake blastp is a shell script")
	}
	bin := filepath.Join(t.TempDir(), "blastp")
	script := "#!/bin/sh\ncat > /dev/null\ncat '" + report + "'\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))
	return bin
}

func TestEndToEnd(t *testing.T) {
	report, err := filepath.Abs(filepath.Join("..", "pkg", "blast", "testdata", "report.json"))
	require.NoError(t, err)

	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("SEQST_LOG_LEVEL", "error")
	t.Setenv("SEQST_BLAST_BIN", fakeBlastp(t, report))

	require.NoError(t, os.WriteFile("input.fasta", []byte(">lysozyme\nKVFGRCELAA\n>orphan\nMKTAYIAK\n"), 0644))
	require.NoError(t, os.WriteFile("map.tsv", []byte("# accession\tuniprot\nNP_990612\tP00698\n"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join("mirror", "pdb"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join("mirror", "pdb", "193l.cif"), []byte("data_193L\n"), 0644))

	out, err := execute(t, "", "index", "init", "--index", "idx.db")
	require.NoError(t, err)
	assert.Contains(t, out, "Index ready")

	out, err = execute(t, "", "index", "import", "uniprot_map", "map.tsv", "--index", "idx.db")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 rows into uniprot_map")

	_, err = execute(t, "P00698\t193L_A\n", "index", "import", "pdb_entries", "-", "--index", "idx.db")
	require.NoError(t, err)

	_, err = execute(t, "", "index", "import", "genomes", "map.tsv", "--index", "idx.db")
	assert.Error(t, err)

	out, err = execute(t, "", "-f", "input.fasta", "-o", "results", "--index", "idx.db", "--mirror", "mirror")
	require.NoError(t, err)
	assert.Contains(t, out, "Finished, results in results")

	assert.FileExists(t, filepath.Join("results", output.ReportFile))
	assert.FileExists(t, filepath.Join("results", "lysozyme", "193L.cif"))

	s, err := output.ReadSummary(filepath.Join("results", output.SummaryFile))
	require.NoError(t, err)
	require.NotEmpty(t, s.RunID)
	require.Len(t, s.Entries, 2)
	assert.Equal(t, []string{"1LYZ", "2LYZ", "193L"}, s.Entries[0].Structures)

	out, err = execute(t, "", "runs", "show", s.RunID, "--index", "idx.db")
	require.NoError(t, err)
	assert.Contains(t, out, "descriptor: lysozyme")
	assert.Contains(t, out, "- 193L")

	_, err = execute(t, "", "runs", "show", "not-a-uuid", "--index", "idx.db")
	assert.ErrorContains(t, err, "invalid run id")
}

func TestResumeFromBlast(t *testing.T) {
	report, err := filepath.Abs(filepath.Join("..", "pkg", "blast", "testdata", "report.json"))
	require.NoError(t, err)
	data, err := os.ReadFile(report)
	require.NoError(t, err)

	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("SEQST_LOG_LEVEL", "error")
	require.NoError(t, os.MkdirAll("prior", 0755))
	require.NoError(t, os.WriteFile(filepath.Join("prior", "BLAST.json"), data, 0644))

	out, err := execute(t, "", "-b", filepath.Join("prior", "BLAST.json"))
	require.NoError(t, err)
	assert.Contains(t, out, "Finished, results in prior")
	assert.FileExists(t, filepath.Join("prior", output.SummaryFile))
}

func TestSequenceFromStdin(t *testing.T) {
	report, err := filepath.Abs(filepath.Join("..", "pkg", "blast", "testdata", "report.json"))
	require.NoError(t, err)

	chdir(t, t.TempDir())
	t.Setenv("SEQST_LOG_LEVEL", "error")
	t.Setenv("SEQST_BLAST_BIN", fakeBlastp(t, report))

	out, err := execute(t, "kvfgrcelaa\n", "--only-blast")
	require.NoError(t, err)
	assert.Contains(t, out, "Protein sequence: ")
	assert.Contains(t, out, "Finished, results in out")

	b, err := os.ReadFile(filepath.Join("out", output.FastaFile))
	require.NoError(t, err)
	assert.Equal(t, ">seq_1\nKVFGRCELAA\n", string(b))
}
