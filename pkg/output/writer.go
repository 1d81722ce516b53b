package output

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/yumyai/seqst/internal/util"
	"github.com/yumyai/seqst/logger"
	"github.com/yumyai/seqst/pkg/blast"
	"github.com/yumyai/seqst/pkg/hits"
	"github.com/yumyai/seqst/pkg/seq"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	FastaFile    = "sequences.fasta"
	ReportFile   = "BLAST.json"
	SummaryFile  = "summary.yaml"
	StructureExt = ".cif"
)

// Writer puts every artefact of a run into one directory.
type Writer struct {
	Dir string
}

// NewDir creates a fresh output directory at path, or at path_K with the
// first free K when path is taken.
func NewDir(path string) (*Writer, error) {
	dir := util.NextFreeDir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	logger.Info("Created output directory", zap.String("dir", dir))
	return &Writer{Dir: dir}, nil
}

// Use adopts path as output directory, creating it when needed. Existing
// files may be overwritten.
func Use(path string) (*Writer, error) {
	if util.DirExists(path) {
		logger.Warn("Output directory exists, files may be overwritten", zap.String("dir", path))
		return &Writer{Dir: path}, nil
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Writer{Dir: path}, nil
}

func (w *Writer) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

func (w *Writer) WriteFasta(reg *seq.Registry) error {
	path := w.Path(FastaFile)
	if err := os.WriteFile(path, []byte(reg.FASTA()), 0644); err != nil {
		return fmt.Errorf("failed to write sequences: %w", err)
	}
	logger.Info("Sequences saved", zap.String("path", path), zap.Int("count", reg.Len()))
	return nil
}

func (w *Writer) SaveReport(rep *blast.Report) error {
	path := w.Path(ReportFile)
	if err := blast.Save(path, rep); err != nil {
		return err
	}
	logger.Info("BLAST output saved", zap.String("path", path))
	return nil
}

// SaveStats counts the structure files written by SaveStructures.
type SaveStats struct {
	Files   int
	Bytes   int64
	Missing []string
	// Dirs maps each descriptor with structures to its directory name.
	Dirs map[string]string
}

// SaveStructures writes every structure attached in reg to
// <dir>/<descriptor>/<id>.cif. Structures the fetcher does not have are
// logged and listed in Missing; other fetch errors abort.
func (w *Writer) SaveStructures(ctx context.Context, reg *seq.Registry, fetcher Fetcher) (SaveStats, error) {
	stats := SaveStats{Dirs: make(map[string]string)}
	names := dirNames(reg.Descriptors())

	for _, d := range reg.Descriptors() {
		st := reg.StructuresOf(d)
		if st.Empty() {
			continue
		}
		stats.Dirs[d] = names[d]
		dir := w.Path(names[d])
		if err := os.MkdirAll(dir, 0755); err != nil {
			return stats, fmt.Errorf("failed to create %s: %w", dir, err)
		}

		for _, id := range st.IDs {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			file := safeName(id) + StructureExt
			n, err := saveOne(ctx, fetcher, st.Source, id, filepath.Join(dir, file))
			if errors.Is(err, ErrNotFound) {
				logger.Warn("Structure not available", zap.String("descriptor", d), zap.String("id", id))
				stats.Missing = append(stats.Missing, d+"/"+id)
				continue
			}
			if err != nil {
				return stats, fmt.Errorf("failed to save %s for %s: %w", id, d, err)
			}
			stats.Files++
			stats.Bytes += n
			logger.Info("Saved structure",
				zap.String("descriptor", d),
				zap.String("file", file),
				zap.String("size", humanize.Bytes(uint64(n))))
		}
	}

	logger.Info("Structures saved",
		zap.Int("files", stats.Files),
		zap.String("total", humanize.Bytes(uint64(stats.Bytes))),
		zap.Int("missing", len(stats.Missing)))
	return stats, nil
}

// saveOne copies one structure to path. A partial file is removed on error.
func saveOne(ctx context.Context, fetcher Fetcher, src seq.Source, id, path string) (int64, error) {
	rc, err := fetcher.Fetch(ctx, src, id)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, rc)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return 0, err
	}
	return n, nil
}

// safeName keeps a descriptor or id from escaping or nesting inside the
// output directory.
func safeName(d string) string {
	switch d {
	case ".", "..":
		return strings.Repeat("_", len(d))
	}
	return strings.Map(func(r rune) rune {
		if r == '/' || r == os.PathSeparator || r == 0 {
			return '_'
		}
		return r
	}, d)
}

// dirNames gives every descriptor a distinct directory name. Descriptors
// that are already safe keep their name; rewritten ones that collide get
// the lowest free _K suffix.
func dirNames(descriptors []string) map[string]string {
	names := make(map[string]string, len(descriptors))
	taken := make(map[string]bool, len(descriptors))
	for _, d := range descriptors {
		if safeName(d) == d {
			names[d] = d
			taken[d] = true
		}
	}
	for _, d := range descriptors {
		if _, ok := names[d]; ok {
			continue
		}
		name := safeName(d)
		for k := 1; taken[name]; k++ {
			name = safeName(d) + "_" + strconv.Itoa(k)
		}
		names[d] = name
		taken[name] = true
	}
	return names
}

// Summary is the human readable record of a run.
type Summary struct {
	RunID      string          `yaml:"run_id,omitempty"`
	CreatedAt  time.Time       `yaml:"created_at"`
	Thresholds hits.Thresholds `yaml:"thresholds"`
	Counts     map[string]int  `yaml:"counts"`
	Steps      []StepSummary   `yaml:"steps,omitempty"`
	Entries    []EntrySummary  `yaml:"entries"`
}

type StepSummary struct {
	Name     string `yaml:"name"`
	Status   string `yaml:"status"`
	Duration string `yaml:"duration,omitempty"`
	Error    string `yaml:"error,omitempty"`
}

type EntrySummary struct {
	Descriptor string   `yaml:"descriptor"`
	Dir        string   `yaml:"dir,omitempty"`
	Length     int      `yaml:"length"`
	Source     string   `yaml:"source"`
	Structures []string `yaml:"structures,omitempty"`
	Accessions []string `yaml:"accessions,omitempty"`
}

// Entries lists every registry entry in insertion order.
func Entries(reg *seq.Registry) []EntrySummary {
	var out []EntrySummary
	for _, d := range reg.Descriptors() {
		st := reg.StructuresOf(d)
		out = append(out, EntrySummary{
			Descriptor: d,
			Length:     len(reg.Sequence(d)),
			Source:     st.Source.String(),
			Structures: st.IDs,
			Accessions: reg.AccessionsOf(d),
		})
	}
	return out
}

func (w *Writer) WriteSummary(s Summary) error {
	b, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	path := w.Path(SummaryFile)
	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	logger.Info("Summary saved", zap.String("path", path))
	return nil
}

// ReadSummary loads a summary written by WriteSummary.
func ReadSummary(path string) (Summary, error) {
	var s Summary
	b, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("failed to parse summary %s: %w", path, err)
	}
	return s, nil
}
