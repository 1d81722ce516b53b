// Package pipeline wires input loading, BLAST, hit processing, structure
// resolution and persistence into one run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yumyai/seqst/logger"
	"github.com/yumyai/seqst/pkg/blast"
	"github.com/yumyai/seqst/pkg/db"
	"github.com/yumyai/seqst/pkg/hits"
	"github.com/yumyai/seqst/pkg/output"
	"github.com/yumyai/seqst/pkg/resolve"
	"github.com/yumyai/seqst/pkg/seq"
	"go.uber.org/zap"
)

// Step names, in the order they run.
const (
	StepLoad       = "load"
	StepBlast      = "blast"
	StepProcess    = "process"
	StepResolve    = "resolve"
	StepStructures = "structures"
	StepRecord     = "record"
)

// DefaultOutDir is used when neither an output directory nor a prior report
// is given. It is suffixed with _K when taken.
const DefaultOutDir = "out"

var (
	ErrInvalidInput = errors.New("please provide a valid sequence of single-letter canonical amino acids")
	ErrNoSequences  = errors.New("no valid sequences to analyse")
	ErrNoSearcher   = errors.New("no BLAST searcher configured")
)

// Input selects where sequences and BLAST results come from.
type Input struct {
	// Sequence is a single sequence given directly, e.g. on the command line.
	Sequence string
	// FastaPath is a FASTA file of sequences.
	FastaPath string
	// BlastPath is a BLAST.json of a prior run. Without Sequence or
	// FastaPath its queries are the sequences.
	BlastPath string
	// OnlyBlast stops once BLAST results are saved.
	OnlyBlast bool
	// OutDir overrides the output directory.
	OutDir string
}

// Searcher runs a BLAST search; blast.Runner is the production one.
type Searcher interface {
	Run(ctx context.Context, reg *seq.Registry) (*blast.Report, error)
}

// Pipeline holds the collaborators of a run. Resolver, Fetcher and Runs are
// optional; their steps are skipped when nil.
type Pipeline struct {
	Searcher   Searcher
	Thresholds hits.Thresholds
	Resolver   *resolve.Resolver
	Fetcher    output.Fetcher
	Runs       *db.RunStore
	Steps      *Tracker

	now func() time.Time
}

func New(searcher Searcher, th hits.Thresholds) *Pipeline {
	return &Pipeline{
		Searcher:   searcher,
		Thresholds: th,
		Steps:      NewTracker(),
		now:        time.Now,
	}
}

// Result is what a run produced.
type Result struct {
	Dir      string
	RunID    uuid.UUID
	Registry *seq.Registry
	Hits     hits.Result
	Resolved resolve.Summary
	Saved    output.SaveStats
}

// Run executes the steps for in. The output directory and everything written
// before an error stay on disk.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Result, error) {
	if err := p.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if p.Steps == nil {
		p.Steps = NewTracker()
	}
	p.Steps.Queue(StepLoad, StepBlast, StepProcess, StepResolve, StepStructures, StepRecord)

	res := &Result{}
	started := time.Now()
	if p.now != nil {
		started = p.now()
	}

	var reg *seq.Registry
	err := p.step(StepLoad, func() error {
		var err error
		reg, err = loadInput(in)
		return err
	})
	if err != nil {
		return nil, err
	}

	w, err := openOutput(in)
	if err != nil {
		return nil, err
	}
	res.Dir = w.Dir

	var rep *blast.Report
	err = p.step(StepBlast, func() error {
		var err error
		rep, reg, err = p.search(ctx, in, reg, w)
		return err
	})
	if err != nil {
		return res, err
	}
	res.Registry = reg

	if in.OnlyBlast {
		for _, name := range []string{StepProcess, StepResolve, StepStructures, StepRecord} {
			p.Steps.Skip(name)
		}
		return res, p.writeSummary(w, res, started)
	}

	// Processing cannot fail; unknown queries are only counted.
	p.Steps.SetRunning(StepProcess)
	res.Hits = hits.Process(rep, reg, hits.NewMatcher(p.Thresholds))
	if n := len(res.Hits.Skipped); n > 0 {
		logger.Warn("BLAST queries did not match any loaded sequence and were skipped",
			zap.Int("count", n), zap.Strings("descriptors", res.Hits.Skipped))
	}
	p.Steps.Complete(StepProcess)

	if p.Resolver != nil {
		err = p.step(StepResolve, func() error {
			var err error
			res.Resolved, err = p.Resolver.Resolve(ctx, reg)
			return err
		})
		if err != nil {
			return res, err
		}
	} else {
		p.Steps.Skip(StepResolve)
	}

	if p.Fetcher != nil {
		err = p.step(StepStructures, func() error {
			var err error
			res.Saved, err = w.SaveStructures(ctx, reg, p.Fetcher)
			return err
		})
		if err != nil {
			return res, err
		}
	} else {
		p.Steps.Skip(StepStructures)
	}

	if p.Runs != nil {
		err = p.step(StepRecord, func() error {
			var err error
			res.RunID, err = p.Runs.Record(ctx, reg, p.Thresholds)
			return err
		})
		if err != nil {
			return res, err
		}
	} else {
		p.Steps.Skip(StepRecord)
	}

	return res, p.writeSummary(w, res, started)
}

func (p *Pipeline) step(name string, fn func() error) error {
	p.Steps.SetRunning(name)
	logger.Info("Running step", zap.String("step", name))
	if err := fn(); err != nil {
		p.Steps.Fail(name, err)
		return fmt.Errorf("%s: %w", name, err)
	}
	p.Steps.Complete(name)
	return nil
}

// loadInput returns nil without error when only a BLAST report is given;
// the registry is then rebuilt from the report.
func loadInput(in Input) (*seq.Registry, error) {
	switch {
	case in.Sequence != "":
		reg := seq.NewRegistry()
		if out := reg.Add("", strings.ToUpper(strings.TrimSpace(in.Sequence))); out != seq.Added {
			return nil, ErrInvalidInput
		}
		logger.Info("Sequence loaded from input")
		return reg, nil

	case in.FastaPath != "":
		f, err := os.Open(in.FastaPath)
		if err != nil {
			return nil, fmt.Errorf("'%s' could not be opened: %w", in.FastaPath, err)
		}
		defer f.Close()

		reg := seq.NewRegistry()
		lr, err := seq.ReadFasta(f, reg)
		if err != nil {
			return nil, fmt.Errorf("failed to read '%s': %w", in.FastaPath, err)
		}
		if lr.Invalid > 0 {
			logger.Warn("Sequences excluded from analysis due to invalid protein sequence",
				zap.Int("count", lr.Invalid))
		}
		if reg.Len() == 0 {
			return nil, ErrNoSequences
		}
		logger.Info("Sequences loaded", zap.String("file", in.FastaPath), zap.Int("count", reg.Len()))
		return reg, nil

	case in.BlastPath != "":
		return nil, nil

	default:
		return nil, ErrNoSequences
	}
}

func openOutput(in Input) (*output.Writer, error) {
	switch {
	case in.OutDir != "":
		return output.Use(in.OutDir)
	case in.BlastPath != "":
		return output.Use(filepath.Dir(in.BlastPath))
	default:
		return output.NewDir(DefaultOutDir)
	}
}

// search loads the prior report or runs a new search, and returns the
// registry the rest of the run works on.
func (p *Pipeline) search(ctx context.Context, in Input, reg *seq.Registry, w *output.Writer) (*blast.Report, *seq.Registry, error) {
	if in.BlastPath != "" {
		rep, err := blast.Load(in.BlastPath)
		if err != nil {
			return nil, nil, err
		}
		if reg == nil {
			reg = hits.ExtractSequences(rep)
			logger.Info("Sequences loaded from BLAST report",
				zap.String("file", in.BlastPath), zap.Int("count", reg.Len()))
			if reg.Len() == 0 {
				return nil, nil, ErrNoSequences
			}
		}
		return rep, reg, nil
	}

	if err := w.WriteFasta(reg); err != nil {
		return nil, nil, err
	}
	if p.Searcher == nil {
		return nil, nil, ErrNoSearcher
	}
	rep, err := p.Searcher.Run(ctx, reg)
	if err != nil {
		return nil, nil, err
	}
	if err := w.SaveReport(rep); err != nil {
		return nil, nil, err
	}
	return rep, reg, nil
}

func (p *Pipeline) writeSummary(w *output.Writer, res *Result, started time.Time) error {
	s := output.Summary{
		CreatedAt:  started.UTC().Truncate(time.Second),
		Thresholds: p.Thresholds,
		Counts: map[string]int{
			"sequences": res.Registry.Len(),
			"unmatched": res.Hits.Unmatched,
			"skipped":   len(res.Hits.Skipped),
		},
		Entries: output.Entries(res.Registry),
	}
	for i := range s.Entries {
		s.Entries[i].Dir = res.Saved.Dirs[s.Entries[i].Descriptor]
	}
	if res.RunID != uuid.Nil {
		s.RunID = res.RunID.String()
	}

	accepted := 0
	for _, n := range res.Hits.Accepted {
		accepted += n
	}
	s.Counts["accepted_hits"] = accepted
	s.Counts["cross_checked"] = len(res.Resolved.CrossChecked)
	s.Counts["predicted"] = len(res.Resolved.Predicted)
	s.Counts["unresolved"] = len(res.Resolved.Unresolved)
	s.Counts["structure_files"] = res.Saved.Files

	for _, st := range p.Steps.Steps() {
		ss := output.StepSummary{Name: st.Name, Status: string(st.Status), Error: st.Error}
		if d := st.Duration(); d > 0 {
			ss.Duration = d.Round(time.Millisecond).String()
		}
		s.Steps = append(s.Steps, ss)
	}

	return w.WriteSummary(s)
}
