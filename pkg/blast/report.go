// Model for the single-file BLAST JSON report (BlastOutput2).

package blast

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

var ErrMalformedReport = errors.New("BLAST report has unexpected structure")

type Report struct {
	BlastOutput2 []Output `json:"BlastOutput2"`
}

type Output struct {
	Report OutputReport `json:"report"`
}

type OutputReport struct {
	Program string  `json:"program,omitempty"`
	Version string  `json:"version,omitempty"`
	Results Results `json:"results"`
}

type Results struct {
	Search *Search `json:"search"`
}

// Search is one query block.
type Search struct {
	QueryID    string `json:"query_id,omitempty"`
	QueryTitle string `json:"query_title"`
	QueryLen   int    `json:"query_len"`
	// QuerySeq is not emitted by blastp; it is filled in from the registry
	// after a run so the report can seed a later session on its own.
	QuerySeq string `json:"query_seq,omitempty"`
	Hits     []Hit  `json:"hits"`
	Message  string `json:"message,omitempty"`
}

type Hit struct {
	Num         int           `json:"num"`
	Description []Description `json:"description"`
	Len         int           `json:"len"`
	Hsps        []Hsp         `json:"hsps"`
}

type Description struct {
	ID        string `json:"id"`
	Accession string `json:"accession"`
	Title     string `json:"title"`
	Taxid     int    `json:"taxid,omitempty"`
	Sciname   string `json:"sciname,omitempty"`
}

// Hsp is a high-scoring segment pair. Identity and Gaps are column counts.
type Hsp struct {
	Num       int     `json:"num"`
	BitScore  float64 `json:"bit_score"`
	Score     int     `json:"score"`
	Evalue    float64 `json:"evalue"`
	Identity  int     `json:"identity"`
	Positive  int     `json:"positive"`
	QueryFrom int     `json:"query_from"`
	QueryTo   int     `json:"query_to"`
	HitFrom   int     `json:"hit_from"`
	HitTo     int     `json:"hit_to"`
	AlignLen  int     `json:"align_len"`
	Gaps      int     `json:"gaps"`
	Qseq      string  `json:"qseq"`
	Hseq      string  `json:"hseq"`
	Midline   string  `json:"midline,omitempty"`
}

// Decode reads a report and checks every output carries a query block.
func Decode(r io.Reader) (*Report, error) {
	var rep Report
	if err := json.NewDecoder(r).Decode(&rep); err != nil {
		return nil, fmt.Errorf("failed to decode BLAST report: %w", err)
	}
	if err := rep.validate(); err != nil {
		return nil, err
	}
	return &rep, nil
}

func (rep *Report) validate() error {
	if rep.BlastOutput2 == nil {
		return fmt.Errorf("%w: missing BlastOutput2", ErrMalformedReport)
	}
	for i, out := range rep.BlastOutput2 {
		if out.Report.Results.Search == nil {
			return fmt.Errorf("%w: output %d has no search block", ErrMalformedReport, i)
		}
	}
	return nil
}

// Load reads a report previously written by Save (or by blastp -outfmt 15).
func Load(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("'%s' could not be opened: %w", path, err)
	}
	defer f.Close()

	rep, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("error reading '%s': %w", path, err)
	}
	return rep, nil
}

// Save writes the report as indented JSON.
func Save(path string, rep *Report) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode BLAST report: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("failed to write BLAST report: %w", err)
	}
	return nil
}

// Queries returns the query blocks in report order.
func (rep *Report) Queries() []*Search {
	out := make([]*Search, 0, len(rep.BlastOutput2))
	for _, o := range rep.BlastOutput2 {
		if o.Report.Results.Search != nil {
			out = append(out, o.Report.Results.Search)
		}
	}
	return out
}
