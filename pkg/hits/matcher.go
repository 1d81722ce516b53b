package hits

import (
	"fmt"

	"github.com/yumyai/seqst/pkg/blast"
)

// Default thresholds: identical outside gaps, 90% of the query covered and a
// single gap run, enough for one purification tag or linker.
const (
	DefaultIdentity = 1.0
	DefaultCoverage = 0.9
	DefaultGapRuns  = 1
)

const gapChar = '-'

type Thresholds struct {
	Identity float64 `mapstructure:"ident" yaml:"ident"`
	Coverage float64 `mapstructure:"cov" yaml:"cov"`
	GapRuns  int     `mapstructure:"gaps" yaml:"gaps"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Identity: DefaultIdentity,
		Coverage: DefaultCoverage,
		GapRuns:  DefaultGapRuns,
	}
}

func (th Thresholds) Validate() error {
	if th.Identity < 0 || th.Identity > 1 {
		return fmt.Errorf("identity threshold %v outside [0,1]", th.Identity)
	}
	if th.Coverage < 0 || th.Coverage > 1 {
		return fmt.Errorf("coverage threshold %v outside [0,1]", th.Coverage)
	}
	if th.GapRuns < 0 {
		return fmt.Errorf("gap run limit %d is negative", th.GapRuns)
	}
	return nil
}

// Stats summarises one alignment of a hit against its query.
type Stats struct {
	Coverage float64 // aligned length / query length
	Identity float64 // identical columns / columns without a gap
	GapRuns  int     // gap runs on the strand with the most
}

type Verdict int

const (
	Accepted Verdict = iota
	RejectedCoverage
	RejectedGaps
	RejectedIdentity
)

func (v Verdict) String() string {
	switch v {
	case Accepted:
		return "accepted"
	case RejectedCoverage:
		return "coverage"
	case RejectedGaps:
		return "gaps"
	case RejectedIdentity:
		return "identity"
	default:
		return "unknown"
	}
}

// Matcher decides whether a hit is the query protein itself, allowing for
// tags and partial constructs, rather than a homologue.
type Matcher struct {
	Thresholds Thresholds
}

func NewMatcher(th Thresholds) *Matcher {
	return &Matcher{Thresholds: th}
}

// Check applies coverage, gap run and identity limits in that order. Every
// limit is inclusive.
func (m *Matcher) Check(st Stats) Verdict {
	if st.Coverage < m.Thresholds.Coverage {
		return RejectedCoverage
	}
	if st.GapRuns > m.Thresholds.GapRuns {
		return RejectedGaps
	}
	if st.Identity < m.Thresholds.Identity {
		return RejectedIdentity
	}
	return Accepted
}

// Match checks a single HSP against a query of queryLen residues.
func (m *Matcher) Match(queryLen int, hsp blast.Hsp) Verdict {
	return m.Check(AlignmentStats(queryLen, hsp))
}

// AlignmentStats derives Stats from the aligned strings of hsp. Reports
// without aligned strings fall back to the HSP counters, where any gaps are
// taken to form a single run.
func AlignmentStats(queryLen int, hsp blast.Hsp) Stats {
	var st Stats

	alignLen := hsp.AlignLen
	if alignLen == 0 {
		alignLen = len(hsp.Qseq)
	}
	if queryLen > 0 {
		st.Coverage = float64(alignLen) / float64(queryLen)
	}

	if hsp.Qseq != "" && len(hsp.Qseq) == len(hsp.Hseq) {
		var compared, identical int
		st.GapRuns, compared, identical = scanColumns(hsp.Qseq, hsp.Hseq)
		if compared > 0 {
			st.Identity = float64(identical) / float64(compared)
		}
		return st
	}

	if hsp.Gaps > 0 {
		st.GapRuns = 1
	}
	if compared := alignLen - hsp.Gaps; compared > 0 {
		st.Identity = float64(hsp.Identity) / float64(compared)
	}
	return st
}

// scanColumns counts gap runs on each strand separately and reports the
// larger count, so a linker gap in the query and a missing residue in the
// hit are one run each.
func scanColumns(q, h string) (runs, compared, identical int) {
	var qRuns, hRuns int
	var qGap, hGap bool
	for i := 0; i < len(q); i++ {
		qIsGap, hIsGap := q[i] == gapChar, h[i] == gapChar
		if qIsGap && !qGap {
			qRuns++
		}
		if hIsGap && !hGap {
			hRuns++
		}
		qGap, hGap = qIsGap, hIsGap
		if qIsGap || hIsGap {
			continue
		}
		compared++
		if q[i] == h[i] {
			identical++
		}
	}
	return max(qRuns, hRuns), compared, identical
}
