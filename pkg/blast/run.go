package blast

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/yumyai/seqst/logger"
	"github.com/yumyai/seqst/pkg/seq"
	"go.uber.org/zap"
)

var ErrNoQueries = errors.New("no sequences to run BLAST on")

// CommandError keeps what the BLAST executable printed on failure.
type CommandError struct {
	Cmd    string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("failed to execute %s: %v", e.Cmd, e.Err)
	}
	return fmt.Sprintf("failed to execute %s: %v - %s", e.Cmd, e.Err, msg)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Runner executes a local BLAST+ protein search.
type Runner struct {
	Bin        string // defaults to blastp
	DB         string
	Remote     bool // let blastp submit the search to NCBI itself
	MaxTargets int
}

func (r Runner) args() []string {
	args := []string{"-db", r.DB, "-outfmt", "15"}
	if r.MaxTargets > 0 {
		args = append(args, "-max_target_seqs", strconv.Itoa(r.MaxTargets))
	}
	if r.Remote {
		args = append(args, "-remote")
	}
	return args
}

// Run searches every sequence in reg and returns the parsed report with
// query_seq filled in from the registry.
func (r Runner) Run(ctx context.Context, reg *seq.Registry) (*Report, error) {
	query := reg.FASTA()
	if query == "" {
		return nil, ErrNoQueries
	}

	bin := r.Bin
	if bin == "" {
		bin = "blastp"
	}

	cmd := exec.CommandContext(ctx, bin, r.args()...)
	cmd.Stdin = strings.NewReader(query)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	logger.Info("BLAST is running",
		zap.String("cmd", bin),
		zap.String("db", r.DB),
		zap.Bool("remote", r.Remote),
		zap.Int("queries", reg.Len()))

	if err := cmd.Run(); err != nil {
		return nil, &CommandError{Cmd: bin, Stderr: stderr.String(), Err: err}
	}

	rep, err := Decode(&out)
	if err != nil {
		return nil, fmt.Errorf("failed to parse BLAST output: %w", err)
	}

	for _, q := range rep.Queries() {
		q.QuerySeq = reg.Sequence(q.QueryTitle)
		if q.QuerySeq == "" {
			logger.Warn("BLAST query title not found in sequences", zap.String("query_title", q.QueryTitle))
		}
	}

	logger.Info("BLAST finished", zap.Int("queries", len(rep.Queries())))
	return rep, nil
}
