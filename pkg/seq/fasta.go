package seq

import (
	"bufio"
	"io"
	"strings"

	"github.com/yumyai/seqst/logger"
	"go.uber.org/zap"
)

// Record is a single FASTA entry.
type Record struct {
	Header   string
	Sequence string
}

// ParseFasta reads FASTA records from r. Sequence lines are trimmed and
// concatenated; blank lines are ignored. Lines before the first header form
// a record with an empty header so that a bare sequence is still read.
func ParseFasta(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var records []Record
	var current *Record
	var body strings.Builder

	flush := func() {
		if current == nil {
			return
		}
		current.Sequence = body.String()
		records = append(records, *current)
		body.Reset()
		current = nil
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ">") {
			flush()
			current = &Record{Header: strings.TrimSpace(line[1:])}
			continue
		}
		if current == nil {
			current = &Record{}
		}
		body.WriteString(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()

	return records, nil
}

// LoadReport counts what happened to each record read into a registry.
type LoadReport struct {
	Added     int
	Invalid   int
	Duplicate int
	Empty     int
}

// ReadFasta parses r and adds every record to reg, upper-casing sequences
// first. Rejected records are logged and counted, never fatal.
func ReadFasta(r io.Reader, reg *Registry) (LoadReport, error) {
	var rep LoadReport

	records, err := ParseFasta(r)
	if err != nil {
		return rep, err
	}

	for _, rec := range records {
		if rec.Sequence == "" {
			rep.Empty++
			continue
		}
		sequence := strings.ToUpper(rec.Sequence)
		switch reg.Add(rec.Header, sequence) {
		case Added:
			rep.Added++
		case Invalid:
			rep.Invalid++
			logger.Warn("Not a valid protein sequence, skipped",
				zap.String("descriptor", rec.Header),
				zap.String("sequence", sequence))
		case Duplicate:
			rep.Duplicate++
			logger.Warn("Duplicate sequence, skipped",
				zap.String("descriptor", rec.Header))
		}
	}

	return rep, nil
}
