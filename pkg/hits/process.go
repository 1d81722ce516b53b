package hits

import (
	"strings"

	"github.com/yumyai/seqst/logger"
	"github.com/yumyai/seqst/pkg/blast"
	"github.com/yumyai/seqst/pkg/seq"
	"go.uber.org/zap"
)

const pdbIDPrefix = "pdb|"

// Result sums up one pass over a report.
type Result struct {
	// Accepted hit counts per registry descriptor present in the report.
	Accepted map[string]int
	// Unmatched counts registry descriptors without any accepted hit.
	Unmatched int
	// Skipped lists report descriptors that are not in the registry.
	Skipped []string
}

// Process walks every query block of rep and attaches the PDB entries and
// accessions of accepted hits to reg. A block carrying its query sequence is
// matched to the registry entry holding that sequence, so reports whose
// descriptors were numbered differently still land on the right entry.
// Blocks that match no entry belong to another analysis subset and are
// skipped.
func Process(rep *blast.Report, reg *seq.Registry, m *Matcher) Result {
	res := Result{Accepted: make(map[string]int)}

	for _, q := range rep.Queries() {
		d, ok := queryDescriptor(reg, q)
		if !ok {
			logger.Debug("BLAST query not in sequences, skipped", zap.String("descriptor", q.QueryTitle))
			res.Skipped = append(res.Skipped, q.QueryTitle)
			continue
		}

		queryLen := q.QueryLen
		if queryLen == 0 {
			queryLen = len(reg.Sequence(d))
		}

		pdbs := seq.NewStructures(seq.SourcePDB)
		var accessions []string
		accepted := 0

		for _, hit := range q.Hits {
			if len(hit.Hsps) == 0 {
				continue
			}
			verdict := m.Match(queryLen, hit.Hsps[0])
			if verdict != Accepted {
				logger.Debug("Hit rejected",
					zap.String("descriptor", d),
					zap.Int("hit", hit.Num),
					zap.Stringer("reason", verdict))
				continue
			}
			accepted++
			pdbs, accessions = collectIDs(hit, pdbs, accessions)
		}

		res.Accepted[d] += accepted

		if q.QuerySeq != "" {
			reg.AttachStructures(d, pdbs, q.QuerySeq)
			reg.AttachAccessions(d, accessions, q.QuerySeq)
		} else {
			reg.AttachStructuresTrusted(d, pdbs)
			reg.AttachAccessionsTrusted(d, accessions)
		}

		logger.Debug("Processed BLAST query",
			zap.String("query_title", q.QueryTitle),
			zap.String("descriptor", d),
			zap.Int("accepted", accepted),
			zap.Strings("pdb", pdbs.IDs),
			zap.Strings("accessions", accessions))
	}

	for _, n := range res.Accepted {
		if n == 0 {
			res.Unmatched++
		}
	}
	return res
}

// queryDescriptor finds the registry entry a query block belongs to. With a
// query sequence the entry must hold it; without one only the title counts.
func queryDescriptor(reg *seq.Registry, q *blast.Search) (string, bool) {
	if q.QuerySeq == "" {
		return q.QueryTitle, reg.Has(q.QueryTitle)
	}
	d, err := reg.ResolveDescriptor(q.QueryTitle, q.QuerySeq)
	if err != nil {
		return "", false
	}
	if d != q.QueryTitle {
		logger.Info("BLAST query matched under another descriptor",
			zap.String("query_title", q.QueryTitle),
			zap.String("descriptor", d))
	}
	return d, true
}

// collectIDs adds the PDB entries of hit, chain ids stripped, and the first
// new non-PDB accession.
func collectIDs(hit blast.Hit, pdbs seq.Structures, accessions []string) (seq.Structures, []string) {
	needAccession := true
	for _, desc := range hit.Description {
		if strings.HasPrefix(desc.ID, pdbIDPrefix) {
			entry, _, _ := strings.Cut(desc.Accession, "_")
			pdbs = pdbs.With(entry)
			continue
		}
		if needAccession && desc.Accession != "" && !contains(accessions, desc.Accession) {
			accessions = append(accessions, desc.Accession)
			needAccession = false
		}
	}
	return pdbs, accessions
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ExtractSequences rebuilds a registry from the query blocks of a report,
// e.g. to resume an analysis from a saved BLAST.json. Duplicate or invalid
// queries are skipped.
func ExtractSequences(rep *blast.Report) *seq.Registry {
	reg := seq.NewRegistry()
	for _, q := range rep.Queries() {
		if out := reg.Add(q.QueryTitle, q.QuerySeq); out != seq.Added {
			logger.Warn("Could not add BLAST query",
				zap.String("descriptor", q.QueryTitle),
				zap.Stringer("outcome", out))
		}
	}
	return reg
}
