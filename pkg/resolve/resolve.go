// Package resolve fills in structures the BLAST hits did not provide, first
// by cross-checking UniProt accessions against the PDB and then by falling
// back to predicted models.
package resolve

import (
	"context"
	"fmt"

	"github.com/yumyai/seqst/logger"
	"github.com/yumyai/seqst/pkg/seq"
	"go.uber.org/zap"
)

// AccessionMapper converts sequence database accessions (GenBank, RefSeq)
// to UniProtKB accessions.
type AccessionMapper interface {
	ToUniProt(ctx context.Context, accessions []string) ([]string, error)
}

// StructureLookup lists the PDB entries annotated with a UniProt accession.
type StructureLookup interface {
	PDBEntries(ctx context.Context, uniprot string) ([]string, error)
}

// PredictionLookup finds the predicted model for a UniProt accession.
type PredictionLookup interface {
	Prediction(ctx context.Context, uniprot string) (Prediction, bool, error)
}

// Prediction is a predicted structure and where its mmCIF file lives.
type Prediction struct {
	ID  string `json:"id" yaml:"id"`
	URL string `json:"url" yaml:"url"`
}

// Summary reports what Resolve changed.
type Summary struct {
	CrossChecked map[string][]string  // descriptor -> PDB ids added by the cross-check
	Predicted    map[string]Prediction // descriptor -> predicted model used
	Unresolved   []string              // descriptors still without structures
}

// Resolver runs the lookups. Mapper and Predictions may be nil.
type Resolver struct {
	Mapper      AccessionMapper
	Structures  StructureLookup
	Predictions PredictionLookup
}

// Resolve visits every descriptor of reg in order. Work attached before an
// error or cancellation stays in reg.
func (r *Resolver) Resolve(ctx context.Context, reg *seq.Registry) (Summary, error) {
	sum := Summary{
		CrossChecked: make(map[string][]string),
		Predicted:    make(map[string]Prediction),
	}

	for _, d := range reg.Descriptors() {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		uniprot, err := r.uniprotAccessions(ctx, reg, d)
		if err != nil {
			return sum, fmt.Errorf("mapping accessions of '%s': %w", d, err)
		}

		if r.Structures != nil && len(uniprot) > 0 {
			added, err := r.crossCheck(ctx, reg, d, uniprot)
			if err != nil {
				return sum, fmt.Errorf("PDB cross-check of '%s': %w", d, err)
			}
			if len(added) > 0 {
				sum.CrossChecked[d] = added
			}
		}

		if reg.StructuresOf(d).Empty() && r.Predictions != nil {
			pred, ok, err := r.predict(ctx, reg, d, uniprot)
			if err != nil {
				return sum, fmt.Errorf("prediction lookup of '%s': %w", d, err)
			}
			if ok {
				sum.Predicted[d] = pred
			}
		}

		if reg.StructuresOf(d).Empty() {
			sum.Unresolved = append(sum.Unresolved, d)
		}
	}

	return sum, nil
}

func (r *Resolver) uniprotAccessions(ctx context.Context, reg *seq.Registry, d string) ([]string, error) {
	accessions := reg.AccessionsOf(d)
	if r.Mapper == nil || len(accessions) == 0 {
		return accessions, nil
	}

	logger.Debug("Converting accessions to UniProt", zap.String("descriptor", d), zap.Strings("accessions", accessions))
	uniprot, err := r.Mapper.ToUniProt(ctx, accessions)
	if err != nil {
		return nil, err
	}
	reg.AttachAccessionsTrusted(d, uniprot)
	return uniprot, nil
}

// crossCheck merges PDB entries found through the accessions into the
// descriptor's PDB structures, replacing structures of any other source.
func (r *Resolver) crossCheck(ctx context.Context, reg *seq.Registry, d string, uniprot []string) ([]string, error) {
	pdbs := reg.StructuresOf(d)
	if pdbs.Source != seq.SourcePDB {
		pdbs = seq.NewStructures(seq.SourcePDB)
	}

	var added []string
	for _, acc := range uniprot {
		entries, err := r.Structures.PDBEntries(ctx, acc)
		if err != nil {
			return nil, err
		}
		for _, id := range entries {
			if !pdbs.Contains(id) {
				pdbs = pdbs.With(id)
				added = append(added, id)
			}
		}
	}

	if len(added) > 0 {
		reg.AttachStructuresTrusted(d, pdbs)
		logger.Info("Found PDB entries through UniProt",
			zap.String("descriptor", d),
			zap.Strings("pdb", added))
	}
	return added, nil
}

// predict takes the model of the first accession that has one.
func (r *Resolver) predict(ctx context.Context, reg *seq.Registry, d string, uniprot []string) (Prediction, bool, error) {
	for _, acc := range uniprot {
		pred, ok, err := r.Predictions.Prediction(ctx, acc)
		if err != nil {
			return Prediction{}, false, err
		}
		if !ok {
			continue
		}
		reg.AttachStructuresTrusted(d, seq.NewStructures(seq.SourceAlphaFold, pred.ID))
		logger.Info("Using predicted model",
			zap.String("descriptor", d),
			zap.String("model", pred.ID),
			zap.String("url", pred.URL))
		return pred, true, nil
	}
	return Prediction{}, false, nil
}
