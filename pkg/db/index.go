package db

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/yumyai/seqst/logger"
	"github.com/yumyai/seqst/pkg/resolve"
	"go.uber.org/zap"
)

// Table names a loadable part of the structure index.
type Table string

const (
	TableUniProtMap  Table = "uniprot_map"
	TablePDBEntries  Table = "pdb_entries"
	TablePredictions Table = "predictions"
)

var ErrUnknownTable = errors.New("unknown index table")

// Index answers the resolver's lookups from a local SQLite copy of the
// UniProt id mapping, the PDB's UniProt annotations and predicted models.
type Index struct {
	db    *sql.DB
	cache *cache.Cache
}

var (
	_ resolve.AccessionMapper  = (*Index)(nil)
	_ resolve.StructureLookup  = (*Index)(nil)
	_ resolve.PredictionLookup = (*Index)(nil)
)

// NewIndex wraps db. Lookups are memoised for ttl; ttl <= 0 disables that.
func NewIndex(db *sql.DB, ttl time.Duration) *Index {
	ix := &Index{db: db}
	if ttl > 0 {
		ix.cache = cache.New(ttl, 2*ttl)
	}
	return ix
}

func (ix *Index) cached(key string) (interface{}, bool) {
	if ix.cache == nil {
		return nil, false
	}
	return ix.cache.Get(key)
}

func (ix *Index) remember(key string, v interface{}) {
	if ix.cache != nil {
		ix.cache.Set(key, v, cache.DefaultExpiration)
	}
}

// AddMapping records that accession maps to the UniProtKB entry uniprot.
func (ix *Index) AddMapping(ctx context.Context, accession, uniprot string) error {
	_, err := ix.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO uniprot_map (accession, uniprot) VALUES (?, ?)`,
		accession, uniprot)
	if err != nil {
		return fmt.Errorf("failed to insert mapping: %w", err)
	}
	ix.flush()
	return nil
}

// AddPDBEntry records a PDB entry annotated with uniprot. Chain suffixes
// ("1ABC_A") are dropped.
func (ix *Index) AddPDBEntry(ctx context.Context, uniprot, pdbID string) error {
	_, err := ix.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO pdb_entries (uniprot, pdb_id) VALUES (?, ?)`,
		uniprot, normalisePDB(pdbID))
	if err != nil {
		return fmt.Errorf("failed to insert PDB entry: %w", err)
	}
	ix.flush()
	return nil
}

// AddPrediction records (or replaces) the predicted model for uniprot.
func (ix *Index) AddPrediction(ctx context.Context, uniprot string, p resolve.Prediction) error {
	_, err := ix.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO predictions (uniprot, model_id, cif_url) VALUES (?, ?, ?)`,
		uniprot, p.ID, p.URL)
	if err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}
	ix.flush()
	return nil
}

func (ix *Index) flush() {
	if ix.cache != nil {
		ix.cache.Flush()
	}
}

func normalisePDB(id string) string {
	entry, _, _ := strings.Cut(strings.TrimSpace(id), "_")
	return strings.ToUpper(entry)
}

// ToUniProt maps accessions to UniProtKB accessions, keeping first-seen
// order and dropping repeats.
func (ix *Index) ToUniProt(ctx context.Context, accessions []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)

	for _, acc := range accessions {
		mapped, err := ix.mapOne(ctx, acc)
		if err != nil {
			return nil, err
		}
		for _, u := range mapped {
			if !seen[u] {
				seen[u] = true
				out = append(out, u)
			}
		}
	}
	return out, nil
}

func (ix *Index) mapOne(ctx context.Context, accession string) ([]string, error) {
	key := "map:" + accession
	if v, ok := ix.cached(key); ok {
		return v.([]string), nil
	}

	// Versioned RefSeq/GenBank accessions (NP_000509.1) map like unversioned ones.
	base, _, _ := strings.Cut(accession, ".")
	out, err := ix.strings(ctx,
		`SELECT uniprot FROM uniprot_map WHERE accession IN (?, ?) ORDER BY rowid`,
		accession, base)
	if err != nil {
		return nil, fmt.Errorf("failed to map %s: %w", accession, err)
	}
	ix.remember(key, out)
	return out, nil
}

// PDBEntries lists PDB entries annotated with uniprot in insertion order.
func (ix *Index) PDBEntries(ctx context.Context, uniprot string) ([]string, error) {
	key := "pdb:" + uniprot
	if v, ok := ix.cached(key); ok {
		return append([]string(nil), v.([]string)...), nil
	}

	out, err := ix.strings(ctx,
		`SELECT pdb_id FROM pdb_entries WHERE uniprot = ? ORDER BY rowid`, uniprot)
	if err != nil {
		return nil, fmt.Errorf("failed to look up PDB entries of %s: %w", uniprot, err)
	}
	ix.remember(key, out)
	return append([]string(nil), out...), nil
}

// Prediction returns the predicted model for uniprot, if the index has one.
func (ix *Index) Prediction(ctx context.Context, uniprot string) (resolve.Prediction, bool, error) {
	key := "af:" + uniprot
	if v, ok := ix.cached(key); ok {
		p := v.(*resolve.Prediction)
		if p == nil {
			return resolve.Prediction{}, false, nil
		}
		return *p, true, nil
	}

	var p resolve.Prediction
	err := ix.db.QueryRowContext(ctx,
		`SELECT model_id, cif_url FROM predictions WHERE uniprot = ?`, uniprot).Scan(&p.ID, &p.URL)
	if errors.Is(err, sql.ErrNoRows) {
		ix.remember(key, (*resolve.Prediction)(nil))
		return resolve.Prediction{}, false, nil
	}
	if err != nil {
		return resolve.Prediction{}, false, fmt.Errorf("failed to look up prediction of %s: %w", uniprot, err)
	}
	ix.remember(key, &p)
	return p, true, nil
}

func (ix *Index) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := ix.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Import loads tab separated rows into table inside one transaction:
// accession/uniprot for uniprot_map, uniprot/pdb_id for pdb_entries and
// uniprot/model_id[/cif_url] for predictions. Lines starting with '#' are
// comments. It returns the number of rows read.
func (ix *Index) Import(ctx context.Context, table Table, r io.Reader) (int, error) {
	var stmt string
	minFields := 2
	switch table {
	case TableUniProtMap:
		stmt = `INSERT OR IGNORE INTO uniprot_map (accession, uniprot) VALUES (?, ?)`
	case TablePDBEntries:
		stmt = `INSERT OR IGNORE INTO pdb_entries (uniprot, pdb_id) VALUES (?, ?)`
	case TablePredictions:
		stmt = `INSERT OR REPLACE INTO predictions (uniprot, model_id, cif_url) VALUES (?, ?, ?)`
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.Comment = '#'
	cr.FieldsPerRecord = -1

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("fail to begin tx %w", err)
	}
	defer tx.Rollback()

	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return 0, err
	}
	defer prepared.Close()

	n := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read %s row: %w", table, err)
		}
		if len(rec) < minFields {
			line, _ := cr.FieldPos(0)
			return 0, fmt.Errorf("%s line %d: expected at least %d fields, got %d", table, line, minFields, len(rec))
		}

		args := []any{strings.TrimSpace(rec[0]), strings.TrimSpace(rec[1])}
		switch table {
		case TablePDBEntries:
			args[1] = normalisePDB(rec[1])
		case TablePredictions:
			url := ""
			if len(rec) > 2 {
				url = strings.TrimSpace(rec[2])
			}
			args = append(args, url)
		}

		if _, err := prepared.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("failed to insert %s row: %w", table, err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit %s: %w", table, err)
	}
	ix.flush()

	logger.Info("Imported index table", zap.String("table", string(table)), zap.Int("rows", n))
	return n, nil
}
