package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/yumyai/seqst/pkg/hits"
	"github.com/yumyai/seqst/pkg/seq"
)

// RunEntry is one registry entry as recorded for a run.
type RunEntry struct {
	Descriptor string
	Sequence   string
	Structures seq.Structures
	Accessions []string
}

// RunStore keeps the outcome of every analysis run.
type RunStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db, now: time.Now}
}

// Record stores every entry of reg under a new run id.
func (s *RunStore) Record(ctx context.Context, reg *seq.Registry, th hits.Thresholds) (uuid.UUID, error) {
	id := uuid.New()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("fail to begin tx %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, ident, cov, gaps) VALUES (?, ?, ?, ?, ?)`,
		id.String(), s.now().UTC().Format(time.RFC3339), th.Identity, th.Coverage, th.GapRuns); err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_entries (run_id, position, descriptor, sequence, source, structures, accessions)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return uuid.Nil, err
	}
	defer stmt.Close()

	for i, d := range reg.Descriptors() {
		st := reg.StructuresOf(d)
		ids, err := marshalList(st.IDs)
		if err != nil {
			return uuid.Nil, err
		}
		accs, err := marshalList(reg.AccessionsOf(d))
		if err != nil {
			return uuid.Nil, err
		}
		if _, err := stmt.ExecContext(ctx, id.String(), i, d, reg.Sequence(d), string(st.Source), ids, accs); err != nil {
			return uuid.Nil, fmt.Errorf("failed to insert entry %s: %w", d, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("failed to commit run: %w", err)
	}
	return id, nil
}

// Entries returns the entries of run id in registry order.
func (s *RunStore) Entries(ctx context.Context, id uuid.UUID) ([]RunEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT descriptor, sequence, source, structures, accessions
		 FROM run_entries WHERE run_id = ? ORDER BY position`, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query run %s: %w", id, err)
	}
	defer rows.Close()

	var out []RunEntry
	for rows.Next() {
		var e RunEntry
		var source, ids, accs string
		if err := rows.Scan(&e.Descriptor, &e.Sequence, &source, &ids, &accs); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.Structures.Source = seq.Source(source)
		if err := json.Unmarshal([]byte(ids), &e.Structures.IDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal structures: %w", err)
		}
		if err := json.Unmarshal([]byte(accs), &e.Accessions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal accessions: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func marshalList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("failed to marshal list: %w", err)
	}
	return string(b), nil
}
