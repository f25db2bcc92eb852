package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/liveview/internal/ir"
	"github.com/roach88/liveview/internal/queryir"
)

// Get returns one record, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id ir.RecordID) (ir.Record, error) {
	if s.isClosed() {
		return ir.Record{}, ErrClosed
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, collection, fields, seq, version
		FROM records
		WHERE id = ?
	`, string(id))

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Record{}, fmt.Errorf("get %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return ir.Record{}, fmt.Errorf("get %q: %w", id, err)
	}
	return rec, nil
}

// List evaluates q once.
// Results are ordered deterministically: ORDER BY seq ASC, id COLLATE BINARY ASC.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) List(ctx context.Context, q queryir.Select) ([]ir.Record, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	query, params, err := s.compiler.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	return s.query(ctx, query, params)
}

// query runs compiled SQL and scans every row before returning, so the
// single pooled connection is free for the next statement.
func (s *Store) query(ctx context.Context, query string, params []any) ([]ir.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []ir.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	return records, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanRecord scans a row in querysql.Columns order.
func scanRecord(row scanner) (ir.Record, error) {
	var (
		id, collection, fieldsJSON string
		rec                        ir.Record
	)
	if err := row.Scan(&id, &collection, &fieldsJSON, &rec.Seq, &rec.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.Record{}, err
		}
		return ir.Record{}, fmt.Errorf("scan record: %w", err)
	}

	fields, err := unmarshalFields(fieldsJSON)
	if err != nil {
		return ir.Record{}, fmt.Errorf("record %q: %w", id, err)
	}

	rec.ID = ir.RecordID(id)
	rec.Collection = collection
	rec.Fields = fields
	return rec, nil
}
