package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/liveview/internal/ir"
)

// Put inserts or replaces a record.
//
// A new id gets the next insertion sequence (or rec.Seq when positive) and
// Version 1. An existing id keeps its sequence and its Version increments.
// An empty id is generated. Live collections of rec.Collection are
// re-evaluated before Put returns.
//
// The record's Fields are serialized to canonical JSON per RFC 8785.
func (s *Store) Put(ctx context.Context, rec ir.Record) (ir.Record, error) {
	if rec.Collection == "" {
		return ir.Record{}, fmt.Errorf("put: record %q has no collection", rec.ID)
	}
	fieldsJSON, err := marshalFields(rec.Fields)
	if err != nil {
		return ir.Record{}, fmt.Errorf("put: %w", err)
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	if s.isClosed() {
		return ir.Record{}, ErrClosed
	}
	if rec.ID == ir.NoRecord {
		rec.ID = s.ids.Generate()
	}

	stored, err := s.upsert(ctx, rec, fieldsJSON)
	if err != nil {
		return ir.Record{}, fmt.Errorf("put %q: %w", rec.ID, err)
	}

	s.logger.Debug("record stored", "id", string(stored.ID), "collection", stored.Collection,
		"seq", stored.Seq, "version", stored.Version)
	s.refreshCollection(context.WithoutCancel(ctx), stored.Collection)
	return stored, nil
}

func (s *Store) upsert(ctx context.Context, rec ir.Record, fieldsJSON string) (ir.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.Record{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var (
		collection string
		seq        int64
		version    int64
	)
	err = tx.QueryRowContext(ctx,
		"SELECT collection, seq, version FROM records WHERE id = ?", string(rec.ID),
	).Scan(&collection, &seq, &version)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		seq, err = nextSeq(ctx, tx, rec.Seq)
		if err != nil {
			return ir.Record{}, err
		}
		version = 1
		_, err = tx.ExecContext(ctx, `
			INSERT INTO records (id, collection, fields, seq, version)
			VALUES (?, ?, ?, ?, ?)
		`, string(rec.ID), rec.Collection, fieldsJSON, seq, version)
		if err != nil {
			return ir.Record{}, fmt.Errorf("insert: %w", err)
		}

	case err != nil:
		return ir.Record{}, fmt.Errorf("lookup: %w", err)

	default:
		if collection != rec.Collection {
			return ir.Record{}, fmt.Errorf("record belongs to %q, not %q", collection, rec.Collection)
		}
		version++
		_, err = tx.ExecContext(ctx,
			"UPDATE records SET fields = ?, version = ? WHERE id = ?",
			fieldsJSON, version, string(rec.ID))
		if err != nil {
			return ir.Record{}, fmt.Errorf("update: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return ir.Record{}, fmt.Errorf("commit: %w", err)
	}

	fields, err := unmarshalFields(fieldsJSON)
	if err != nil {
		return ir.Record{}, err
	}
	return ir.Record{
		ID:         rec.ID,
		Collection: rec.Collection,
		Fields:     fields,
		Seq:        seq,
		Version:    version,
	}, nil
}

// nextSeq advances the insertion counter. A positive requested seq is used
// as-is and moves the counter forward to it when larger.
func nextSeq(ctx context.Context, tx *sql.Tx, requested int64) (int64, error) {
	if requested > 0 {
		_, err := tx.ExecContext(ctx,
			"UPDATE meta SET value = MAX(value, ?) WHERE key = 'seq'", requested)
		if err != nil {
			return 0, fmt.Errorf("advance seq: %w", err)
		}
		return requested, nil
	}

	var seq int64
	err := tx.QueryRowContext(ctx,
		"UPDATE meta SET value = value + 1 WHERE key = 'seq' RETURNING value",
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}
	return seq, nil
}

// Delete removes a record. Returns ErrNotFound when id does not exist.
func (s *Store) Delete(ctx context.Context, id ir.RecordID) error {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	if s.isClosed() {
		return ErrClosed
	}

	var collection string
	err := s.db.QueryRowContext(ctx,
		"DELETE FROM records WHERE id = ? RETURNING collection", string(id),
	).Scan(&collection)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("delete %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete %q: %w", id, err)
	}

	s.logger.Debug("record deleted", "id", string(id), "collection", collection)
	s.refreshCollection(context.WithoutCancel(ctx), collection)
	return nil
}
