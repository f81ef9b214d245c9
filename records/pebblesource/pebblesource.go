// Package pebblesource treats a key range of a pebble database as a table of JSON records.
//
// Schema:
// {table}/{key} : {JSON object}
package pebblesource

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/bluesky-social/scancache/records"

	"github.com/cockroachdb/pebble"
)

type Source struct {
	db    *pebble.DB
	table string
	log   *slog.Logger
}

var _ records.Source = (*Source)(nil)
var _ records.Seeder = (*Source)(nil)

func Open(pebblePath, table string, logger *slog.Logger) (*Source, error) {
	db, err := pebble.Open(pebblePath, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("%s: could not open db, %w", pebblePath, err)
	}
	return New(db, table, logger), nil
}

func New(db *pebble.DB, table string, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		db:    db,
		table: table,
		log:   logger.With("source", "pebble", "table", table),
	}
}

func (s *Source) prefix() []byte {
	return []byte(s.table + "/")
}

func (s *Source) recordKey(key string) []byte {
	return append(s.prefix(), key...)
}

func (s *Source) ScanAll(ctx context.Context) (*records.ScanResult, error) {
	lower := s.prefix()
	// '0' sorts directly after '/', so this bounds exactly the {table}/ keys
	upper := []byte(s.table + "0")
	iter, err := s.db.NewIterWithContext(ctx, &pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upper,
	})
	if err != nil {
		return nil, fmt.Errorf("record iter start, %w", err)
	}
	defer iter.Close()

	out := []records.Record{}
	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return nil, fmt.Errorf("record iter, %w", err)
		}
		rec, err := records.DecodeJSON(value)
		if err != nil {
			return nil, fmt.Errorf("record %q: %w", iter.Key(), err)
		}
		out = append(out, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("record iter, %w", err)
	}
	s.log.Debug("scanned records", "count", len(out))
	return &records.ScanResult{Records: out}, nil
}

func (s *Source) PutAll(ctx context.Context, recs []records.Record) error {
	batch := s.db.NewBatch()
	defer batch.Close()
	for i, rec := range recs {
		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encoding record %d: %w", i, err)
		}
		if err := batch.Set(s.recordKey(records.Key(rec, i)), b, nil); err != nil {
			return fmt.Errorf("batch set: %w", err)
		}
	}
	return batch.Commit(pebble.Sync)
}

func (s *Source) Close() error {
	err := s.db.Flush()
	if err != nil {
		s.log.Error("pebble flush", "err", err)
	}
	err = s.db.Close()
	if err != nil {
		s.log.Error("pebble close", "err", err)
	}
	return err
}
