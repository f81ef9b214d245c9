// Package cqlsource reads every row of a Cassandra or Scylla table as a record source.
//
// Rows are fetched with SELECT JSON, so column values arrive already encoded as JSON scalars.
package cqlsource

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/bluesky-social/scancache/records"

	"github.com/gocql/gocql"
)

var identRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,47}$`)

type Source struct {
	session *gocql.Session
	table   string
}

var _ records.Source = (*Source)(nil)
var _ records.Seeder = (*Source)(nil)

type Config struct {
	Hosts    []string
	Keyspace string
	Table    string
	Timeout  time.Duration
}

func Open(config Config) (*Source, error) {
	if len(config.Hosts) == 0 {
		return nil, fmt.Errorf("at least one cassandra host is required")
	}
	if !identRegex.MatchString(config.Keyspace) {
		return nil, fmt.Errorf("invalid cassandra keyspace: %q", config.Keyspace)
	}
	if !identRegex.MatchString(config.Table) {
		return nil, fmt.Errorf("invalid cassandra table: %q", config.Table)
	}

	cluster := gocql.NewCluster(config.Hosts...)
	cluster.Keyspace = config.Keyspace
	cluster.Consistency = gocql.One
	cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.RoundRobinHostPolicy())
	if config.Timeout > 0 {
		cluster.Timeout = config.Timeout
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create cassandra session: %w", err)
	}
	return &Source{
		session: session,
		table:   config.Table,
	}, nil
}

func selectAllQuery(table string) string {
	return "SELECT JSON * FROM " + table
}

func insertJSONQuery(table string) string {
	return "INSERT INTO " + table + " JSON ?"
}

// ScanAll reads the whole table. The driver pages through large results transparently; the
// caller always gets the complete set.
func (s *Source) ScanAll(ctx context.Context) (*records.ScanResult, error) {
	iter := s.session.Query(selectAllQuery(s.table)).WithContext(ctx).Iter()
	recs, err := decodeRows(iter)
	if err != nil {
		return nil, fmt.Errorf("scanning table %s: %w", s.table, err)
	}
	return &records.ScanResult{Records: recs}, nil
}

// rowIter is the part of *gocql.Iter used to read SELECT JSON results
type rowIter interface {
	Scan(dest ...any) bool
	Close() error
}

func decodeRows(iter rowIter) ([]records.Record, error) {
	out := []records.Record{}
	var row string
	for iter.Scan(&row) {
		rec, err := records.DecodeJSON([]byte(row))
		if err != nil {
			iter.Close()
			return nil, err
		}
		out = append(out, rec)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Source) PutAll(ctx context.Context, recs []records.Record) error {
	q := insertJSONQuery(s.table)
	for i, rec := range recs {
		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encoding record %d: %w", i, err)
		}
		if err := s.session.Query(q, string(b)).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("inserting record %d: %w", i, err)
		}
	}
	return nil
}

func (s *Source) Close() error {
	s.session.Close()
	return nil
}
