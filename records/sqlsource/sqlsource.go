// Package sqlsource scans a relational table (sqlite or postgres, via gorm) as a record source.
package sqlsource

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/bluesky-social/scancache/records"
	"github.com/bluesky-social/scancache/util/cliutil"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/opentelemetry/tracing"
)

var tableNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

type Source struct {
	db    *gorm.DB
	table string
}

var _ records.Source = (*Source)(nil)
var _ records.Seeder = (*Source)(nil)

// Open connects to the database at dburl (see cliutil.SetupDatabase for accepted formats).
func Open(dburl, table string, maxConnections int, logger *slog.Logger) (*Source, error) {
	if !tableNameRegex.MatchString(table) {
		return nil, fmt.Errorf("invalid SQL table name: %q", table)
	}
	db, err := cliutil.SetupDatabase(dburl, maxConnections, logger)
	if err != nil {
		return nil, fmt.Errorf("opening record database: %w", err)
	}
	if err := db.Use(tracing.NewPlugin()); err != nil {
		return nil, fmt.Errorf("installing gorm tracing: %w", err)
	}
	return New(db, table)
}

func New(db *gorm.DB, table string) (*Source, error) {
	if !tableNameRegex.MatchString(table) {
		return nil, fmt.Errorf("invalid SQL table name: %q", table)
	}
	return &Source{db: db, table: table}, nil
}

func (s *Source) ScanAll(ctx context.Context) (*records.ScanResult, error) {
	rows, err := s.db.WithContext(ctx).Table(s.table).Rows()
	if err != nil {
		return nil, fmt.Errorf("scanning table %s: %w", s.table, err)
	}
	defer rows.Close()

	cols, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("reading column types: %w", err)
	}

	out := []records.Record{}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for rows.Next() {
		for i := range vals {
			vals[i] = nil
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		rec := make(records.Record, len(cols))
		for i, col := range cols {
			rec[col.Name()] = columnValue(col, vals[i])
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating table %s: %w", s.table, err)
	}
	return &records.ScanResult{Records: out}, nil
}

// exact numeric columns come back from some drivers as text; they are reported as floats
func columnValue(col *sql.ColumnType, v any) any {
	switch strings.ToUpper(col.DatabaseTypeName()) {
	case "NUMERIC", "DECIMAL":
		var s string
		switch raw := v.(type) {
		case string:
			s = raw
		case []byte:
			s = string(raw)
		}
		if s != "" {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return records.NormalizeValue(f)
			}
		}
	}
	return records.NormalizeValue(v)
}

// PutAll creates the table if needed, with columns inferred from the records, and inserts every record.
func (s *Source) PutAll(ctx context.Context, recs []records.Record) error {
	if len(recs) == 0 {
		return nil
	}
	db := s.db.WithContext(ctx)

	colTypes := map[string]string{}
	for _, rec := range recs {
		for k, v := range rec {
			if _, ok := colTypes[k]; ok && v == nil {
				continue
			}
			colTypes[k] = sqlType(v)
		}
	}
	names := make([]string, 0, len(colTypes))
	for k := range colTypes {
		names = append(names, k)
	}
	sort.Strings(names)

	defs := make([]string, len(names))
	for i, name := range names {
		defs[i] = db.Statement.Quote(name) + " " + colTypes[name]
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", db.Statement.Quote(clause.Table{Name: s.table}), strings.Join(defs, ", "))
	if err := db.Exec(ddl).Error; err != nil {
		return fmt.Errorf("creating table %s: %w", s.table, err)
	}

	rows := make([]map[string]any, len(recs))
	for i, rec := range recs {
		rows[i] = map[string]any(rec)
	}
	if err := db.Table(s.table).Create(&rows).Error; err != nil {
		return fmt.Errorf("inserting records into %s: %w", s.table, err)
	}
	return nil
}

func sqlType(v any) string {
	switch v.(type) {
	case float64, float32, int, int64, int32:
		return "DOUBLE PRECISION"
	case bool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func (s *Source) Close() error {
	sqldb, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqldb.Close()
}
