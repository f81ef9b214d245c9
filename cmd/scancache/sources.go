package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bluesky-social/scancache/records"
	"github.com/bluesky-social/scancache/records/cqlsource"
	"github.com/bluesky-social/scancache/records/dynamosource"
	"github.com/bluesky-social/scancache/records/pebblesource"
	"github.com/bluesky-social/scancache/records/redissource"
	"github.com/bluesky-social/scancache/records/sqlsource"

	cli "github.com/urfave/cli/v2"
)

// openSource connects to the backing store selected by the --source flag.
func openSource(ctx context.Context, cctx *cli.Context, logger *slog.Logger) (records.Source, error) {
	name := cctx.String("source")
	table := cctx.String("table-name")
	logger.Info("opening source", "source", name, "table", table)

	switch name {
	case "dynamodb":
		return dynamosource.Open(ctx, dynamosource.Config{
			Table:    table,
			Region:   cctx.String("aws-region"),
			Endpoint: cctx.String("dynamodb-endpoint"),
			Logger:   logger,
		})
	case "sql":
		return sqlsource.Open(cctx.String("database-url"), table, cctx.Int("max-db-connections"), logger)
	case "pebble":
		return pebblesource.Open(cctx.String("pebble-path"), table, logger)
	case "cql":
		return cqlsource.Open(cqlsource.Config{
			Hosts:    cctx.StringSlice("cql-hosts"),
			Keyspace: cctx.String("cql-keyspace"),
			Table:    table,
			Timeout:  10 * time.Second,
		})
	case "redis":
		return redissource.Open(ctx, cctx.String("redis-url"), table)
	default:
		return nil, fmt.Errorf("%w: %q", records.ErrUnknownSource, name)
	}
}
