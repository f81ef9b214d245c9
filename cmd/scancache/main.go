package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bluesky-social/scancache/readthrough"
	"github.com/bluesky-social/scancache/records"
	"github.com/bluesky-social/scancache/snapcache"
	"github.com/bluesky-social/scancache/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "scancache",
		Usage:   "read-through cache in front of a full table scan",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "table-name",
			Usage:   "name of the table (or key prefix) to scan",
			Value:   "llm_scores",
			EnvVars: []string{"TABLE_NAME"},
		},
		&cli.StringFlag{
			Name:    "source",
			Usage:   "backing store type: dynamodb, sql, pebble, cql, redis",
			Value:   "dynamodb",
			EnvVars: []string{"SCANCACHE_SOURCE"},
		},
		&cli.StringFlag{
			Name:    "aws-region",
			Usage:   "AWS region for the dynamodb source (defaults to the standard AWS environment)",
			EnvVars: []string{"AWS_REGION"},
		},
		&cli.StringFlag{
			Name:    "dynamodb-endpoint",
			Usage:   "override DynamoDB endpoint, eg for DynamoDB Local",
			EnvVars: []string{"SCANCACHE_DYNAMODB_ENDPOINT"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "database connection string for the sql source (sqlite or postgres)",
			Value:   "sqlite://data/scancache/records.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			Value:   8,
			EnvVars: []string{"SCANCACHE_MAX_DB_CONNECTIONS"},
		},
		&cli.StringFlag{
			Name:    "pebble-path",
			Usage:   "directory of the pebble database for the pebble source",
			Value:   "data/scancache/pebble",
			EnvVars: []string{"SCANCACHE_PEBBLE_PATH"},
		},
		&cli.StringSliceFlag{
			Name:    "cql-hosts",
			Usage:   "cassandra/scylla contact points for the cql source",
			Value:   cli.NewStringSlice("localhost:9042"),
			EnvVars: []string{"SCANCACHE_CQL_HOSTS"},
		},
		&cli.StringFlag{
			Name:    "cql-keyspace",
			Value:   "scancache",
			EnvVars: []string{"SCANCACHE_CQL_KEYSPACE"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL for the redis source: redis://<user>:<pass>@<hostname>:6379/<db>",
			Value:   "redis://localhost:6379/0",
			EnvVars: []string{"SCANCACHE_REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"SCANCACHE_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format: json or text",
			EnvVars: []string{"SCANCACHE_LOG_FMT", "LOG_FMT"},
		},
	}

	app.Commands = []*cli.Command{
		serveCmd,
		lambdaCmd,
		scanCmd,
		seedCmd,
	}

	return app.Run(args)
}

var cacheFlags = []cli.Flag{
	&cli.IntFlag{
		Name:    "cache-ttl-seconds",
		Usage:   "how long a fetched snapshot is served before the table is scanned again",
		Value:   int(snapcache.DefaultTTL / time.Second),
		EnvVars: []string{"CACHE_TTL_SECONDS"},
	},
	&cli.BoolFlag{
		Name:    "coalesce-refresh",
		Usage:   "share one scan between concurrent cache misses, instead of each miss scanning",
		EnvVars: []string{"SCANCACHE_COALESCE_REFRESH"},
	},
}

func configLogger(cctx *cli.Context) (*slog.Logger, error) {
	return cliutil.SetupSlog(cliutil.LogOptions{
		LogLevel:  cctx.String("log-level"),
		LogFormat: cctx.String("log-format"),
	})
}

// configHandler wires the snapshot store and read-through handler to an already-open source.
func configHandler(cctx *cli.Context, logger *slog.Logger, src records.Source) (*readthrough.Handler, *snapcache.Store, error) {
	ttlSeconds := cctx.Int("cache-ttl-seconds")
	if ttlSeconds < 0 {
		return nil, nil, fmt.Errorf("cache TTL must not be negative: %d", ttlSeconds)
	}
	store := snapcache.NewStore(time.Duration(ttlSeconds) * time.Second)
	handler, err := readthrough.NewHandler(readthrough.Config{
		Logger:          logger,
		Source:          src,
		Store:           store,
		Table:           cctx.String("table-name"),
		CoalesceRefresh: cctx.Bool("coalesce-refresh"),
	})
	if err != nil {
		return nil, nil, err
	}
	return handler, store, nil
}

var scanCmd = &cli.Command{
	Name:  "scan",
	Usage: "perform one full retrieval from the source and print it",
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		logger, err := configLogger(cctx)
		if err != nil {
			return err
		}
		src, err := openSource(ctx, cctx, logger)
		if err != nil {
			return err
		}
		defer src.Close()

		start := time.Now()
		res, err := src.ScanAll(ctx)
		if err != nil {
			return err
		}
		logger.Info("scan complete", "count", len(res.Records), "consumed_capacity", res.ConsumedCapacity, "duration", time.Since(start))

		b, err := json.MarshalIndent(readthrough.SuccessBody{
			Data:  res.Records,
			Count: len(res.Records),
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	},
}
