package main

import (
	"context"
	"fmt"
	"math"

	"github.com/bluesky-social/scancache/records"

	"github.com/brianvoe/gofakeit/v6"
	cli "github.com/urfave/cli/v2"
)

var seedCmd = &cli.Command{
	Name:  "seed",
	Usage: "write demo LLM score rows into the configured source",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "fake",
			Usage: "write this many generated rows instead of the reference rows",
		},
		&cli.Int64Flag{
			Name:  "fake-seed",
			Usage: "random seed for generated rows (0 picks one at random)",
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		logger, err := configLogger(cctx)
		if err != nil {
			return err
		}

		recs := records.ReferenceScores()
		if n := cctx.Int("fake"); n > 0 {
			recs = fakeScores(gofakeit.New(cctx.Int64("fake-seed")), n)
		} else if n < 0 {
			return fmt.Errorf("--fake must not be negative: %d", n)
		}

		src, err := openSource(ctx, cctx, logger)
		if err != nil {
			return err
		}
		defer src.Close()

		seeder, ok := src.(records.Seeder)
		if !ok {
			return fmt.Errorf("source %q does not support seeding", cctx.String("source"))
		}
		if err := seeder.PutAll(ctx, recs); err != nil {
			return fmt.Errorf("seeding %s: %w", cctx.String("table-name"), err)
		}
		logger.Info("seeded table", "table", cctx.String("table-name"), "count", len(recs))
		return nil
	},
}

// fakeScores generates n rows shaped like the reference rows. Model names are made unique with a
// numeric suffix since they double as the record key.
func fakeScores(faker *gofakeit.Faker, n int) []records.Record {
	out := make([]records.Record, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, records.Record{
			"model_name":     fmt.Sprintf("%s %s #%d", faker.AppName(), faker.AppVersion(), i+1),
			"provider":       faker.Company(),
			"context_window": float64(faker.IntRange(4096, 2_000_000)),
			"score":          math.Round(faker.Float64Range(50, 100)*10) / 10,
		})
	}
	return out
}
