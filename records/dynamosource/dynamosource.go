// Package dynamosource performs full-table scans of a DynamoDB table.
//
// A scan is a single Scan API call: results beyond the first page (1 MB of data) are not fetched,
// and a warning is logged when the table is larger than that.
package dynamosource

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bluesky-social/scancache/records"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// max items per BatchWriteItem call
const batchWriteLimit = 25

const maxUnprocessedRetries = 5

// API is the subset of the DynamoDB client used here.
type API interface {
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

type Source struct {
	client API
	table  string
	log    *slog.Logger
}

var _ records.Source = (*Source)(nil)
var _ records.Seeder = (*Source)(nil)

type Config struct {
	Table string
	// Optional, eg "us-east-1". Otherwise taken from the standard AWS environment.
	Region string
	// Optional endpoint override, eg "http://localhost:8000" for DynamoDB Local.
	Endpoint string
	Logger   *slog.Logger
}

// Open builds a client from the default AWS credential chain. The client is created once and
// reused for the lifetime of the process.
func Open(ctx context.Context, cfg Config) (*Source, error) {
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return New(client, cfg.Table, cfg.Logger), nil
}

func New(client API, table string, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		client: client,
		table:  table,
		log:    logger.With("source", "dynamodb", "table", table),
	}
}

func (s *Source) ScanAll(ctx context.Context) (*records.ScanResult, error) {
	out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:              aws.String(s.table),
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	})
	if err != nil {
		return nil, fmt.Errorf("scanning dynamodb table %s: %w", s.table, err)
	}

	// numbers decode as float64, regardless of their precision in the table
	var items []map[string]any
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return nil, fmt.Errorf("decoding dynamodb items: %w", err)
	}
	recs := make([]records.Record, len(items))
	for i, item := range items {
		recs[i] = records.Normalize(item)
	}

	truncated := len(out.LastEvaluatedKey) > 0
	if truncated {
		s.log.Warn("scan result truncated to first page", "count", len(recs))
	}

	var capUsed float64
	if out.ConsumedCapacity != nil && out.ConsumedCapacity.CapacityUnits != nil {
		capUsed = *out.ConsumedCapacity.CapacityUnits
	}
	return &records.ScanResult{
		Records:          recs,
		ConsumedCapacity: capUsed,
		Truncated:        truncated,
	}, nil
}

func (s *Source) PutAll(ctx context.Context, recs []records.Record) error {
	for start := 0; start < len(recs); start += batchWriteLimit {
		end := min(start+batchWriteLimit, len(recs))
		reqs := make([]types.WriteRequest, 0, end-start)
		for _, rec := range recs[start:end] {
			item, err := attributevalue.MarshalMap(map[string]any(rec))
			if err != nil {
				return fmt.Errorf("encoding dynamodb item: %w", err)
			}
			reqs = append(reqs, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
		}
		if err := s.batchWrite(ctx, reqs); err != nil {
			return err
		}
		s.log.Info("wrote batch", "count", len(reqs))
	}
	return nil
}

func (s *Source) batchWrite(ctx context.Context, reqs []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{s.table: reqs}
	for attempt := 0; ; attempt++ {
		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: pending,
		})
		if err != nil {
			return fmt.Errorf("writing to dynamodb table %s: %w", s.table, err)
		}
		if len(out.UnprocessedItems) == 0 {
			return nil
		}
		if attempt >= maxUnprocessedRetries {
			return fmt.Errorf("dynamodb left %d items unprocessed", len(out.UnprocessedItems[s.table]))
		}
		pending = out.UnprocessedItems
		time.Sleep(time.Duration(50<<attempt) * time.Millisecond)
	}
}

func (s *Source) Close() error {
	return nil
}
