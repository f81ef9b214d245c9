// Package redissource treats a redis keyspace prefix as a table of JSON records.
//
// Schema:
// {table}:{key} -> JSON object (plain string value)
package redissource

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/bluesky-social/scancache/records"

	"github.com/redis/go-redis/v9"
)

// keys fetched per SCAN / MGET round trip
const batchSize = 500

// Client is the subset of redis commands the source uses. *redis.Client satisfies it.
type Client interface {
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Pipeline() redis.Pipeliner
	Close() error
}

type Source struct {
	rdb   Client
	table string
}

var _ records.Source = (*Source)(nil)
var _ records.Seeder = (*Source)(nil)

// Open connects using a redis URL: redis://<user>:<pass>@<hostname>:6379/<db>
func Open(ctx context.Context, redisURL, table string) (*Source, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return New(rdb, table), nil
}

func New(rdb Client, table string) *Source {
	return &Source{rdb: rdb, table: table}
}

func (s *Source) recordKey(key string) string {
	return s.table + ":" + key
}

func (s *Source) ScanAll(ctx context.Context) (*records.ScanResult, error) {
	var keys []string
	var cursor uint64
	for {
		page, next, err := s.rdb.Scan(ctx, cursor, s.table+":*", batchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("scanning keys for %s: %w", s.table, err)
		}
		keys = append(keys, page...)
		if next == 0 {
			break
		}
		cursor = next
	}
	// SCAN can return a key more than once
	sort.Strings(keys)
	keys = dedupe(keys)

	out := []records.Record{}
	for start := 0; start < len(keys); start += batchSize {
		end := min(start+batchSize, len(keys))
		vals, err := s.rdb.MGet(ctx, keys[start:end]...).Result()
		if err != nil {
			return nil, fmt.Errorf("fetching records for %s: %w", s.table, err)
		}
		for i, v := range vals {
			str, ok := v.(string)
			if !ok {
				// deleted between SCAN and MGET
				continue
			}
			rec, err := records.DecodeJSON([]byte(str))
			if err != nil {
				return nil, fmt.Errorf("record %s: %w", keys[start+i], err)
			}
			out = append(out, rec)
		}
	}
	return &records.ScanResult{Records: out}, nil
}

func dedupe(sorted []string) []string {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, k := range sorted[1:] {
		if k != out[len(out)-1] {
			out = append(out, k)
		}
	}
	return out
}

func (s *Source) PutAll(ctx context.Context, recs []records.Record) error {
	pipe := s.rdb.Pipeline()
	for i, rec := range recs {
		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encoding record %d: %w", i, err)
		}
		pipe.Set(ctx, s.recordKey(records.Key(rec, i)), string(b), 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("writing records to %s: %w", s.table, err)
	}
	return nil
}

func (s *Source) Close() error {
	return s.rdb.Close()
}
