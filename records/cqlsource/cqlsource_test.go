package cqlsource

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/bluesky-social/scancache/records"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// replays SELECT JSON rows, then reports closeErr
type fakeIter struct {
	rows     []string
	pos      int
	closed   bool
	closeErr error
}

func (f *fakeIter) Scan(dest ...any) bool {
	if f.pos >= len(f.rows) {
		return false
	}
	*(dest[0].(*string)) = f.rows[f.pos]
	f.pos++
	return true
}

func (f *fakeIter) Close() error {
	f.closed = true
	return f.closeErr
}

func TestOpenValidation(t *testing.T) {
	assert := assert.New(t)

	_, err := Open(Config{Keyspace: "scores", Table: "llm_scores"})
	assert.Error(err)

	_, err = Open(Config{Hosts: []string{"127.0.0.1"}, Keyspace: "scores; DROP", Table: "llm_scores"})
	assert.Error(err)

	_, err = Open(Config{Hosts: []string{"127.0.0.1"}, Keyspace: "scores", Table: "llm scores"})
	assert.Error(err)
}

func TestQueries(t *testing.T) {
	assert.Equal(t, "SELECT JSON * FROM llm_scores", selectAllQuery("llm_scores"))
	assert.Equal(t, "INSERT INTO llm_scores JSON ?", insertJSONQuery("llm_scores"))
}

func TestDecodeRows(t *testing.T) {
	assert := assert.New(t)

	iter := &fakeIter{rows: []string{
		`{"model_name": "GPT-4", "provider": "OpenAI", "context_window": 128000, "score": 95.5}`,
		`{"model_name": "Llama 3 70B", "provider": "Meta", "context_window": 8192, "score": null}`,
	}}
	recs, err := decodeRows(iter)
	require.NoError(t, err)
	assert.True(iter.closed)
	assert.Equal([]records.Record{
		{"model_name": "GPT-4", "provider": "OpenAI", "context_window": float64(128000), "score": 95.5},
		{"model_name": "Llama 3 70B", "provider": "Meta", "context_window": float64(8192), "score": nil},
	}, recs)

	recs, err = decodeRows(&fakeIter{})
	require.NoError(t, err)
	assert.NotNil(recs)
	assert.Empty(recs)
}

func TestDecodeRowsErrors(t *testing.T) {
	assert := assert.New(t)

	iter := &fakeIter{rows: []string{`{"model_name": "GPT-4"}`, `[1, 2]`}}
	_, err := decodeRows(iter)
	assert.Error(err)
	assert.True(iter.closed)

	errTimeout := errors.New("gocql: no response received from cassandra within timeout period")
	_, err = decodeRows(&fakeIter{rows: []string{`{"a": 1}`}, closeErr: errTimeout})
	assert.ErrorIs(err, errTimeout)
}

// Runs against a live cluster when SCANCACHE_TEST_CQL_HOSTS is set, eg localhost:9042. The
// keyspace "scancache_test" must exist.
func TestLiveSeedAndScan(t *testing.T) {
	hosts := os.Getenv("SCANCACHE_TEST_CQL_HOSTS")
	if hosts == "" {
		t.Skip("SCANCACHE_TEST_CQL_HOSTS not set")
	}
	src, err := Open(Config{
		Hosts:    strings.Split(hosts, ","),
		Keyspace: "scancache_test",
		Table:    "llm_scores",
	})
	require.NoError(t, err)
	defer src.Close()

	ctx := context.Background()
	require.NoError(t, src.session.Query(`CREATE TABLE IF NOT EXISTS llm_scores (
		model_name text PRIMARY KEY, provider text, context_window double, score double)`).WithContext(ctx).Exec())
	require.NoError(t, src.session.Query(`TRUNCATE llm_scores`).WithContext(ctx).Exec())

	require.NoError(t, src.PutAll(ctx, records.ReferenceScores()))
	res, err := src.ScanAll(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, records.ReferenceScores(), res.Records)
}
