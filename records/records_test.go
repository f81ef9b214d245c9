package records

import (
	"encoding/json"
	"errors"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotIsolation(t *testing.T) {
	assert := assert.New(t)

	recs := []Record{{"model_name": "GPT-4", "score": 95.5}}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	snap := NewSnapshot(recs, now)

	recs[0]["score"] = 1.0

	assert.Equal(1, snap.Len())
	assert.Equal(95.5, snap.Records()[0]["score"])
	assert.Equal(now, snap.CapturedAt())
}

func TestSnapshotIsolationNested(t *testing.T) {
	assert := assert.New(t)

	recs := []Record{{
		"model_name": "GPT-4",
		"pricing":    map[string]any{"input": 30.0},
		"tags":       []any{"chat", map[string]any{"tier": "premium"}},
	}}
	snap := NewSnapshot(recs, time.Now())

	recs[0]["pricing"].(map[string]any)["input"] = 0.0
	tags := recs[0]["tags"].([]any)
	tags[0] = "changed"
	tags[1].(map[string]any)["tier"] = "free"

	got := snap.Records()[0]
	assert.Equal(30.0, got["pricing"].(map[string]any)["input"])
	assert.Equal([]any{"chat", map[string]any{"tier": "premium"}}, got["tags"])
}

func TestNormalizeNonFinite(t *testing.T) {
	assert := assert.New(t)

	huge := new(big.Int).Exp(big.NewInt(10), big.NewInt(400), nil)
	rec := Normalize(map[string]any{
		"nan":     math.NaN(),
		"inf":     math.Inf(1),
		"neg_inf": float32(math.Inf(-1)),
		"big_int": huge,
		"big_flt": new(big.Float).SetInt(huge),
		"nested":  []any{math.NaN(), 1.5},
		"ok":      95.5,
	})

	assert.Nil(rec["nan"])
	assert.Nil(rec["inf"])
	assert.Nil(rec["neg_inf"])
	assert.Nil(rec["big_int"])
	assert.Nil(rec["big_flt"])
	assert.Equal([]any{nil, 1.5}, rec["nested"])
	assert.Equal(95.5, rec["ok"])

	_, err := json.Marshal(rec)
	assert.NoError(err)
}

func TestNormalize(t *testing.T) {
	assert := assert.New(t)

	rec := Normalize(map[string]any{
		"a": int64(128000),
		"b": float32(1.5),
		"c": json.Number("95.5"),
		"d": []byte("Meta"),
		"e": big.NewFloat(94.8),
		"f": "text",
		"g": nil,
		"h": uint8(7),
		"i": []any{int32(1), "x"},
	})

	assert.Equal(float64(128000), rec["a"])
	assert.Equal(1.5, rec["b"])
	assert.Equal(95.5, rec["c"])
	assert.Equal("Meta", rec["d"])
	assert.InDelta(94.8, rec["e"], 0.0000001)
	assert.Equal("text", rec["f"])
	assert.Nil(rec["g"])
	assert.Equal(float64(7), rec["h"])
	assert.Equal([]any{float64(1), "x"}, rec["i"])
}

func TestDecodeJSON(t *testing.T) {
	rec, err := DecodeJSON([]byte(`{"model_name":"GPT-4","score":95.5,"context_window":128000}`))
	require.NoError(t, err)
	assert.Equal(t, "GPT-4", rec["model_name"])
	assert.Equal(t, float64(128000), rec["context_window"])

	_, err = DecodeJSON([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("abc", Key(Record{"id": "abc", "model_name": "GPT-4"}, 3))
	assert.Equal("GPT-4", Key(Record{"model_name": "GPT-4"}, 3))
	assert.Equal("42", Key(Record{"id": float64(42)}, 3))
	assert.Equal("3", Key(Record{"score": 1.0}, 3))
	assert.Equal("3", Key(Record{"id": ""}, 3))
}

func TestMockSource(t *testing.T) {
	assert := assert.New(t)

	src := NewMockSource(ReferenceScores()...)
	res, err := src.ScanAll(testContext(t))
	assert.NoError(err)
	assert.Len(res.Records, 4)
	assert.Equal(1, src.Calls())

	errScan := errors.New("scan failed")
	src.SetError(errScan)
	_, err = src.ScanAll(testContext(t))
	assert.ErrorIs(err, errScan)
	assert.Equal(2, src.Calls())

	assert.NoError(src.Close())
	assert.True(src.Closed())
}
