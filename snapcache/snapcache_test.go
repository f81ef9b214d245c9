package snapcache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bluesky-social/scancache/internal/testutil"
	"github.com/bluesky-social/scancache/records"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func TestEmptyStore(t *testing.T) {
	assert := assert.New(t)
	clk := testutil.NewFakeClock(epoch)
	s := NewStore(DefaultTTL, WithClock(clk.Now))

	snap, ok := s.GetValid()
	assert.False(ok)
	assert.Nil(snap)
	assert.Nil(s.Current())
	assert.Equal(time.Duration(1<<63-1), s.Age())
}

func TestFreshness(t *testing.T) {
	ttl := 300 * time.Second

	fixtures := []struct {
		elapsed time.Duration
		valid   bool
	}{
		{elapsed: 0, valid: true},
		{elapsed: time.Second, valid: true},
		{elapsed: ttl - time.Nanosecond, valid: true},
		{elapsed: ttl, valid: false},
		{elapsed: ttl + time.Second, valid: false},
		{elapsed: 24 * time.Hour, valid: false},
	}

	for _, fix := range fixtures {
		t.Run(fix.elapsed.String(), func(t *testing.T) {
			clk := testutil.NewFakeClock(epoch)
			s := NewStore(ttl, WithClock(clk.Now))
			stored := records.NewSnapshot([]records.Record{{"model_name": "GPT-4"}}, clk.Now())
			s.Put(stored)

			clk.Advance(fix.elapsed)
			snap, ok := s.GetValid()
			assert.Equal(t, fix.valid, ok)
			if fix.valid {
				assert.Same(t, stored, snap)
			} else {
				assert.Nil(t, snap)
			}
			assert.Equal(t, fix.elapsed, s.Age())
			// stale data is still held, just not served as valid
			assert.Same(t, stored, s.Current())
		})
	}
}

func TestZeroTTL(t *testing.T) {
	clk := testutil.NewFakeClock(epoch)
	s := NewStore(0, WithClock(clk.Now))
	s.Put(records.NewSnapshot(nil, clk.Now()))

	_, ok := s.GetValid()
	assert.False(t, ok)

	neg := NewStore(-time.Minute)
	assert.Equal(t, time.Duration(0), neg.TTL())
}

func TestPutReplaces(t *testing.T) {
	assert := assert.New(t)
	clk := testutil.NewFakeClock(epoch)
	s := NewStore(time.Minute, WithClock(clk.Now))

	first := records.NewSnapshot([]records.Record{{"n": 1.0}}, clk.Now())
	s.Put(first)

	clk.Advance(2 * time.Minute)
	_, ok := s.GetValid()
	assert.False(ok)

	second := records.NewSnapshot([]records.Record{{"n": 2.0}}, clk.Now())
	s.Put(second)
	snap, ok := s.GetValid()
	assert.True(ok)
	assert.Same(second, snap)
	assert.Equal(time.Duration(0), s.Age())

	s.Put(nil)
	assert.Same(second, s.Current())
}

func TestConcurrentPutLastWriterWins(t *testing.T) {
	clk := testutil.NewFakeClock(epoch)
	s := NewStore(time.Hour, WithClock(clk.Now))

	const n = 64
	submitted := make(map[*records.Snapshot]bool, n)
	snaps := make([]*records.Snapshot, n)
	for i := 0; i < n; i++ {
		snaps[i] = records.NewSnapshot([]records.Record{{"writer": fmt.Sprintf("w%d", i)}}, epoch.Add(time.Duration(i)*time.Millisecond))
		submitted[snaps[i]] = true
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(snap *records.Snapshot) {
			defer wg.Done()
			s.Put(snap)
			s.GetValid()
		}(snaps[i])
	}
	wg.Wait()

	final := s.Current()
	require.NotNil(t, final)
	assert.True(t, submitted[final])
	// the stored timestamp belongs to the stored records, never mixed
	assert.Equal(t, 1, final.Len())
	var idx int
	_, err := fmt.Sscanf(final.Records()[0]["writer"].(string), "w%d", &idx)
	require.NoError(t, err)
	assert.Equal(t, epoch.Add(time.Duration(idx)*time.Millisecond), final.CapturedAt())
}

func TestReportAge(t *testing.T) {
	clk := testutil.NewFakeClock(epoch)
	s := NewStore(DefaultTTL, WithClock(clk.Now))

	s.Put(records.NewSnapshot(nil, clk.Now()))
	clk.Advance(42 * time.Second)
	require.NoError(t, s.ReportAge(context.Background()))
	assert.Equal(t, 42.0, promtest.ToFloat64(snapshotAge))
}
