// Package snapcache holds the most recent full-table snapshot in process memory and decides
// whether it is still fresh.
//
// Freshness is purely a function of wall-clock time since capture, compared against a single TTL.
// There is no background refresh: callers discover staleness via GetValid and repair it with Put.
package snapcache

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/bluesky-social/scancache/records"
)

const DefaultTTL = 300 * time.Second

type Store struct {
	ttl time.Duration
	now func() time.Time

	// snapshot and capture time are replaced together, as a single pointer swap
	current atomic.Pointer[records.Snapshot]
}

type Option func(*Store)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore returns an empty store. A ttl of zero means every lookup is a miss; negative values are
// treated as zero.
func NewStore(ttl time.Duration, opts ...Option) *Store {
	if ttl < 0 {
		ttl = 0
	}
	s := &Store{
		ttl: ttl,
		now: time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) TTL() time.Duration {
	return s.ttl
}

// GetValid returns the current snapshot if it was captured less than TTL ago.
func (s *Store) GetValid() (*records.Snapshot, bool) {
	snap := s.current.Load()
	if snap == nil {
		return nil, false
	}
	if s.now().Sub(snap.CapturedAt()) < s.ttl {
		return snap, true
	}
	return nil, false
}

// Put replaces the stored snapshot. Concurrent callers race; the last one to store wins.
func (s *Store) Put(snap *records.Snapshot) {
	if snap == nil {
		return
	}
	s.current.Store(snap)
	snapshotRecords.Set(float64(snap.Len()))
	snapshotReplacements.Inc()
}

// Age is the time since the current snapshot was captured. With nothing stored, it saturates at
// the maximum duration. Only for reporting; use GetValid for freshness decisions.
func (s *Store) Age() time.Duration {
	snap := s.current.Load()
	if snap == nil {
		return time.Duration(math.MaxInt64)
	}
	return s.now().Sub(snap.CapturedAt())
}

// Current returns whatever is stored, fresh or not.
func (s *Store) Current() *records.Snapshot {
	return s.current.Load()
}

// ReportAge publishes the current snapshot age as a gauge. Nothing is reported until a snapshot
// has been stored. It has the signature of a periodic task.
func (s *Store) ReportAge(ctx context.Context) error {
	snap := s.current.Load()
	if snap == nil {
		return nil
	}
	snapshotAge.Set(s.now().Sub(snap.CapturedAt()).Seconds())
	return nil
}
