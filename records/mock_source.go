package records

import (
	"context"
	"sync"
	"sync/atomic"
)

// A fake record source, for use in tests
type MockSource struct {
	mu      sync.RWMutex
	recs    []Record
	err     error
	calls   atomic.Int64
	closed  atomic.Bool
	capUsed float64
	trunc   bool

	// If set, every ScanAll call blocks until this channel is closed (or receives).
	Gate chan struct{}
}

var _ Source = (*MockSource)(nil)
var _ Seeder = (*MockSource)(nil)

func NewMockSource(recs ...Record) *MockSource {
	return &MockSource{
		recs: recs,
	}
}

// SetRecords replaces the table contents returned by subsequent scans.
func (s *MockSource) SetRecords(recs ...Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = recs
}

// SetError makes subsequent scans fail with err (nil to clear).
func (s *MockSource) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *MockSource) SetConsumedCapacity(c float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capUsed = c
}

func (s *MockSource) SetTruncated(t bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trunc = t
}

// Calls returns how many times ScanAll has been invoked.
func (s *MockSource) Calls() int {
	return int(s.calls.Load())
}

func (s *MockSource) Closed() bool {
	return s.closed.Load()
}

func (s *MockSource) ScanAll(ctx context.Context) (*ScanResult, error) {
	s.calls.Add(1)
	if s.Gate != nil {
		<-s.Gate
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.err != nil {
		return nil, s.err
	}
	out := make([]Record, len(s.recs))
	copy(out, s.recs)
	return &ScanResult{
		Records:          out,
		ConsumedCapacity: s.capUsed,
		Truncated:        s.trunc,
	}, nil
}

func (s *MockSource) PutAll(ctx context.Context, recs []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, recs...)
	return nil
}

func (s *MockSource) Close() error {
	s.closed.Store(true)
	return nil
}
