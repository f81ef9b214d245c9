package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"
)

var ErrUnknownSource = errors.New("unknown record source")

// Record is a single row of the backing table: field names mapped to scalar values.
type Record map[string]any

// Source is anything which can return every record in a table in one full retrieval.
type Source interface {
	ScanAll(ctx context.Context) (*ScanResult, error)
	Close() error
}

// Seeder is implemented by sources which can also be written to. Only used for loading fixture
// and demo data; the cache never writes.
type Seeder interface {
	PutAll(ctx context.Context, recs []Record) error
}

// ScanResult is the output of a full retrieval.
type ScanResult struct {
	Records []Record
	// Read capacity units (or backend-specific cost) consumed by the scan, if the backend reports it.
	ConsumedCapacity float64
	// Set when the source stopped before the end of the table, eg a single DynamoDB page.
	Truncated bool
}

// Snapshot is an ordered set of records captured at a single point in time. It must not be
// modified after construction; replacing cached data means building a new Snapshot.
type Snapshot struct {
	records    []Record
	capturedAt time.Time
}

// NewSnapshot deep-copies recs, including nested maps and slices, so later changes by the
// caller are not observed.
func NewSnapshot(recs []Record, capturedAt time.Time) *Snapshot {
	out := make([]Record, len(recs))
	for i, r := range recs {
		out[i] = copyRecord(r)
	}
	return &Snapshot{
		records:    out,
		capturedAt: capturedAt,
	}
}

func copyRecord(r Record) Record {
	if r == nil {
		return nil
	}
	cp := make(Record, len(r))
	for k, v := range r {
		cp[k] = copyValue(v)
	}
	return cp
}

func copyValue(v any) any {
	switch val := v.(type) {
	case Record:
		return copyRecord(val)
	case map[string]any:
		return map[string]any(copyRecord(val))
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = copyValue(e)
		}
		return out
	case []byte:
		return append([]byte(nil), val...)
	default:
		return v
	}
}

// Records returns the snapshot rows. Callers must treat the slice and maps as read-only.
func (s *Snapshot) Records() []Record {
	return s.records
}

func (s *Snapshot) Len() int {
	return len(s.records)
}

func (s *Snapshot) CapturedAt() time.Time {
	return s.capturedAt
}

// Normalize converts the values of a raw row into JSON-friendly scalars. Every numeric type,
// including arbitrary precision ones, becomes a float64; byte slices become strings.
func Normalize(raw map[string]any) Record {
	rec := make(Record, len(raw))
	for k, v := range raw {
		rec[k] = NormalizeValue(v)
	}
	return rec
}

// NormalizeValue is Normalize for a single value. NaN and infinities, which have no JSON
// encoding, become nil.
func NormalizeValue(v any) any {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int8:
		return float64(val)
	case int16:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case uint:
		return float64(val)
	case uint8:
		return float64(val)
	case uint16:
		return float64(val)
	case uint32:
		return float64(val)
	case uint64:
		return float64(val)
	case float32:
		return finite(float64(val))
	case float64:
		return finite(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return val.String()
		}
		return finite(f)
	case *big.Float:
		if val == nil {
			return nil
		}
		f, _ := val.Float64()
		return finite(f)
	case *big.Int:
		if val == nil {
			return nil
		}
		f, _ := new(big.Float).SetInt(val).Float64()
		return finite(f)
	case *big.Rat:
		if val == nil {
			return nil
		}
		f, _ := val.Float64()
		return finite(f)
	case []byte:
		return string(val)
	case Record:
		return Normalize(val)
	case map[string]any:
		return map[string]any(Normalize(val))
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = NormalizeValue(e)
		}
		return out
	default:
		return v
	}
}

func finite(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

// DecodeJSON parses a JSON object into a Record, with numbers as float64.
func DecodeJSON(b []byte) (Record, error) {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("decoding record JSON: %w", err)
	}
	return Normalize(raw), nil
}

// Key returns a stable storage key for a record, used by the sources which store rows by key.
// The "id" field is preferred, then "model_name"; otherwise the row position is used.
func Key(rec Record, pos int) string {
	for _, f := range []string{"id", "model_name"} {
		if v, ok := rec[f]; ok && v != nil {
			switch s := v.(type) {
			case string:
				if s != "" {
					return s
				}
			case float64:
				return strconv.FormatFloat(s, 'f', -1, 64)
			default:
				return fmt.Sprint(s)
			}
		}
	}
	return strconv.Itoa(pos)
}
