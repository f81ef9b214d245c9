package readthrough

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bluesky-social/scancache/records"
	"github.com/bluesky-social/scancache/snapcache"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("readthrough")

type Config struct {
	Logger *slog.Logger
	Source records.Source
	Store  *snapcache.Store

	// Name of the backing table, for logs and traces only.
	Table string

	// If true, concurrent misses share one in-flight scan instead of each scanning and storing.
	CoalesceRefresh bool

	// Clock used for snapshot capture times and ages. Defaults to time.Now.
	Now func() time.Time
}

type Handler struct {
	logger   *slog.Logger
	source   records.Source
	store    *snapcache.Store
	table    string
	coalesce bool
	now      func() time.Time
	inflight singleflight.Group
}

func NewHandler(config Config) (*Handler, error) {
	if config.Source == nil {
		return nil, fmt.Errorf("readthrough handler requires a record source")
	}
	if config.Store == nil {
		return nil, fmt.Errorf("readthrough handler requires a snapshot store")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{
		logger:   logger.With("system", "readthrough"),
		source:   config.Source,
		store:    config.Store,
		table:    config.Table,
		coalesce: config.CoalesceRefresh,
		now:      now,
	}, nil
}

// Handle serves one request. It always returns a complete Response; retrieval failures become a
// generic 500 and leave the cached snapshot untouched.
func (h *Handler) Handle(ctx context.Context, req Request) Response {
	start := time.Now()

	reqID := req.RequestID
	if reqID == "" {
		reqID = uuid.NewString()
	}
	logger := h.logger.With("request_id", reqID)
	logger.Info("request received", "method", req.Method, "path", req.Path, "source_ip", req.SourceIP, "user_agent", req.UserAgent)

	snap, hit := h.store.GetValid()
	if hit {
		logger.Info("cache hit", "table", h.table, "age", h.now().Sub(snap.CapturedAt()))
	} else {
		logger.Info("cache miss", "table", h.table)
		var err error
		snap, err = h.refresh(ctx, logger)
		if err != nil {
			return h.failure(logger, reqID, start, err)
		}
	}

	age := h.now().Sub(snap.CapturedAt())
	if age < 0 {
		age = 0
	}
	data := snap.Records()
	if data == nil {
		data = []records.Record{}
	}
	body, err := json.Marshal(SuccessBody{
		Data:            data,
		Count:           snap.Len(),
		Cached:          hit,
		CacheAgeSeconds: age.Seconds(),
	})
	if err != nil {
		return h.failure(logger, reqID, start, fmt.Errorf("encoding response body: %w", err))
	}

	out := outcomeMiss
	cacheStatus := CacheMiss
	if hit {
		out = outcomeHit
		cacheStatus = CacheHit
	}
	elapsed := time.Since(start)
	requestsTotal.WithLabelValues(string(out)).Inc()
	requestDuration.WithLabelValues(string(out)).Observe(elapsed.Seconds())
	cacheAge.Set(age.Seconds())
	logger.Info("request complete", "outcome", out, "count", snap.Len(), "cache_age", age, "duration", elapsed)

	return Response{
		StatusCode: http.StatusOK,
		Headers: map[string]string{
			HeaderContentType:  "application/json",
			HeaderCache:        cacheStatus,
			HeaderRequestID:    reqID,
			HeaderResponseTime: formatMillis(elapsed),
		},
		Body: body,
	}
}

func (h *Handler) failure(logger *slog.Logger, reqID string, start time.Time, err error) Response {
	elapsed := time.Since(start)
	requestsTotal.WithLabelValues(string(outcomeError)).Inc()
	requestDuration.WithLabelValues(string(outcomeError)).Observe(elapsed.Seconds())
	logger.Error("request failed", "outcome", outcomeError, "err", err, "duration", elapsed)

	body, merr := json.Marshal(ErrorBody{
		Error:     "Internal Server Error",
		RequestID: reqID,
	})
	if merr != nil {
		// unreachable for two string fields
		body = []byte(`{"error":"Internal Server Error"}`)
	}
	return Response{
		StatusCode: http.StatusInternalServerError,
		Headers: map[string]string{
			HeaderContentType: "application/json",
			HeaderRequestID:   reqID,
		},
		Body: body,
	}
}

// one in-flight coalesced scan, shared by every miss which joins it
type flight struct {
	id   string
	snap *records.Snapshot
}

func (h *Handler) refresh(ctx context.Context, logger *slog.Logger) (*records.Snapshot, error) {
	if !h.coalesce {
		return h.scanAndStore(ctx, logger)
	}
	v, err, shared := h.inflight.Do("scan", func() (any, error) {
		f := &flight{id: uuid.NewString()}
		var err error
		f.snap, err = h.scanAndStore(ctx, h.logger.With("flight_id", f.id))
		return f, err
	})
	f := v.(*flight)
	if shared {
		scansCoalesced.Inc()
	}
	logger.Info("coalesced scan finished", "flight_id", f.id, "shared", shared, "ok", err == nil)
	if err != nil {
		return nil, err
	}
	return f.snap, nil
}

// scanAndStore performs a full retrieval and stores the result. Cancellation of the inbound
// request is not propagated: once started, a scan runs until the source returns. A result which
// cannot be encoded is treated as a failed retrieval and never stored.
func (h *Handler) scanAndStore(ctx context.Context, logger *slog.Logger) (*records.Snapshot, error) {
	ctx, span := tracer.Start(context.WithoutCancel(ctx), "ScanAll")
	defer span.End()
	span.SetAttributes(attribute.String("table", h.table))

	start := time.Now()
	res, err := h.source.ScanAll(ctx)
	dur := time.Since(start)
	if err == nil && res != nil {
		if _, encErr := json.Marshal(res.Records); encErr != nil {
			err = fmt.Errorf("encoding scanned records: %w", encErr)
		}
	}
	if err != nil {
		scanDuration.WithLabelValues("error").Observe(dur.Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan failed")
		logger.Error("scan failed", "table", h.table, "err", err, "duration", dur)
		return nil, fmt.Errorf("%w: %w", ErrRetrievalFailed, err)
	}
	if res == nil {
		res = &records.ScanResult{}
	}
	scanDuration.WithLabelValues("ok").Observe(dur.Seconds())
	if res.ConsumedCapacity > 0 {
		scanConsumedCapacity.Add(res.ConsumedCapacity)
	}
	if res.Truncated {
		scansTruncated.Inc()
		logger.Warn("scan returned a partial table", "table", h.table, "count", len(res.Records))
	}
	span.SetAttributes(
		attribute.Int("count", len(res.Records)),
		attribute.Float64("consumed_capacity", res.ConsumedCapacity),
		attribute.Bool("truncated", res.Truncated),
	)

	snap := records.NewSnapshot(res.Records, h.now())
	h.store.Put(snap)
	logger.Info("scan complete", "table", h.table, "count", snap.Len(), "consumed_capacity", res.ConsumedCapacity, "truncated", res.Truncated, "duration", dur)
	return snap, nil
}

func formatMillis(d time.Duration) string {
	return fmt.Sprintf("%.2fms", float64(d.Microseconds())/1000.0)
}
