package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bluesky-social/scancache/readthrough"
	"github.com/bluesky-social/scancache/records"
	"github.com/bluesky-social/scancache/snapcache"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testServer(t *testing.T, src records.Source) *Server {
	t.Helper()
	h, err := readthrough.NewHandler(readthrough.Config{
		Logger: testLogger(),
		Source: src,
		Store:  snapcache.NewStore(snapcache.DefaultTTL),
		Table:  "llm_scores",
	})
	require.NoError(t, err)
	srv, err := NewServer(Config{
		Logger:     testLogger(),
		Handler:    h,
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	return srv
}

func TestNewServerRequiresHandler(t *testing.T) {
	_, err := NewServer(Config{Registerer: prometheus.NewRegistry()})
	assert.Error(t, err)
}

func TestServeRecords(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	src := records.NewMockSource(records.ReferenceScores()...)
	srv := testServer(t, src)

	req := httptest.NewRequest(http.MethodGet, "/records", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(http.StatusOK, rec.Code)
	assert.Equal("application/json", rec.Header().Get("Content-Type"))
	assert.Equal(readthrough.CacheMiss, rec.Header().Get("X-Cache"))
	assert.Equal("abc-123", rec.Header().Get("X-Request-Id"))
	assert.Regexp(`^\d+\.\d{2}ms$`, rec.Header().Get("X-Response-Time"))

	var body readthrough.SuccessBody
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(4, body.Count)
	assert.False(body.Cached)

	// the root path is served by the same handler, and shares the snapshot
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(http.StatusOK, rec.Code)
	assert.Equal(readthrough.CacheHit, rec.Header().Get("X-Cache"))
	assert.NotEmpty(rec.Header().Get("X-Request-Id"))
	assert.Equal(1, src.Calls())
}

func TestServeRecordsFailure(t *testing.T) {
	assert := assert.New(t)

	src := records.NewMockSource()
	src.SetError(errors.New("ProvisionedThroughputExceededException"))
	srv := testServer(t, src)

	req := httptest.NewRequest(http.MethodGet, "/records", nil)
	req.Header.Set("X-Request-Id", "req-9")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(http.StatusInternalServerError, rec.Code)
	assert.JSONEq(`{"error":"Internal Server Error","request_id":"req-9"}`, rec.Body.String())
	assert.NotContains(rec.Body.String(), "Provisioned")
}

func TestHealthCheck(t *testing.T) {
	assert := assert.New(t)
	src := records.NewMockSource()
	srv := testServer(t, src)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/_health", nil))
	assert.Equal(http.StatusOK, rec.Code)

	var status GenericStatus
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal("ok", status.Status)
	assert.Equal("scancache", status.Daemon)
	assert.Equal(0, src.Calls())
}

func TestUnknownRoute(t *testing.T) {
	srv := testServer(t, records.NewMockSource())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var status GenericStatus
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "error", status.Status)
}
