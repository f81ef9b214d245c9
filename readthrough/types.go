package readthrough

import (
	"errors"

	"github.com/bluesky-social/scancache/records"
)

var ErrRetrievalFailed = errors.New("data source retrieval failed")

const (
	HeaderCache        = "X-Cache"
	HeaderRequestID    = "X-Request-Id"
	HeaderResponseTime = "X-Response-Time"
	HeaderContentType  = "Content-Type"

	CacheHit  = "HIT"
	CacheMiss = "MISS"
)

// Request is the transport-independent view of an inbound call.
type Request struct {
	Method    string
	Path      string
	RequestID string
	SourceIP  string
	UserAgent string
}

type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// SuccessBody is the JSON body of a 200 response.
type SuccessBody struct {
	Data            []records.Record `json:"data"`
	Count           int              `json:"count"`
	Cached          bool             `json:"cached"`
	CacheAgeSeconds float64          `json:"cache_age_seconds"`
}

// ErrorBody is the JSON body of a 500 response. It never carries internal error detail.
type ErrorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id"`
}

type outcome string

const (
	outcomeHit   outcome = "hit"
	outcomeMiss  outcome = "miss"
	outcomeError outcome = "error"
)
