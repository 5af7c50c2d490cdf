package metadata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/antonholmquist/jason"
	"golang.org/x/time/rate"

	"github.com/tphakala/radiotracker/internal/datastore"
	"github.com/tphakala/radiotracker/internal/errors"
	"github.com/tphakala/radiotracker/internal/httpclient"
	"github.com/tphakala/radiotracker/internal/logger"
)

// Confidence values reported by the JSON API extractor
const (
	jsonConfidenceMatch   = 1.0
	jsonConfidenceNoMatch = 0.5

	jsonStatusMatch = "match"

	maxJSONBody = 1 << 20
)

// JSONAPIConfig configures the JSON feed extractor
type JSONAPIConfig struct {
	URLTemplate string  // fmt template with one %d verb for the feed id
	Timeout     time.Duration
	RateLimit   float64 // requests per second, 0 disables throttling
	Burst       int
	UserAgent   string
}

// JSONAPIExtractor reads now-playing data from a third-party JSON API keyed
// by a numeric feed id.
type JSONAPIExtractor struct {
	client      *httpclient.Client
	urlTemplate string
	timeout     time.Duration
	limiter     *rate.Limiter
}

// NewJSONAPIExtractor creates a JSON API extractor
func NewJSONAPIExtractor(cfg JSONAPIConfig) *JSONAPIExtractor {
	httpCfg := httpclient.DefaultConfig()
	if cfg.UserAgent != "" {
		httpCfg.UserAgent = cfg.UserAgent
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := max(cfg.Burst, 1)
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &JSONAPIExtractor{
		client:      httpclient.New(&httpCfg),
		urlTemplate: cfg.URLTemplate,
		timeout:     timeout,
		limiter:     limiter,
	}
}

// Type implements Extractor
func (e *JSONAPIExtractor) Type() datastore.MetadataType {
	return datastore.MetadataTypeJSONAPI
}

// Client exposes the HTTP client, mainly so tests can mock its transport
func (e *JSONAPIExtractor) Client() *httpclient.Client {
	return e.client
}

// Close releases idle connections
func (e *JSONAPIExtractor) Close() error {
	e.client.Close()
	return nil
}

// Extract implements Extractor
func (e *JSONAPIExtractor) Extract(ctx context.Context, src Source) (*Result, error) {
	if src.SourceID <= 0 {
		return nil, errors.New(fmt.Errorf("station %q has no JSON API source id", src.StationSlug)).
			Component("metadata").
			Category(errors.CategoryValidation).
			StationContext(src.StationSlug, string(e.Type())).
			Build()
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// Wait fails early when the next token would arrive after the deadline
	if err := e.limiter.Wait(ctx); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, networkError(err, e.Type(), src, "rate_limiter_wait")
		}
		return nil, extractionError(ErrTimeout, err, errors.CategoryTimeout, e.Type(), src)
	}

	url := fmt.Sprintf(e.urlTemplate, src.SourceID)
	resp, err := e.client.Get(ctx, url, map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, timeoutOr(ctx, err, e.Type(), src, "request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, extractionError(ErrInvalidResponse,
			fmt.Errorf("unexpected HTTP status %d", resp.StatusCode),
			errors.CategoryParsing, e.Type(), src)
	}

	obj, err := jason.NewObjectFromReader(io.LimitReader(resp.Body, maxJSONBody))
	if err != nil {
		if ctx.Err() != nil {
			return nil, timeoutOr(ctx, err, e.Type(), src, "read_body")
		}
		return nil, extractionError(ErrInvalidResponse, err, errors.CategoryParsing, e.Type(), src)
	}

	artist, _ := obj.GetString("artist")
	title, _ := obj.GetString("title")
	artist = strings.TrimSpace(artist)
	title = strings.TrimSpace(title)
	if artist == "" || title == "" {
		return nil, extractionError(ErrInvalidResponse,
			fmt.Errorf("response lacks artist or title"),
			errors.CategoryParsing, e.Type(), src)
	}

	confidence := jsonConfidenceMatch
	if status, err := obj.GetString("status"); err == nil && status != jsonStatusMatch {
		confidence = jsonConfidenceNoMatch
		GetLogger().Warn("JSON API reported a non-match status",
			logger.String("station", src.StationSlug),
			logger.String("metadata_type", string(e.Type())),
			logger.String("status", status),
			logger.Int64("source_id", src.SourceID))
	}

	return &Result{
		Artist:     artist,
		Title:      title,
		Raw:        obj.String(),
		Confidence: confidence,
	}, nil
}
