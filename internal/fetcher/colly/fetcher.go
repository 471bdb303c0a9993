// Package collyfetcher implements jobs.Fetcher using gocolly.
package collyfetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobscraper/internal/jobs"
	"github.com/JakeFAU/jobscraper/internal/policy/retry"
)

// Config controls collector behavior.
type Config struct {
	URL          string
	Headers      map[string]string
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int
}

// Fetcher implements jobs.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	policy        *retry.Policy
	baseCollector *colly.Collector
	logger        *zap.Logger
	sleep         func(context.Context, time.Duration) error
	onAttempt     func(attempt, status int)
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithSleep replaces the backoff wait, letting tests retry without delay.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(f *Fetcher) {
		f.sleep = fn
	}
}

// WithAttemptHook registers fn to be called after every HTTP attempt.
func WithAttemptHook(fn func(attempt, status int)) Option {
	return func(f *Fetcher) {
		f.onAttempt = fn
	}
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// attemptResult is what a single visit leaves behind.
type attemptResult struct {
	status int
	body   []byte
	err    error
}

// New builds a Fetcher. A nil policy means no retries.
func New(cfg Config, policy *retry.Policy, logger *zap.Logger, opts ...Option) *Fetcher {
	if policy == nil {
		policy = retry.New(retry.Config{MaxRetries: 0})
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	c.MaxBodySize = cfg.MaxBodyBytes
	c.WithTransport(newHTTPTransport())

	f := &Fetcher{
		cfg:           cfg,
		policy:        policy,
		baseCollector: c,
		logger:        logger,
		sleep:         sleepContext,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch GETs the configured listing, retrying transient failures, and returns
// every element after the leading sentinel.
func (f *Fetcher) Fetch(ctx context.Context) ([]jobs.RawRecord, error) {
	f.logger.Info("Fetching listing", zap.String("url", f.cfg.URL))
	for attempt := 1; ; attempt++ {
		res := f.fetchOnce(ctx)
		if f.onAttempt != nil {
			f.onAttempt(attempt, res.status)
		}
		if res.err == nil {
			records, err := decodeListing(res.body)
			if err != nil {
				return nil, &jobs.FetchError{URL: f.cfg.URL, StatusCode: res.status, Attempts: attempt, Err: err}
			}
			f.logger.Info("Fetched listing",
				zap.Int("status", res.status),
				zap.Int("attempts", attempt),
				zap.Int("records", len(records)),
			)
			return records, nil
		}
		if !f.policy.ShouldRetry(res.status, res.err, attempt) {
			return nil, &jobs.FetchError{URL: f.cfg.URL, StatusCode: res.status, Attempts: attempt, Err: res.err}
		}
		wait := f.policy.Backoff(attempt)
		f.logger.Warn("Transient fetch failure; retrying",
			zap.Int("status", res.status),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(res.err),
		)
		if err := f.sleep(ctx, wait); err != nil {
			return nil, &jobs.FetchError{URL: f.cfg.URL, StatusCode: res.status, Attempts: attempt, Err: err}
		}
	}
}

func (f *Fetcher) fetchOnce(ctx context.Context) attemptResult {
	var result attemptResult
	collector := f.buildCollector(&result)
	collector.Context = ctx
	if err := f.runCollector(ctx, collector, &result); err != nil {
		result.err = err
	}
	return result
}

func (f *Fetcher) buildCollector(result *attemptResult) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	f.configureCollectorHooks(collector, result)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *attemptResult) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		result.status = r.StatusCode
		result.body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.status = r.StatusCode
		}
		result.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, result *attemptResult) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(f.cfg.URL)
	}()

	select {
	case <-ctx.Done():
		// The collector shares ctx, so Visit returns promptly; wait for it so
		// no hook writes result after this returns.
		<-done
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if result.err != nil {
			return fmt.Errorf("colly response failed: %w", result.err)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func (f *Fetcher) copyHeaders(r *colly.Request) {
	for key, value := range f.cfg.Headers {
		r.Headers.Set(key, value)
	}
}

// decodeListing interprets body as a JSON array and drops its first element,
// which the upstream API uses for a legal/notice entry rather than a posting.
func decodeListing(body []byte) ([]jobs.RawRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode listing json: %w", err)
	}
	items, ok := payload.([]any)
	if !ok || len(items) <= 1 {
		return []jobs.RawRecord{}, nil
	}
	out := make([]jobs.RawRecord, 0, len(items)-1)
	for _, item := range items[1:] {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, jobs.RawRecord(obj))
	}
	return out, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}
