package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/olgkv/bookmarkchecker/internal/domain"
	"github.com/olgkv/bookmarkchecker/internal/metrics"
	"github.com/olgkv/bookmarkchecker/internal/probe"
)

const (
	msgInvalidProtocol = "Invalid URL protocol"
	msgTimeout         = "Request timed out"
	msgNetwork         = "Network error or invalid domain"
	msgRequestFailed   = "Request failed"
)

// Prober performs one probe per URL.
type Prober interface {
	Probe(ctx context.Context, rawURL string) probe.Outcome
}

type Validator struct {
	prober         Prober
	maxConcurrency int
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

type ValidatorOption func(*Validator)

// WithMaxConcurrency caps simultaneous probes. Zero or less means no cap.
func WithMaxConcurrency(n int) ValidatorOption {
	return func(v *Validator) { v.maxConcurrency = n }
}

func WithLogger(l *slog.Logger) ValidatorOption {
	return func(v *Validator) { v.logger = l }
}

func WithMetrics(m *metrics.Metrics) ValidatorOption {
	return func(v *Validator) { v.metrics = m }
}

func NewValidator(p Prober, opts ...ValidatorOption) *Validator {
	v := &Validator{prober: p, logger: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate probes every bookmark concurrently and returns one result per
// bookmark, in input order. A failing probe never affects its siblings and
// Validate itself cannot fail.
func (v *Validator) Validate(ctx context.Context, bookmarks []domain.Bookmark) []domain.Result {
	start := time.Now()
	results := make([]domain.Result, len(bookmarks))

	var sem *semaphore.Weighted
	if v.maxConcurrency > 0 {
		sem = semaphore.NewWeighted(int64(v.maxConcurrency))
	}

	var wg sync.WaitGroup
	for i, b := range bookmarks {
		i, b := i, b
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sem != nil {
				if err := sem.Acquire(ctx, 1); err != nil {
					results[i] = Classify(b, probe.Outcome{Kind: probe.KindFailure, Err: err})
					return
				}
				defer sem.Release(1)
			}
			results[i] = v.checkOne(ctx, b)
		}()
	}
	wg.Wait()

	summary := domain.Summarize(results)
	v.metrics.BatchCompleted(len(bookmarks))
	v.logger.InfoContext(ctx, "validation finished",
		slog.Int("total", summary.Total),
		slog.Int("ok", summary.OK),
		slog.Int("error", summary.Error),
		slog.Duration("elapsed", time.Since(start)),
	)
	return results
}

func (v *Validator) checkOne(ctx context.Context, b domain.Bookmark) domain.Result {
	v.metrics.ProbeStarted()
	outcome := v.prober.Probe(ctx, b.URL)
	res := Classify(b, outcome)
	v.metrics.ProbeFinished(outcomeLabel(outcome), outcome.Elapsed)

	v.logger.DebugContext(ctx, "bookmark probed",
		slog.String("url", b.URL),
		slog.String("kind", outcome.Kind.String()),
		slog.Int("status_code", outcome.StatusCode),
		slog.String("content_type", outcome.Header.Get("Content-Type")),
		slog.String("status", string(res.Status)),
		slog.Duration("elapsed", outcome.Elapsed),
	)
	return res
}

// Classify maps a probe outcome onto the bookmark's result. Title and URL are
// carried over unchanged.
func Classify(b domain.Bookmark, o probe.Outcome) domain.Result {
	switch o.Kind {
	case probe.KindResponse:
		if o.Success() {
			return domain.OK(b)
		}
		return domain.Failed(b, "HTTP "+strconv.Itoa(o.StatusCode)+": "+o.Reason)
	case probe.KindProtocolRejected:
		return domain.Failed(b, msgInvalidProtocol)
	case probe.KindTimeout:
		return domain.Failed(b, msgTimeout)
	case probe.KindConnectionFailure:
		return domain.Failed(b, msgNetwork)
	}
	return domain.Failed(b, failureMessage(o.Err))
}

func failureMessage(err error) string {
	if err == nil {
		return msgRequestFailed
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return msgRequestFailed
}

func outcomeLabel(o probe.Outcome) string {
	if o.Kind == probe.KindResponse {
		if o.Success() {
			return "ok"
		}
		return "http_error"
	}
	return o.Kind.String()
}
