package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultUserAgent is sent when Options.UserAgent is empty.
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	DefaultMaxRetries     = 3
	DefaultBaseBackoff    = time.Second
	DefaultMaxBackoff     = 60 * time.Second
	DefaultRequestTimeout = 30 * time.Second

	maxBodyBytes = 16 << 20
)

// Doer is the HTTP transport used by the fetcher.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Clock returns the current time.
type Clock func() time.Time

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// PageCache stores successfully fetched page bodies keyed by URL.
type PageCache interface {
	GetPage(ctx context.Context, url string) (string, bool, error)
	SetPage(ctx context.Context, url, body string) error
}

// Source fetches a URL. *Fetcher is the only implementation; the interface
// exists so pipeline code can be tested with canned pages.
type Source interface {
	Fetch(ctx context.Context, url string) Result
}

// Options configures retry, pacing and request headers.
type Options struct {
	MaxRetries     int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	MinInterval    time.Duration
	RequestTimeout time.Duration
	UserAgent      string
	Headers        map[string]string
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = DefaultBaseBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = DefaultMaxBackoff
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	return o
}

// transport performs a single round trip.
type transport interface {
	roundTrip(ctx context.Context, url string) outcome
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithDoer replaces the HTTP client.
func WithDoer(d Doer) Option {
	return func(f *Fetcher) {
		if ht, ok := f.transport.(*httpTransport); ok && d != nil {
			ht.client = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(c Clock) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.pacer.now = c
		}
	}
}

// WithSleeper replaces the context-aware sleep.
func WithSleeper(s Sleeper) Option {
	return func(f *Fetcher) {
		if s != nil {
			f.sleep = s
			f.pacer.sleep = s
		}
	}
}

// WithCache consults cache before any network I/O.
func WithCache(c PageCache) Option {
	return func(f *Fetcher) {
		f.cache = c
	}
}

// Fetcher issues rate-limited GETs with retry and backoff. It is not safe for
// concurrent use; the pipeline drives it from a single goroutine.
type Fetcher struct {
	transport transport
	policy    policy
	pacer     *pacer
	sleep     Sleeper
	cache     PageCache
	logger    *zap.Logger
}

// New creates an HTTP fetcher.
func New(opts Options, logger *zap.Logger, options ...Option) *Fetcher {
	opts = opts.withDefaults()
	headers := map[string]string{"User-Agent": opts.UserAgent}
	for k, v := range opts.Headers {
		headers[k] = v
	}
	ht := &httpTransport{
		client:  &http.Client{Timeout: opts.RequestTimeout},
		headers: headers,
	}
	return newFetcher(ht, opts, logger, options...)
}

func newFetcher(t transport, opts Options, logger *zap.Logger, options ...Option) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fetcher{
		transport: t,
		policy: policy{
			maxRetries:  opts.MaxRetries,
			baseBackoff: opts.BaseBackoff,
			maxBackoff:  opts.MaxBackoff,
		},
		pacer:  &pacer{interval: opts.MinInterval, now: time.Now, sleep: sleepContext},
		sleep:  sleepContext,
		logger: logger.Named("fetch"),
	}
	for _, opt := range options {
		opt(f)
	}
	return f
}

// Close releases transport resources (the headless browser, if any).
func (f *Fetcher) Close() error {
	if c, ok := f.transport.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Fetch returns the page body for url or a failure. It never panics on
// transport errors; every failure is reported through Result.Err.
func (f *Fetcher) Fetch(ctx context.Context, url string) Result {
	if body, ok := f.cached(ctx, url); ok {
		return Result{URL: url, Body: body, StatusCode: http.StatusOK, FromCache: true}
	}

	state := StateIdle
	attempt := 0
	var (
		last  outcome
		delay time.Duration
	)

	for {
		switch state {
		case StateIdle:
			state = StateRequesting

		case StateRequesting:
			if err := f.pacer.wait(ctx); err != nil {
				return canceled(url, attempt, err)
			}
			attempt++
			last = f.transport.roundTrip(ctx, url)
			t := step(url, attempt, last, f.policy)
			if t.failure != nil {
				f.logger.Warn("fetch failed",
					zap.String("url", url),
					zap.String("kind", t.failure.Kind.String()),
					zap.Int("status", t.failure.StatusCode),
					zap.Int("attempts", attempt),
					zap.Error(t.failure.Err))
				return Result{URL: url, StatusCode: last.status, Attempts: attempt, Err: t.failure}
			}
			state, delay = t.next, t.delay

		case StateBackoff:
			f.logger.Info("retrying after backoff",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Int("max_retries", f.policy.maxRetries),
				zap.Int("status", last.status),
				zap.Duration("delay", delay))
			if err := f.sleep(ctx, delay); err != nil {
				return canceled(url, attempt, err)
			}
			state = StateRequesting

		case StateSucceeded:
			f.store(ctx, url, last.body)
			return Result{URL: url, Body: last.body, StatusCode: last.status, Attempts: attempt}

		default:
			return Result{URL: url, Attempts: attempt, Err: &Error{URL: url, Kind: KindNetwork, Attempts: attempt, Err: fmt.Errorf("invalid state %s", state)}}
		}
	}
}

func (f *Fetcher) cached(ctx context.Context, url string) (string, bool) {
	if f.cache == nil {
		return "", false
	}
	body, ok, err := f.cache.GetPage(ctx, url)
	if err != nil {
		f.logger.Debug("page cache read failed", zap.String("url", url), zap.Error(err))
		return "", false
	}
	return body, ok
}

func (f *Fetcher) store(ctx context.Context, url, body string) {
	if f.cache == nil {
		return
	}
	if err := f.cache.SetPage(ctx, url, body); err != nil {
		f.logger.Debug("page cache write failed", zap.String("url", url), zap.Error(err))
	}
}

func canceled(url string, attempts int, err error) Result {
	return Result{URL: url, Attempts: attempts, Err: &Error{URL: url, Kind: KindCanceled, Attempts: attempts, Err: err}}
}

// pacer enforces a minimum spacing between consecutive requests.
type pacer struct {
	interval time.Duration
	now      Clock
	sleep    Sleeper
	last     time.Time
}

func (p *pacer) wait(ctx context.Context) error {
	if p.interval > 0 && !p.last.IsZero() {
		if wait := p.last.Add(p.interval).Sub(p.now()); wait > 0 {
			if err := p.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	p.last = p.now()
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// httpTransport performs plain HTTP GETs.
type httpTransport struct {
	client  Doer
	headers map[string]string
}

func (t *httpTransport) roundTrip(ctx context.Context, url string) outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return outcome{err: fmt.Errorf("build request: %w", err)}
	}
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return outcome{err: err, canceled: ctx.Err() != nil}
	}
	defer resp.Body.Close()

	o := outcome{status: resp.StatusCode, retryAfter: resp.Header.Get("Retry-After")}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return o
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return outcome{err: fmt.Errorf("read body: %w", err), canceled: ctx.Err() != nil}
	}
	o.body = string(body)
	return o
}
