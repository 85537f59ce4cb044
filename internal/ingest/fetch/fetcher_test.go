package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scriptedResponse struct {
	status     int
	body       string
	retryAfter string
	err        error
}

type scriptedDoer struct {
	responses []scriptedResponse
	calls     int
	requests  []*http.Request
}

func (d *scriptedDoer) Do(req *http.Request) (*http.Response, error) {
	d.requests = append(d.requests, req)
	r := d.responses[len(d.responses)-1]
	if d.calls < len(d.responses) {
		r = d.responses[d.calls]
	}
	d.calls++
	if r.err != nil {
		return nil, r.err
	}
	resp := &http.Response{
		StatusCode: r.status,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(r.body)),
	}
	if r.retryAfter != "" {
		resp.Header.Set("Retry-After", r.retryAfter)
	}
	return resp, nil
}

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func newTestFetcher(opts Options, doer Doer, clock *fakeClock) *Fetcher {
	return New(opts, zap.NewNop(), WithDoer(doer), WithClock(clock.Now), WithSleeper(clock.Sleep))
}

func TestFetchRetriesRateLimitThenSucceeds(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{
		{status: http.StatusTooManyRequests},
		{status: http.StatusTooManyRequests},
		{status: http.StatusOK, body: "<html>ok</html>"},
	}}
	clock := newFakeClock()
	f := newTestFetcher(Options{MaxRetries: 3, BaseBackoff: time.Second, MaxBackoff: 10 * time.Second}, doer, clock)

	res := f.Fetch(context.Background(), "https://example.test/players/a/")

	require.True(t, res.OK(), "unexpected failure: %v", res.Failure())
	assert.Equal(t, "<html>ok</html>", res.Body)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, doer.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.sleeps)
}

func TestFetchBackoffBoundedByMax(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{
		{status: http.StatusTooManyRequests},
		{status: http.StatusTooManyRequests},
		{status: http.StatusTooManyRequests},
		{status: http.StatusOK, body: "ok"},
	}}
	clock := newFakeClock()
	f := newTestFetcher(Options{MaxRetries: 5, BaseBackoff: 2 * time.Second, MaxBackoff: 5 * time.Second}, doer, clock)

	res := f.Fetch(context.Background(), "https://example.test/")

	require.True(t, res.OK())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 5 * time.Second}, clock.sleeps)
}

func TestFetchHonoursRetryAfter(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{
		{status: http.StatusTooManyRequests, retryAfter: "7"},
		{status: http.StatusOK, body: "ok"},
	}}
	clock := newFakeClock()
	f := newTestFetcher(Options{MaxRetries: 3, BaseBackoff: time.Second, MaxBackoff: 2 * time.Second}, doer, clock)

	res := f.Fetch(context.Background(), "https://example.test/")

	require.True(t, res.OK())
	assert.Equal(t, []time.Duration{7 * time.Second}, clock.sleeps)
}

func TestFetchServerErrorExhaustsRetries(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{{status: http.StatusInternalServerError}}}
	clock := newFakeClock()
	f := newTestFetcher(Options{MaxRetries: 4, BaseBackoff: time.Second, MaxBackoff: 8 * time.Second}, doer, clock)

	res := f.Fetch(context.Background(), "https://example.test/")

	require.False(t, res.OK())
	assert.Equal(t, 4, doer.calls)
	assert.Equal(t, 4, res.Err.Attempts)
	assert.Equal(t, KindServer, res.Err.Kind)
	assert.Equal(t, http.StatusInternalServerError, res.Err.StatusCode)
	assert.True(t, errors.Is(res.Failure(), ErrExhausted))
	assert.Len(t, clock.sleeps, 3)
}

func TestFetchTerminalStatusNotRetried(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{{status: http.StatusNotFound}}}
	clock := newFakeClock()
	f := newTestFetcher(Options{MaxRetries: 5}, doer, clock)

	res := f.Fetch(context.Background(), "https://example.test/missing")

	require.False(t, res.OK())
	assert.Equal(t, 1, doer.calls)
	assert.Equal(t, KindStatus, res.Err.Kind)
	assert.False(t, res.Err.Exhausted)
	assert.False(t, errors.Is(res.Failure(), ErrExhausted))
	assert.Empty(t, clock.sleeps)
}

func TestFetchNetworkErrorRetriedThenFails(t *testing.T) {
	netErr := errors.New("connection refused")
	doer := &scriptedDoer{responses: []scriptedResponse{{err: netErr}}}
	clock := newFakeClock()
	f := newTestFetcher(Options{MaxRetries: 3, BaseBackoff: time.Second, MaxBackoff: time.Minute}, doer, clock)

	res := f.Fetch(context.Background(), "https://example.test/")

	require.False(t, res.OK())
	assert.Equal(t, 3, doer.calls)
	assert.Equal(t, KindNetwork, res.Err.Kind)
	assert.ErrorIs(t, res.Failure(), netErr)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.sleeps)
}

func TestFetchNetworkErrorRecovers(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{
		{err: errors.New("timeout")},
		{status: http.StatusOK, body: "ok"},
	}}
	clock := newFakeClock()
	f := newTestFetcher(Options{MaxRetries: 3}, doer, clock)

	res := f.Fetch(context.Background(), "https://example.test/")

	require.True(t, res.OK())
	assert.Equal(t, 2, res.Attempts)
}

func TestFetchSetsHeaders(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{{status: http.StatusOK, body: "ok"}}}
	f := newTestFetcher(Options{UserAgent: "clio-test", Headers: map[string]string{"Accept-Language": "en-US"}}, doer, newFakeClock())

	res := f.Fetch(context.Background(), "https://example.test/")

	require.True(t, res.OK())
	require.Len(t, doer.requests, 1)
	assert.Equal(t, "clio-test", doer.requests[0].Header.Get("User-Agent"))
	assert.Equal(t, "en-US", doer.requests[0].Header.Get("Accept-Language"))
	assert.Equal(t, http.MethodGet, doer.requests[0].Method)
}

func TestFetchEnforcesMinimumInterval(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{{status: http.StatusOK, body: "ok"}}}
	clock := newFakeClock()
	f := newTestFetcher(Options{MinInterval: 5 * time.Second}, doer, clock)

	require.True(t, f.Fetch(context.Background(), "https://example.test/a").OK())
	assert.Empty(t, clock.sleeps, "first request is not delayed")

	clock.now = clock.now.Add(2 * time.Second)
	require.True(t, f.Fetch(context.Background(), "https://example.test/b").OK())
	assert.Equal(t, []time.Duration{3 * time.Second}, clock.sleeps)

	clock.now = clock.now.Add(10 * time.Second)
	require.True(t, f.Fetch(context.Background(), "https://example.test/c").OK())
	assert.Len(t, clock.sleeps, 1)
}

func TestFetchCanceledDuringBackoff(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{{status: http.StatusTooManyRequests}}}
	ctx, cancel := context.WithCancel(context.Background())
	sleeper := func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}
	f := New(Options{MaxRetries: 5}, zap.NewNop(), WithDoer(doer), WithSleeper(sleeper))

	res := f.Fetch(ctx, "https://example.test/")

	require.False(t, res.OK())
	assert.Equal(t, KindCanceled, res.Err.Kind)
	assert.Equal(t, 1, doer.calls)
}

type memoryPages map[string]string

func (m memoryPages) GetPage(_ context.Context, url string) (string, bool, error) {
	body, ok := m[url]
	return body, ok, nil
}

func (m memoryPages) SetPage(_ context.Context, url, body string) error {
	m[url] = body
	return nil
}

func TestFetchUsesPageCache(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{{status: http.StatusOK, body: "fresh"}}}
	pages := memoryPages{}
	f := New(Options{}, zap.NewNop(), WithDoer(doer), WithCache(pages))

	first := f.Fetch(context.Background(), "https://example.test/p")
	second := f.Fetch(context.Background(), "https://example.test/p")

	require.True(t, first.OK())
	require.True(t, second.OK())
	assert.False(t, first.FromCache)
	assert.True(t, second.FromCache)
	assert.Equal(t, "fresh", second.Body)
	assert.Equal(t, 1, doer.calls)
}
