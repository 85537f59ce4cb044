package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// browserTransport renders pages in headless Chrome. The status and
// Retry-After of the document response go through the same retry rules as
// the HTTP transport.
type browserTransport struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	opts     Options
}

// NewBrowser creates a fetcher backed by a headless browser instead of
// net/http. Retry, pacing and caching behave exactly as in New.
func NewBrowser(opts Options, logger *zap.Logger, options ...Option) (*Fetcher, error) {
	opts = opts.withDefaults()

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(opts.UserAgent),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)

	bt := &browserTransport{allocCtx: allocCtx, cancel: cancel, opts: opts}
	return newFetcher(bt, opts, logger, options...), nil
}

func (b *browserTransport) roundTrip(ctx context.Context, url string) outcome {
	browserCtx, cancel := chromedp.NewContext(b.allocCtx)
	defer cancel()

	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, b.opts.RequestTimeout)
	defer cancelTimeout()

	// Tie the tab's lifetime to the caller's context as well.
	stop := context.AfterFunc(ctx, cancelTimeout)
	defer stop()

	resp, err := chromedp.RunResponse(browserCtx, chromedp.Navigate(url))
	if err != nil {
		return outcome{err: fmt.Errorf("chromedp: %w", err), canceled: ctx.Err() != nil}
	}
	o := responseOutcome(resp)
	if o.status < 200 || o.status >= 300 {
		return o
	}

	var html string
	err = chromedp.Run(browserCtx,
		chromedp.WaitReady(`body`, chromedp.ByQuery),
		chromedp.OuterHTML(`html`, &html, chromedp.ByQuery),
	)
	if err != nil {
		return outcome{err: fmt.Errorf("chromedp: %w", err), canceled: ctx.Err() != nil}
	}
	if html == "" {
		return outcome{err: errors.New("empty HTML content returned")}
	}
	o.body = html
	return o
}

// responseOutcome maps the navigation's document response to an outcome.
// A nil response (served from the browser cache) counts as 200.
func responseOutcome(resp *network.Response) outcome {
	if resp == nil {
		return outcome{status: http.StatusOK}
	}
	o := outcome{status: int(resp.Status)}
	for name, value := range resp.Headers {
		if strings.EqualFold(name, "Retry-After") {
			o.retryAfter = fmt.Sprint(value)
			break
		}
	}
	return o
}

// Close shuts the browser down.
func (b *browserTransport) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	return nil
}
