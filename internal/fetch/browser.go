package fetch

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// MinContentLength is the minimum extracted text length, in runes, for an
// HTTP fetch to count as successful. Shorter pages are rendered in a browser.
const MinContentLength = 300

// ShouldUseBrowser reports whether extracted text is too short, which usually
// means the page is rendered client side.
func ShouldUseBrowser(extractedText string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(extractedText)) < MinContentLength
}

// Renderer returns the HTML of a page after client side rendering.
type Renderer func(ctx context.Context, url string) (string, error)

// ChromeRenderer returns a Renderer backed by a headless Chrome. Chrome or
// Chromium must be installed.
func ChromeRenderer(timeout time.Duration, logger *zap.Logger) Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, url string) (string, error) {
		logger.Debug("starting headless browser", zap.String("url", url))

		allocCtx, cancel := chromedp.NewExecAllocator(ctx,
			append(chromedp.DefaultExecAllocatorOptions[:],
				chromedp.Flag("headless", true),
				chromedp.Flag("disable-gpu", true),
				chromedp.Flag("no-sandbox", true),
				chromedp.Flag("disable-dev-shm-usage", true),
			)...,
		)
		defer cancel()

		browserCtx, cancel := chromedp.NewContext(allocCtx)
		defer cancel()

		browserCtx, cancel = context.WithTimeout(browserCtx, timeout)
		defer cancel()

		var html string
		err := chromedp.Run(browserCtx,
			chromedp.Navigate(url),
			chromedp.WaitReady("body"),
			// job boards hydrate the posting after load
			chromedp.Sleep(2*time.Second),
			chromedp.OuterHTML("html", &html),
		)
		if err != nil {
			return "", fmt.Errorf("browser rendering failed: %w", err)
		}

		logger.Debug("rendered page", zap.String("url", url), zap.Int("bytes", len(html)))
		return html, nil
	}
}
