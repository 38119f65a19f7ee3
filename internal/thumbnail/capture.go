// Package thumbnail captures a PNG snapshot of a document preview using
// headless Chrome. The blob flows to the storage collaborator; the engine
// only stores the resulting URL on the project.
package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// ErrDependencyMissing is returned when no Chromium binary is installed.
var ErrDependencyMissing = errors.New("thumbnail capture unavailable")

// Width and height of the captured viewport; matches the dashboard card
// aspect ratio.
const (
	viewportWidth  = 1280
	viewportHeight = 960
)

// Capture renders the preview URL headless and returns a PNG screenshot.
func Capture(parent context.Context, previewURL string) ([]byte, error) {
	if _, err := exec.LookPath("chromium-browser"); err != nil {
		if _, fallbackErr := exec.LookPath("chromium"); fallbackErr != nil {
			return nil, fmt.Errorf("%w: chromium not installed", ErrDependencyMissing)
		}
	}

	ctx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	var png []byte
	err := chromedp.Run(taskCtx,
		chromedp.EmulateViewport(viewportWidth, viewportHeight),
		chromedp.Navigate(previewURL),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			png, err = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatPng).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("capture %s: %w", previewURL, err)
	}
	return png, nil
}
