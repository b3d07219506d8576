// Package capture takes a PNG preview of the agenda page with headless
// Chromium.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
)

// Default capture parameters for the agenda preview.
const (
	DefaultWidth      = 800
	DefaultHeight     = 1200
	DefaultTimeoutSec = 30
)

// readySelector matches the element the agenda page marks as rendered.
const readySelector = `[data-ready="true"]`

// CaptureOptions describes one preview capture.
type CaptureOptions struct {
	// URL of the agenda page, e.g. "http://127.0.0.1:8080/agenda".
	URL string

	// OutputPath receives the PNG.
	OutputPath string

	// Viewport in pixels; zero means DefaultWidth x DefaultHeight.
	Width  int
	Height int

	// Timeout bounds the browser session; zero means DefaultTimeoutSec.
	Timeout time.Duration
}

func (o *CaptureOptions) applyDefaults() error {
	switch {
	case o.URL == "":
		return errors.New("capture: URL is required")
	case o.OutputPath == "":
		return errors.New("capture: OutputPath is required")
	}
	o.Width = orDefault(o.Width, DefaultWidth)
	o.Height = orDefault(o.Height, DefaultHeight)
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeoutSec * time.Second
	}
	return nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// CaptureAgendaPNG renders opts.URL in headless Chromium and stores a
// full-page screenshot at opts.OutputPath.
//
// Ready condition:
//   - /agenda marks its table, or the fallback message shown instead of it,
//     with data-ready="true"
//   - the screenshot is taken once that element is visible, so a missing
//     account still yields a preview with the message
//
// The file is replaced via a temp file in the same directory, so
// /preview.png never serves a half-written image.
func CaptureAgendaPNG(parentCtx context.Context, opts CaptureOptions) error {
	if err := opts.applyDefaults(); err != nil {
		return err
	}

	browserCtx, closeBrowser := chromedp.NewContext(parentCtx)
	defer closeBrowser()
	ctx, cancel := context.WithTimeout(browserCtx, opts.Timeout)
	defer cancel()

	var shot []byte
	err := chromedp.Run(ctx,
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(readySelector, chromedp.ByQuery),
		chromedp.FullScreenshot(&shot, 100),
	)
	if err != nil {
		return fmt.Errorf("capture: render %s: %w", opts.URL, err)
	}
	return writeFileAtomic(opts.OutputPath, shot)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("capture: create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".preview-*.png")
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("capture: write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
