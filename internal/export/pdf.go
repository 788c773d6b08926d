package export

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// dataURL wraps html in a data URL. url.PathEscape keeps spaces as %20.
func dataURL(html string) string {
	return "data:text/html;charset=utf-8," + url.PathEscape(html)
}

func chromePDF(remoteURL string, timeout time.Duration) htmlConverter {
	return func(ctx context.Context, html, title string) (*Result, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var allocCtx context.Context
		var allocCancel context.CancelFunc
		if remoteURL != "" {
			allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, remoteURL)
		} else {
			if !chromeInstalled() {
				return nil, fmt.Errorf("%w: chromium not installed", ErrPDFDependencyMissing)
			}
			opts := append(chromedp.DefaultExecAllocatorOptions[:],
				chromedp.Flag("headless", true),
				chromedp.Flag("disable-gpu", true),
				chromedp.Flag("no-sandbox", true),
				chromedp.Flag("disable-dev-shm-usage", true),
			)
			allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, opts...)
		}
		defer allocCancel()

		taskCtx, taskCancel := chromedp.NewContext(allocCtx)
		defer taskCancel()

		var pdfData []byte
		err := chromedp.Run(taskCtx,
			chromedp.Navigate(dataURL(html)),
			chromedp.WaitReady("body"),
			chromedp.ActionFunc(func(ctx context.Context) error {
				var err error
				pdfData, _, err = page.PrintToPDF().
					WithPrintBackground(true).
					WithLandscape(true).
					WithPaperWidth(8.5).
					WithPaperHeight(11.0).
					WithMarginTop(0.5).
					WithMarginBottom(0.5).
					WithMarginLeft(0.5).
					WithMarginRight(0.5).
					Do(ctx)
				return err
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("chrome pdf generation failed: %w", err)
		}

		return &Result{
			Data:     pdfData,
			Filename: sanitizeFilename(title) + ".pdf",
			MimeType: "application/pdf",
		}, nil
	}
}

func chromeInstalled() bool {
	for _, name := range []string{"chromium-browser", "chromium", "google-chrome", "headless-shell"} {
		if _, err := exec.LookPath(name); err == nil {
			return true
		}
	}
	return false
}

// sanitizeFilename keeps letters, digits, hyphens and underscores, turns
// spaces into hyphens and caps the result at 50 bytes.
func sanitizeFilename(title string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		}
	}

	result := b.String()
	if len(result) > 50 {
		result = result[:50]
	}
	if result == "" {
		result = "roadmap"
	}
	return result
}
