// internal/browser/screenshot.go
package browser

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// challengeBoundsScript measures the challenge widget on screen. It walks
// up from the widget iframe looking for the expanded challenge container
// and pads the rectangle so operators get surrounding context.
const challengeBoundsScript = `(() => {
	const iframes = document.querySelectorAll('iframe[src*="recaptcha"], iframe[src*="hcaptcha"]');
	if (iframes.length === 0) { return null; }
	let rect = iframes[0].getBoundingClientRect();
	let parent = iframes[0].parentElement;
	while (parent && parent.offsetHeight < 500) {
		parent = parent.parentElement;
	}
	if (parent && parent.offsetHeight >= 200) {
		rect = parent.getBoundingClientRect();
	}
	return {
		x: Math.max(0, rect.left - 50),
		y: Math.max(0, rect.top - 50),
		w: Math.min(1920, rect.width + 100),
		h: Math.min(1080, rect.height + 100),
	};
})()`

type challengeBounds struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Screenshot captures the page as a data URL. With cropToChallenge set it
// clips the capture to the challenge widget's area when one is visible and
// plausibly sized; otherwise it falls back to the full viewport.
func (s *Session) Screenshot(ctx context.Context, cropToChallenge bool) (string, error) {
	var clip *page.Viewport
	if cropToChallenge {
		var bounds *challengeBounds
		if err := s.run(ctx, probeWait, chromedp.Evaluate(challengeBoundsScript, &bounds)); err != nil {
			s.log.Debug("Challenge bounds lookup failed", zap.Error(err))
		} else if bounds != nil && bounds.W > 150 && bounds.H > 150 {
			clip = &page.Viewport{
				X:      bounds.X,
				Y:      bounds.Y,
				Width:  bounds.W,
				Height: bounds.H,
				Scale:  1,
			}
		}
	}

	var buf []byte
	capture := chromedp.ActionFunc(func(ctx context.Context) error {
		p := page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng)
		if clip != nil {
			p = p.WithClip(clip)
		}
		var err error
		buf, err = p.Do(ctx)
		return err
	})

	if err := s.run(ctx, s.fieldWait, capture); err != nil {
		return "", fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf), nil
}
