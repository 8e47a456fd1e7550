package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// requestIdle is how long the network must be quiet before the page counts
// as settled.
const requestIdle = 500 * time.Millisecond

// scrollJS walks the document in step-pixel increments, pausing delay ms
// between steps, and returns to the top.
const scrollJS = `async (step, delay) => {
	const height = () => document.documentElement.scrollHeight;
	for (let y = 0; y < height(); y += step) {
		window.scrollTo(0, y);
		await new Promise(r => setTimeout(r, delay));
	}
	window.scrollTo(0, 0);
}`

// Capture opens a fresh page at the given viewport width, loads url and
// returns a full-page PNG. The page is closed on every path.
func (m *Manager) Capture(ctx context.Context, url string, width int) ([]byte, error) {
	if width <= 0 {
		return nil, fmt.Errorf("browser: invalid viewport width %d", width)
	}
	b, err := m.Browser(ctx)
	if err != nil {
		return nil, err
	}

	page, err := m.newPage(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create page: %w", err)
	}
	defer page.Close()

	if len(m.cfg.Block) > 0 {
		router := applyBlocking(page, m.cfg.Block)
		defer router.Stop()
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            m.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		return nil, fmt.Errorf("browser: set viewport: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, m.cfg.NavigationTimeout)
	defer cancel()
	p := page.Context(navCtx)

	idle := p.WaitRequestIdle(requestIdle, nil, nil, nil)
	if err := p.Navigate(url); err != nil {
		return nil, fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return nil, fmt.Errorf("browser: wait load %s: %w", url, err)
	}
	idle()
	if err := navCtx.Err(); err != nil {
		return nil, fmt.Errorf("browser: wait idle %s: %w", url, err)
	}

	if m.cfg.Scroll {
		if _, err := page.Context(ctx).Eval(scrollJS, m.cfg.ViewportHeight, m.cfg.ScrollDelay.Milliseconds()); err != nil {
			m.cfg.Logger.Warn("browser: scroll failed", "url", url, "error", err)
		}
	}

	png, err := page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot %s: %w", url, err)
	}
	m.cfg.Logger.Debug("browser: captured", "url", url, "width", width, "bytes", len(png))
	return png, nil
}

func (m *Manager) newPage(b *rod.Browser) (*rod.Page, error) {
	if m.cfg.Stealth {
		return stealth.Page(b)
	}
	return b.Page(proto.TargetCreateTarget{})
}
