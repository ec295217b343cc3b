package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// opTimeout bounds the element lookup inside non-waiting operations. Find
// succeeded before these run, so the element is normally already there.
const opTimeout = 5 * time.Second

// RodDriver is the rod-backed Driver implementation.
type RodDriver struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	page     *rod.Page
	logger   *slog.Logger
	quit     sync.Once
}

// Launch starts a headless Chromium with automation fingerprints suppressed
// and opens one stealth page for the session.
func Launch(chromePath string, logger *slog.Logger) (*RodDriver, error) {
	l := launcher.New()
	if chromePath != "" {
		l = l.Bin(chromePath)
	}
	l = l.
		Headless(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-infobars").
		Set("disable-extensions").
		Set("window-size", "1920,1080").
		Set("lang", "en-US,en")

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	page, err := newStealthPage(b)
	if err != nil {
		b.Close()
		l.Kill()
		return nil, fmt.Errorf("create page: %w", err)
	}

	logger.Debug("browser launched")
	return &RodDriver{browser: b, launcher: l, page: page, logger: logger}, nil
}

func (d *RodDriver) Navigate(url string) error {
	if err := d.page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := d.page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return nil
}

func (d *RodDriver) Root() Frame {
	return &rodFrame{page: d.page}
}

func (d *RodDriver) CloseExtraTabs() error {
	pages, err := d.browser.Pages()
	if err != nil {
		return fmt.Errorf("list tabs: %w", err)
	}
	for _, p := range pages {
		if p.TargetID == d.page.TargetID {
			continue
		}
		if err := p.Close(); err != nil {
			d.logger.Warn("close extra tab failed", "error", err)
		}
	}
	return nil
}

func (d *RodDriver) Quit() {
	d.quit.Do(func() {
		if err := d.browser.Close(); err != nil {
			d.logger.Debug("browser close", "error", err)
		}
		d.launcher.Kill()
		d.launcher.Cleanup()
		d.logger.Debug("browser quit")
	})
}

// rodFrame adapts a rod page (top-level or iframe document) to Frame.
type rodFrame struct {
	page *rod.Page
}

// element waits for the first match within the timeout, translating rod's
// deadline error into ErrNotFound.
func (f *rodFrame) element(sel string, timeout time.Duration) (*rod.Element, error) {
	el, err := f.page.Timeout(timeout).Element(sel)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, sel)
		}
		return nil, fmt.Errorf("find %s: %w", sel, err)
	}
	return el, nil
}

func (f *rodFrame) Find(sel string, timeout time.Duration) error {
	_, err := f.element(sel, timeout)
	return err
}

func (f *rodFrame) Click(sel string) error {
	el, err := f.element(sel, opTimeout)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s: %w", sel, err)
	}
	return nil
}

func (f *rodFrame) Text(sel string) (string, error) {
	el, err := f.element(sel, opTimeout)
	if err != nil {
		return "", err
	}
	text, err := el.Text()
	if err != nil {
		return "", fmt.Errorf("text %s: %w", sel, err)
	}
	return text, nil
}

func (f *rodFrame) Attribute(sel, name string) (string, error) {
	el, err := f.element(sel, opTimeout)
	if err != nil {
		return "", err
	}
	attr, err := el.Attribute(name)
	if err != nil {
		return "", fmt.Errorf("attribute %s of %s: %w", name, sel, err)
	}
	if attr == nil {
		return "", nil
	}
	return *attr, nil
}

func (f *rodFrame) Count(sel string) (int, error) {
	els, err := f.page.Elements(sel)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", sel, err)
	}
	return len(els), nil
}

func (f *rodFrame) Anchors(sel string) ([]Anchor, error) {
	els, err := f.page.Elements(sel)
	if err != nil {
		return nil, fmt.Errorf("anchors %s: %w", sel, err)
	}
	anchors := make([]Anchor, 0, len(els))
	for _, el := range els {
		text, err := el.Text()
		if err != nil {
			return nil, fmt.Errorf("anchor text %s: %w", sel, err)
		}
		href, err := el.Attribute("href")
		if err != nil {
			return nil, fmt.Errorf("anchor href %s: %w", sel, err)
		}
		a := Anchor{Text: text}
		if href != nil {
			a.Href = *href
		}
		anchors = append(anchors, a)
	}
	return anchors, nil
}

func (f *rodFrame) Screenshot(sel string, timeout time.Duration) ([]byte, error) {
	el, err := f.element(sel, timeout)
	if err != nil {
		return nil, err
	}
	img, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return nil, fmt.Errorf("screenshot %s: %w", sel, err)
	}
	return img, nil
}

func (f *rodFrame) Frame(sel string, timeout time.Duration) (Frame, error) {
	el, err := f.element(sel, timeout)
	if err != nil {
		return nil, err
	}
	inner, err := el.Frame()
	if err != nil {
		return nil, fmt.Errorf("enter frame %s: %w", sel, err)
	}
	return &rodFrame{page: inner}, nil
}
