// Package browser abstracts the headless browser the challenge flow drives.
// The solver only sees the Driver and Frame interfaces, so it can be tested
// without a real browser behind it.
package browser

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a selector matches nothing within its wait
// window. Callers treat it as a transient UI state, not a driver fault.
var ErrNotFound = errors.New("element not found")

// Anchor is one link element, text plus target.
type Anchor struct {
	Text string
	Href string
}

// Frame is a queryable document: either the top-level page or an iframe
// entered through Frame(). Find waits for the selector; the other methods
// operate on the document as it currently stands.
type Frame interface {
	// Find blocks until the selector matches or the timeout elapses.
	Find(sel string, timeout time.Duration) error

	// Click clicks the first element matching the selector.
	Click(sel string) error

	// Text returns the visible text of the first matching element.
	Text(sel string) (string, error)

	// Attribute returns the named attribute of the first matching element.
	// A present-but-empty attribute yields "".
	Attribute(sel, name string) (string, error)

	// Count returns how many elements currently match the selector.
	Count(sel string) (int, error)

	// Anchors returns text and href for every matching link.
	Anchors(sel string) ([]Anchor, error)

	// Screenshot captures the first matching element as a PNG.
	Screenshot(sel string, timeout time.Duration) ([]byte, error)

	// Frame waits for a matching iframe and returns its document.
	Frame(sel string, timeout time.Duration) (Frame, error)
}

// Driver is one live browser session.
type Driver interface {
	// Navigate loads a URL in the session's page and waits for the load event.
	Navigate(url string) error

	// Root returns the top-level document of the session's page.
	Root() Frame

	// CloseExtraTabs closes every tab except the session's own page. The
	// download sites open popups on click; this keeps the session usable.
	CloseExtraTabs() error

	// Quit tears the browser down. Safe to call more than once.
	Quit()
}
