// Package browser defines the page-automation capability used by the scraper
// and its headless Chrome implementation.
package browser

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout is returned when a bounded wait expires before its condition holds.
	ErrTimeout = errors.New("timed out waiting for page element")
	// ErrNotFound is returned when a referenced element does not exist.
	ErrNotFound = errors.New("page element not found")
)

// Ref addresses the Index-th element matching Selector, or the first match of
// Child inside it when Child is set.
type Ref struct {
	Selector string
	Index    int
	Child    string
}

// Session is one controllable browser tab. Implementations are not safe for
// concurrent use; callers serialize access.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	// Count returns the number of elements matching selector.
	Count(ctx context.Context, selector string) (int, error)
	// WaitVisible blocks until selector is visible or timeout elapses, in
	// which case ErrTimeout is returned.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// Type sends text to the element matching selector, followed by Enter
	// when submit is set.
	Type(ctx context.Context, selector, text string, submit bool) error
	ScrollIntoView(ctx context.Context, ref Ref) error
	Click(ctx context.Context, ref Ref) error
	// HTML returns the serialized document of the current page.
	HTML(ctx context.Context) (string, error)
	// Texts returns the rendered text of every visible element matching
	// selector, in document order. Hidden elements are left out.
	Texts(ctx context.Context, selector string) ([]string, error)
	Back(ctx context.Context) error
	Close() error
}

// Factory opens a new Session
type Factory func(ctx context.Context) (Session, error)
