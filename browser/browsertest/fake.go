// Package browsertest provides a scripted in-memory browser.Session for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Nexora-Open-Source/blog-generator-backend/browser"
)

// HomeURL is the search home page served by Session
const HomeURL = "https://search.test/"

// ErrClickIntercepted is returned by Click for results scripted to fail
var ErrClickIntercepted = errors.New("click intercepted")

// Result is one scripted search result
type Result struct {
	Title      string
	URL        string
	Paragraphs []string
	// HiddenParagraphs appear in the page HTML but are not rendered.
	HiddenParagraphs []string
	// FailClicks makes the first FailClicks clicks on this result fail.
	FailClicks int
	// Duplicate makes a click leave the browser on the results page.
	Duplicate bool
}

// Session is a fake browser.Session that serves a search home page, a
// results page listing Results, and one page per result.
type Session struct {
	mu       sync.Mutex
	results  []Result
	location string
	history  []string
	clicks   map[int]int
	closed   int
	query    string
}

var _ browser.Session = (*Session)(nil)

// NewSession creates a fake session positioned on a blank page
func NewSession(results ...Result) *Session {
	return &Session{
		results:  results,
		location: "about:blank",
		clicks:   make(map[int]int),
	}
}

// Factory returns a browser.Factory handing out s
func (s *Session) Factory() browser.Factory {
	return func(context.Context) (browser.Session, error) {
		return s, nil
	}
}

// Clicks reports how many times result index was clicked
func (s *Session) Clicks(index int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clicks[index]
}

// Closed reports how many times Close was called
func (s *Session) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Query returns the last submitted search query
func (s *Session) Query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// ResultsURL returns the results page address for the last query
func (s *Session) ResultsURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resultsURL()
}

func (s *Session) resultsURL() string {
	return HomeURL + "search?q=" + url.QueryEscape(s.query)
}

func (s *Session) onResults() bool {
	return s.query != "" && s.location == s.resultsURL()
}

func (s *Session) visit(location string) {
	s.history = append(s.history, s.location)
	s.location = location
}

func (s *Session) Navigate(ctx context.Context, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visit(target)
	return nil
}

func (s *Session) Location(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.location, nil
}

func (s *Session) Title(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.currentResult(); ok {
		return r.Title + " | Example", nil
	}
	return "Search", nil
}

func (s *Session) Count(ctx context.Context, selector string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if selector == "div.g" && s.onResults() {
		return len(s.results), nil
	}
	return 0, nil
}

func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	visible := false
	switch selector {
	case "body":
		visible = s.location != "about:blank"
	case `[name="q"]`:
		visible = s.location == HomeURL
	case "#search":
		visible = s.onResults()
	}
	if !visible {
		return fmt.Errorf("%w: %s after %s", browser.ErrTimeout, selector, timeout)
	}
	return nil
}

func (s *Session) Type(ctx context.Context, selector, text string, submit bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.location != HomeURL {
		return fmt.Errorf("%w: %s", browser.ErrNotFound, selector)
	}
	s.query = text
	if submit {
		s.visit(s.resultsURL())
	}
	return nil
}

func (s *Session) ScrollIntoView(ctx context.Context, ref browser.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.lookup(ref)
	return err
}

func (s *Session) Click(ctx context.Context, ref browser.Ref) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.lookup(ref)
	if err != nil {
		return err
	}
	s.clicks[ref.Index]++
	if s.clicks[ref.Index] <= r.FailClicks {
		return ErrClickIntercepted
	}
	if !r.Duplicate {
		s.visit(r.URL)
	}
	return nil
}

func (s *Session) HTML(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	b.WriteString("<html><body>")
	if r, ok := s.currentResult(); ok {
		for _, p := range r.Paragraphs {
			fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(p))
		}
		for _, p := range r.HiddenParagraphs {
			fmt.Fprintf(&b, `<p style="display:none">%s</p>`, html.EscapeString(p))
		}
	} else if s.onResults() {
		b.WriteString(`<div id="search">`)
		for _, r := range s.results {
			fmt.Fprintf(&b, `<div class="g"><a href="%s"><h3>%s</h3></a></div>`,
				html.EscapeString(r.URL), html.EscapeString(r.Title))
		}
		b.WriteString("</div>")
	}
	b.WriteString("</body></html>")
	return b.String(), nil
}

func (s *Session) Texts(ctx context.Context, selector string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.currentResult(); ok && selector == "p" {
		return append([]string(nil), r.Paragraphs...), nil
	}
	return nil, nil
}

func (s *Session) Back(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return errors.New("no history")
	}
	s.location = s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]
	return nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *Session) lookup(ref browser.Ref) (Result, error) {
	if ref.Selector != "div.g" || !s.onResults() || ref.Index < 0 || ref.Index >= len(s.results) {
		return Result{}, fmt.Errorf("%w: %s[%d]", browser.ErrNotFound, ref.Selector, ref.Index)
	}
	return s.results[ref.Index], nil
}

func (s *Session) currentResult() (Result, bool) {
	for _, r := range s.results {
		if !r.Duplicate && r.URL == s.location {
			return r, true
		}
	}
	return Result{}, false
}
