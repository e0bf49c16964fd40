package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/sirupsen/logrus"
)

// Options configures the Chrome instance behind a ChromeSession
type Options struct {
	Headless  bool
	RemoteURL string
	UserAgent string
}

// ChromeSession implements Session on a single chromedp tab
type ChromeSession struct {
	tabCtx      context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	closeOnce   sync.Once
	logger      *logrus.Logger
}

var _ Session = (*ChromeSession)(nil)

// NewChromeFactory returns a Factory that starts one Chrome tab per session
func NewChromeFactory(opts Options, logger *logrus.Logger) Factory {
	return func(ctx context.Context) (Session, error) {
		return NewChromeSession(ctx, opts, logger)
	}
}

// NewChromeSession launches Chrome, or attaches to RemoteURL when set, and
// opens a tab. The session outlives ctx; call Close to release it.
func NewChromeSession(ctx context.Context, opts Options, logger *logrus.Logger) (*ChromeSession, error) {
	var allocCtx context.Context
	var cancelAlloc context.CancelFunc

	if opts.RemoteURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(context.Background(), opts.RemoteURL)
	} else {
		allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
			chromedp.NoSandbox,
			chromedp.DisableGPU,
			chromedp.Flag("disable-dev-shm-usage", true),
		)
		if opts.UserAgent != "" {
			allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
		}
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(context.Background(), allocOpts...)
	}

	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(logger.Debugf))

	s := &ChromeSession{
		tabCtx:      tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		logger:      logger,
	}

	if err := startBrowser(ctx, tabCtx, cancelTab, chromedp.Run); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"headless": opts.Headless,
		"remote":   opts.RemoteURL != "",
	}).Debug("Browser session started")

	return s, nil
}

// startBrowser performs the first Run, which launches or attaches the
// browser. chromedp binds the browser process to the context of that first
// Run, so it must be tabCtx itself and never a derived, cancellable context.
// ctx only bounds startup: cancelling it before startup completes cancels the tab.
func startBrowser(ctx, tabCtx context.Context, cancelTab context.CancelFunc, run func(context.Context, ...chromedp.Action) error) error {
	stop := context.AfterFunc(ctx, cancelTab)
	err := run(tabCtx)
	if !stop() {
		return ctx.Err()
	}
	return err
}

// run executes actions on the already started tab, bounded by the caller's
// deadline and cancellation.
func (s *ChromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	var runCtx context.Context
	var cancel context.CancelFunc
	if deadline, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(s.tabCtx, deadline)
	} else {
		runCtx, cancel = context.WithCancel(s.tabCtx)
	}
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *ChromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *ChromeSession) Location(ctx context.Context) (string, error) {
	var location string
	err := s.run(ctx, chromedp.Location(&location))
	return location, err
}

func (s *ChromeSession) Title(ctx context.Context) (string, error) {
	var title string
	err := s.run(ctx, chromedp.Title(&title))
	return title, err
}

func (s *ChromeSession) Count(ctx context.Context, selector string) (int, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return 0, err
	}
	var count int
	err = s.run(ctx, chromedp.Evaluate(fmt.Sprintf("document.querySelectorAll(%s).length", quoted), &count))
	return count, err
}

func (s *ChromeSession) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := s.run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%w: %s after %s", ErrTimeout, selector, timeout)
	}
	return err
}

func (s *ChromeSession) Type(ctx context.Context, selector, text string, submit bool) error {
	if submit {
		text += kb.Enter
	}
	return s.run(ctx, chromedp.SendKeys(selector, text, chromedp.ByQuery))
}

func (s *ChromeSession) ScrollIntoView(ctx context.Context, ref Ref) error {
	node, err := s.resolve(ctx, ref)
	if err != nil {
		return err
	}
	return s.run(ctx, chromedp.ScrollIntoView([]cdp.NodeID{node.NodeID}, chromedp.ByNodeID))
}

func (s *ChromeSession) Click(ctx context.Context, ref Ref) error {
	node, err := s.resolve(ctx, ref)
	if err != nil {
		return err
	}
	return s.run(ctx, chromedp.MouseClickNode(node))
}

func (s *ChromeSession) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// visibleTextsJS collects innerText of rendered elements. Elements without
// client rects (display:none, detached, collapsed ancestors) and elements
// with hidden visibility are skipped.
const visibleTextsJS = `Array.from(document.querySelectorAll(%s))
	.filter(el => el.getClientRects().length > 0 && getComputedStyle(el).visibility !== "hidden")
	.map(el => el.innerText)`

func (s *ChromeSession) Texts(ctx context.Context, selector string) ([]string, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return nil, err
	}
	var texts []string
	err = s.run(ctx, chromedp.Evaluate(fmt.Sprintf(visibleTextsJS, quoted), &texts))
	return texts, err
}

func (s *ChromeSession) Back(ctx context.Context) error {
	return s.run(ctx, chromedp.NavigateBack())
}

// Close shuts down the tab and the browser. It is safe to call more than once.
func (s *ChromeSession) Close() error {
	s.closeOnce.Do(func() {
		s.cancelTab()
		s.cancelAlloc()
	})
	return nil
}

// resolve looks up the node addressed by ref without waiting for it to appear
func (s *ChromeSession) resolve(ctx context.Context, ref Ref) (*cdp.Node, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(ref.Selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	if ref.Index < 0 || ref.Index >= len(nodes) {
		return nil, fmt.Errorf("%w: %s[%d]", ErrNotFound, ref.Selector, ref.Index)
	}

	node := nodes[ref.Index]
	if ref.Child == "" {
		return node, nil
	}

	var children []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(ref.Child, &children, chromedp.ByQueryAll, chromedp.FromNode(node), chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	if len(children) == 0 {
		return nil, fmt.Errorf("%w: %s[%d] %s", ErrNotFound, ref.Selector, ref.Index, ref.Child)
	}
	return children[0], nil
}
