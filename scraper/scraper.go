/*
Package scraper drives a browser session through a web search and extracts the
text of the top result pages.

The results of one search share a single browser session. Result tasks run
concurrently but take turns on the session through a one-slot semaphore, and
every attempt returns the session to the results page before releasing it.
*/
package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Nexora-Open-Source/blog-generator-backend/browser"
	"github.com/Nexora-Open-Source/blog-generator-backend/monitoring"
	"github.com/Nexora-Open-Source/blog-generator-backend/storage"
	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	searchBoxSelector = `[name="q"]`
	resultsSelector   = "#search"
	resultSelector    = "div.g"
	resultTitle       = "h3"
	pageBodySelector  = "body"
	paragraphSelector = "p"
)

var (
	// ErrNoResults is returned when a search yields no organic results.
	ErrNoResults = errors.New("no search results found")
	// ErrNoSuccessfulScrapes is returned when every result attempt failed.
	ErrNoSuccessfulScrapes = errors.New("failed to scrape any search results")

	errDuplicate = errors.New("duplicate URL")
)

// Config holds the extractor limits and interaction delays
type Config struct {
	SearchURL       string
	MaxResults      int
	MaxRetries      int
	PageLoadTimeout time.Duration
	Stagger         time.Duration
	ScrollPause     time.Duration
	Settle          time.Duration
	BackPause       time.Duration
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		SearchURL:       "https://www.google.com",
		MaxResults:      3,
		MaxRetries:      3,
		PageLoadTimeout: 10 * time.Second,
		Stagger:         2 * time.Second,
		ScrollPause:     time.Second,
		Settle:          3 * time.Second,
		BackPause:       2 * time.Second,
	}
}

// PageSaver persists extracted pages
type PageSaver interface {
	SavePage(dir string, index int, page storage.PageArtifact) (string, error)
}

// Outcome describes how one result was handled
type Outcome struct {
	Index    int    `json:"index"`
	Success  bool   `json:"success"`
	Path     string `json:"path,omitempty"`
	Attempts int    `json:"attempts"`
	Message  string `json:"message"`
}

// Report summarizes a ScrapeResults run
type Report struct {
	Outcomes  []Outcome
	Succeeded int
}

// Paths returns the artifact paths of the successful results in index order
func (r Report) Paths() []string {
	var paths []string
	for _, o := range r.Outcomes {
		if o.Success {
			paths = append(paths, o.Path)
		}
	}
	return paths
}

// Extractor performs searches and result extraction
type Extractor struct {
	cfg    Config
	saver  PageSaver
	logger *logrus.Logger
}

// NewExtractor creates an Extractor
func NewExtractor(cfg Config, saver PageSaver, logger *logrus.Logger) *Extractor {
	return &Extractor{
		cfg:    cfg,
		saver:  saver,
		logger: logger,
	}
}

// Search submits keyword on the search home page and returns the number of
// organic results shown.
func (e *Extractor) Search(ctx context.Context, session browser.Session, keyword string) (int, error) {
	if err := session.Navigate(ctx, e.cfg.SearchURL); err != nil {
		return 0, fmt.Errorf("failed to open search page: %w", err)
	}
	if err := session.WaitVisible(ctx, searchBoxSelector, e.cfg.PageLoadTimeout); err != nil {
		return 0, fmt.Errorf("search box did not appear: %w", err)
	}
	if err := session.Type(ctx, searchBoxSelector, keyword, true); err != nil {
		return 0, fmt.Errorf("failed to submit search: %w", err)
	}
	if err := session.WaitVisible(ctx, resultsSelector, e.cfg.PageLoadTimeout); err != nil {
		return 0, fmt.Errorf("search results did not load: %w", err)
	}

	count, err := session.Count(ctx, resultSelector)
	if err != nil {
		return 0, fmt.Errorf("failed to count search results: %w", err)
	}
	if count == 0 {
		return 0, ErrNoResults
	}

	e.logger.WithFields(logrus.Fields{
		"keyword": keyword,
		"results": count,
	}).Info("Search completed")

	return count, nil
}

// ScrapeResults extracts up to MaxResults of the available results into dir.
// It fails only when no result could be extracted.
func (e *Extractor) ScrapeResults(ctx context.Context, session browser.Session, dir string, available int) (Report, error) {
	n := min(e.cfg.MaxResults, available)
	report := Report{Outcomes: make([]Outcome, n)}
	if n <= 0 {
		return report, ErrNoSuccessfulScrapes
	}

	resultsURL, err := session.Location(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to read results location: %w", err)
	}

	lock := semaphore.NewWeighted(1)
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := sleep(gctx, e.cfg.Stagger); err != nil {
				return err
			}
			if err := lock.Acquire(gctx, 1); err != nil {
				return err
			}
			defer lock.Release(1)

			report.Outcomes[i] = e.scrapeWithRetry(gctx, session, dir, resultsURL, i)
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}

	for _, o := range report.Outcomes {
		if o.Success {
			report.Succeeded++
		}
	}

	e.logger.WithFields(logrus.Fields{
		"attempted": n,
		"succeeded": report.Succeeded,
	}).Info("Search result extraction finished")

	if report.Succeeded == 0 {
		return report, ErrNoSuccessfulScrapes
	}
	return report, nil
}

// scrapeWithRetry makes at most 1+MaxRetries attempts at result i
func (e *Extractor) scrapeWithRetry(ctx context.Context, session browser.Session, dir, resultsURL string, i int) Outcome {
	outcome := Outcome{Index: i + 1}
	log := e.logger.WithField("index", i+1)

	for remaining := e.cfg.MaxRetries; ; remaining-- {
		outcome.Attempts++
		path, err := e.scrapeOnce(ctx, session, dir, i)
		e.restore(ctx, session, resultsURL)

		var saveErr *saveError
		switch {
		case err == nil:
			monitoring.RecordScrapeAttempt("success")
			outcome.Success = true
			outcome.Path = path
			outcome.Message = fmt.Sprintf("Successfully scraped result %d", i+1)
			return outcome

		case errors.Is(err, errDuplicate):
			monitoring.RecordScrapeAttempt("duplicate")
			outcome.Message = fmt.Sprintf("Skipped result %d: duplicate URL", i+1)
			log.Info(outcome.Message)
			return outcome

		case ctx.Err() != nil:
			outcome.Message = ctx.Err().Error()
			return outcome

		case errors.As(err, &saveErr):
			monitoring.RecordScrapeAttempt("failed")
			outcome.Message = err.Error()
			log.WithError(err).Error("Failed to save scraped page")
			return outcome

		case remaining == 0:
			monitoring.RecordScrapeAttempt("failed")
			outcome.Message = fmt.Sprintf("Failed to scrape result %d after %d attempts: %v", i+1, outcome.Attempts, err)
			log.WithError(err).WithField("attempts", outcome.Attempts).Error("Failed to scrape search result")
			return outcome
		}

		monitoring.RecordScrapeAttempt("retry")
		log.WithError(err).WithFields(logrus.Fields{
			"attempt":   outcome.Attempts,
			"remaining": remaining,
		}).Warn("Retrying search result")
	}
}

// saveError marks a failure to persist an extracted page
type saveError struct {
	err error
}

func (e *saveError) Error() string { return e.err.Error() }
func (e *saveError) Unwrap() error { return e.err }

// scrapeOnce opens result i, extracts its paragraphs and saves them
func (e *Extractor) scrapeOnce(ctx context.Context, session browser.Session, dir string, i int) (string, error) {
	count, err := session.Count(ctx, resultSelector)
	if err != nil {
		return "", err
	}
	if i >= count {
		return "", fmt.Errorf("%w: result %d of %d", browser.ErrNotFound, i+1, count)
	}

	serp, err := session.HTML(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read results page: %w", err)
	}
	heading, err := resultTitleAt(serp, i)
	if err != nil {
		return "", err
	}

	before, err := session.Location(ctx)
	if err != nil {
		return "", err
	}

	ref := browser.Ref{Selector: resultSelector, Index: i, Child: resultTitle}
	if err := session.ScrollIntoView(ctx, ref); err != nil {
		return "", fmt.Errorf("failed to scroll to result: %w", err)
	}
	if err := sleep(ctx, e.cfg.ScrollPause); err != nil {
		return "", err
	}
	if err := session.Click(ctx, ref); err != nil {
		return "", fmt.Errorf("failed to open result: %w", err)
	}
	if err := session.WaitVisible(ctx, pageBodySelector, e.cfg.PageLoadTimeout); err != nil {
		return "", err
	}
	if err := sleep(ctx, e.cfg.Settle); err != nil {
		return "", err
	}

	after, err := session.Location(ctx)
	if err != nil {
		return "", err
	}
	if after == before {
		return "", errDuplicate
	}

	title, err := session.Title(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read page title: %w", err)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = heading
	}

	texts, err := session.Texts(ctx, paragraphSelector)
	if err != nil {
		return "", fmt.Errorf("failed to read result paragraphs: %w", err)
	}
	content := joinParagraphs(texts)

	path, err := e.saver.SavePage(dir, i+1, storage.PageArtifact{
		Title:   title,
		URL:     after,
		Content: content,
	})
	if err != nil {
		return "", &saveError{err: err}
	}

	e.logger.WithFields(logrus.Fields{
		"index":  i + 1,
		"url":    after,
		"result": heading,
		"title":  title,
		"path":   path,
	}).Info("Scraped search result")

	return path, nil
}

// restore returns the session to the results page. Failures are logged only.
func (e *Extractor) restore(ctx context.Context, session browser.Session, resultsURL string) {
	if ctx.Err() != nil {
		return
	}
	log := e.logger.WithField("results_url", resultsURL)

	location, err := session.Location(ctx)
	if err == nil && location != resultsURL {
		if err := session.Back(ctx); err != nil {
			log.WithError(err).Warn("Failed to navigate back to search results")
		}
	}

	if err := session.WaitVisible(ctx, resultsSelector, e.cfg.PageLoadTimeout); err != nil {
		log.WithError(err).Warn("Search results not visible, reloading results page")
		if err := session.Navigate(ctx, resultsURL); err != nil {
			log.WithError(err).Warn("Failed to reload search results")
			return
		}
		if err := session.WaitVisible(ctx, resultsSelector, e.cfg.PageLoadTimeout); err != nil {
			log.WithError(err).Warn("Search results still not visible")
			return
		}
	}

	_ = sleep(ctx, e.cfg.BackPause)
}

// resultTitleAt returns the heading text of the i-th organic result. It names
// the result in logs and stands in for a page without a title.
func resultTitleAt(serp string, i int) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(serp))
	if err != nil {
		return "", fmt.Errorf("failed to parse results page: %w", err)
	}
	result := doc.Find(resultSelector).Eq(i)
	if result.Length() == 0 {
		return "", fmt.Errorf("%w: result %d", browser.ErrNotFound, i+1)
	}
	return strings.TrimSpace(result.Find(resultTitle).First().Text()), nil
}

// joinParagraphs returns the non-blank paragraph texts separated by blank lines
func joinParagraphs(texts []string) string {
	var paragraphs []string
	for _, text := range texts {
		if text = strings.TrimSpace(text); text != "" {
			paragraphs = append(paragraphs, text)
		}
	}
	return strings.Join(paragraphs, "\n\n")
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
