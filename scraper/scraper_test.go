package scraper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Nexora-Open-Source/blog-generator-backend/browser/browsertest"
	"github.com/Nexora-Open-Source/blog-generator-backend/storage"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		SearchURL:  browsertest.HomeURL,
		MaxResults: 3,
		MaxRetries: 3,
	}
}

func sampleResults() []browsertest.Result {
	return []browsertest.Result{
		{
			Title:            "Observability 101",
			URL:              "https://one.example/o11y",
			Paragraphs:       []string{"Logs, metrics and traces.", "  ", "Start small."},
			HiddenParagraphs: []string{"We use cookies. Accept all?"},
		},
		{Title: "Tooling roundup", URL: "https://two.example/tools", Paragraphs: []string{"Pick open standards."}},
		{Title: "Tracing in practice", URL: "https://three.example/tracing", Paragraphs: []string{"Sample wisely."}},
		{Title: "Not reached", URL: "https://four.example/extra", Paragraphs: []string{"ignored"}},
	}
}

type failingSaver struct {
	mu    sync.Mutex
	calls int
}

func (f *failingSaver) SavePage(string, int, storage.PageArtifact) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return "", errors.New("disk full")
}

func newExtractor(t *testing.T, cfg Config, saver PageSaver) (*Extractor, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	return NewExtractor(cfg, saver, logger), hook
}

func newFileStore(t *testing.T) (*storage.FileStore, string) {
	t.Helper()
	root := t.TempDir()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	store := storage.NewFileStore(filepath.Join(root, "files"), filepath.Join(root, "blogs"), logger)
	return store, store.JobDir("observability-tooling-1")
}

func searched(t *testing.T, e *Extractor, session *browsertest.Session) int {
	t.Helper()
	count, err := e.Search(context.Background(), session, "observability tooling")
	require.NoError(t, err)
	return count
}

func errorEntries(hook *test.Hook) int {
	n := 0
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.ErrorLevel {
			n++
		}
	}
	return n
}

func TestSearch(t *testing.T) {
	session := browsertest.NewSession(sampleResults()...)
	e, _ := newExtractor(t, testConfig(), nil)

	count := searched(t, e, session)
	assert.Equal(t, 4, count)
	assert.Equal(t, "observability tooling", session.Query())
}

func TestSearchNoResults(t *testing.T) {
	session := browsertest.NewSession()
	e, _ := newExtractor(t, testConfig(), nil)

	_, err := e.Search(context.Background(), session, "zzqx nothing")
	assert.ErrorIs(t, err, ErrNoResults)
	assert.Contains(t, err.Error(), "no search results found")
}

func TestScrapeResultsWritesArtifacts(t *testing.T) {
	session := browsertest.NewSession(sampleResults()...)
	store, dir := newFileStore(t)
	e, _ := newExtractor(t, testConfig(), store)

	available := searched(t, e, session)
	report, err := e.ScrapeResults(context.Background(), session, dir, available)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Succeeded)
	require.Len(t, report.Outcomes, 3)
	assert.Equal(t, 0, session.Clicks(3))

	data, err := os.ReadFile(filepath.Join(dir, "page_1_content.txt"))
	require.NoError(t, err)
	assert.Equal(t,
		"Title: Observability 101 | Example\n\nURL: https://one.example/o11y\n\nContent:\nLogs, metrics and traces.\n\nStart small.",
		string(data))
	assert.NotContains(t, string(data), "cookies")

	assert.Len(t, report.Paths(), 3)

	location, _ := session.Location(context.Background())
	assert.Equal(t, session.ResultsURL(), location)
}

func TestScrapeResultsRetryBound(t *testing.T) {
	results := sampleResults()
	results[1].FailClicks = 100

	session := browsertest.NewSession(results...)
	store, dir := newFileStore(t)
	e, hook := newExtractor(t, testConfig(), store)

	available := searched(t, e, session)
	report, err := e.ScrapeResults(context.Background(), session, dir, available)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 4, session.Clicks(1))
	assert.Equal(t, 4, report.Outcomes[1].Attempts)
	assert.False(t, report.Outcomes[1].Success)
	assert.Equal(t, 1, errorEntries(hook))
}

func TestScrapeResultsRecoversWithinRetries(t *testing.T) {
	results := sampleResults()
	results[0].FailClicks = 2

	session := browsertest.NewSession(results...)
	store, dir := newFileStore(t)
	e, hook := newExtractor(t, testConfig(), store)

	available := searched(t, e, session)
	report, err := e.ScrapeResults(context.Background(), session, dir, available)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 3, report.Outcomes[0].Attempts)
	assert.Equal(t, 0, errorEntries(hook))
}

func TestScrapeResultsAllFail(t *testing.T) {
	results := sampleResults()
	for i := range results {
		results[i].FailClicks = 100
	}

	session := browsertest.NewSession(results...)
	store, dir := newFileStore(t)
	e, hook := newExtractor(t, testConfig(), store)

	available := searched(t, e, session)
	_, err := e.ScrapeResults(context.Background(), session, dir, available)
	assert.ErrorIs(t, err, ErrNoSuccessfulScrapes)
	assert.Equal(t, 3, errorEntries(hook))
}

func TestScrapeResultsDuplicateIsNotRetried(t *testing.T) {
	results := sampleResults()
	results[0].Duplicate = true

	session := browsertest.NewSession(results...)
	store, dir := newFileStore(t)
	e, hook := newExtractor(t, testConfig(), store)

	available := searched(t, e, session)
	report, err := e.ScrapeResults(context.Background(), session, dir, available)
	require.NoError(t, err)

	assert.Equal(t, 1, session.Clicks(0))
	assert.Equal(t, "Skipped result 1: duplicate URL", report.Outcomes[0].Message)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 0, errorEntries(hook))

	_, err = os.Stat(filepath.Join(dir, "page_1_content.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestScrapeResultsSaveFailureIsNotRetried(t *testing.T) {
	session := browsertest.NewSession(sampleResults()[:1]...)
	saver := &failingSaver{}
	e, hook := newExtractor(t, testConfig(), saver)

	available := searched(t, e, session)
	_, err := e.ScrapeResults(context.Background(), session, "unused", available)
	assert.ErrorIs(t, err, ErrNoSuccessfulScrapes)

	assert.Equal(t, 1, saver.calls)
	assert.Equal(t, 1, session.Clicks(0))
	assert.Equal(t, 1, errorEntries(hook))
}

func TestScrapeResultsCancelled(t *testing.T) {
	session := browsertest.NewSession(sampleResults()...)
	store, dir := newFileStore(t)
	e, _ := newExtractor(t, testConfig(), store)

	available := searched(t, e, session)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.ScrapeResults(ctx, session, dir, available)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestJoinParagraphs(t *testing.T) {
	assert.Equal(t, "One\n\nTwo", joinParagraphs([]string{" One ", "   ", "Two"}))
	assert.Empty(t, joinParagraphs(nil))
}

func TestResultTitleAt(t *testing.T) {
	serp := `<div id="search"><div class="g"><h3>A</h3></div><div class="g"><h3> B </h3></div></div>`

	title, err := resultTitleAt(serp, 1)
	require.NoError(t, err)
	assert.Equal(t, "B", title)

	_, err = resultTitleAt(serp, 2)
	assert.Error(t, err)
}
