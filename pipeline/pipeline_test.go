package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Nexora-Open-Source/blog-generator-backend/browser"
	"github.com/Nexora-Open-Source/blog-generator-backend/browser/browsertest"
	"github.com/Nexora-Open-Source/blog-generator-backend/generation"
	"github.com/Nexora-Open-Source/blog-generator-backend/scraper"
	"github.com/Nexora-Open-Source/blog-generator-backend/storage"
	"github.com/Nexora-Open-Source/blog-generator-backend/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// scriptedLLM answers summary and article requests with fixed text
type scriptedLLM struct {
	mu        sync.Mutex
	summary   string
	article   string
	failOn    string
	summaries []string
}

func (s *scriptedLLM) Complete(_ context.Context, operation, _, user string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if operation == s.failOn {
		return "", errors.New("service unavailable")
	}
	if operation == "summary" {
		s.summaries = append(s.summaries, user)
		return s.summary, nil
	}
	return s.article, nil
}

type mockArchive struct {
	mock.Mock
}

func (m *mockArchive) SaveArticle(ctx context.Context, record *storage.ArticleRecord) error {
	return m.Called(ctx, record).Error(0)
}

func (m *mockArchive) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type fixture struct {
	session *browsertest.Session
	store   *storage.FileStore
	llm     *scriptedLLM
	root    string
	logger  *logrus.Logger
}

func newFixture(t *testing.T, results ...browsertest.Result) *fixture {
	t.Helper()
	root := t.TempDir()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return &fixture{
		session: browsertest.NewSession(results...),
		store:   storage.NewFileStore(filepath.Join(root, "files"), filepath.Join(root, "blogs"), logger),
		llm:     &scriptedLLM{summary: "observability summary", article: "# Observability Tooling\n\nArticle body."},
		root:    root,
		logger:  logger,
	}
}

func (f *fixture) pipeline(archive storage.Archive) *Pipeline {
	cfg := scraper.Config{SearchURL: browsertest.HomeURL, MaxResults: 3, MaxRetries: 3}
	return New(Options{
		Browsers:   f.session.Factory(),
		Scraper:    cfg,
		Summarizer: generation.NewSummarizer(f.llm, 10, f.logger),
		Writer:     generation.NewArticleGenerator(f.llm, "", f.logger),
		Store:      f.store,
		Archive:    archive,
		Logger:     f.logger,
	})
}

func results() []browsertest.Result {
	return []browsertest.Result{
		{Title: "One", URL: "https://one.example/", Paragraphs: []string{"alpha"}},
		{Title: "Two", URL: "https://two.example/", Paragraphs: []string{"beta"}},
		{Title: "Three", URL: "https://three.example/", Paragraphs: []string{"gamma"}},
	}
}

func TestRunCompletes(t *testing.T) {
	f := newFixture(t, results()...)
	var labels []string

	result, err := f.pipeline(nil).Run(context.Background(), Job{ID: "observability-tooling-1", Keyword: "observability tooling"}, func(label string) {
		labels = append(labels, label)
	})
	require.NoError(t, err)

	assert.Equal(t, "# Observability Tooling\n\nArticle body.", result.Article)
	assert.Equal(t, 3, result.Pages)
	assert.Equal(t, filepath.Join(f.root, "blogs", "observability tooling.txt"), result.ArticlePath)

	saved, err := os.ReadFile(result.ArticlePath)
	require.NoError(t, err)
	assert.Equal(t, result.Article, string(saved))

	assert.Equal(t, []string{
		types.ProgressBrowser,
		types.ProgressSearching,
		types.ProgressScraping,
		types.ProgressLoading,
		types.ProgressSummarizing,
		types.ProgressGenerating,
		types.ProgressSaving,
	}, labels)

	require.Len(t, f.llm.summaries, 1)
	for _, word := range []string{"alpha", "beta", "gamma"} {
		assert.Contains(t, f.llm.summaries[0], word)
	}
	assert.Equal(t, 1, f.session.Closed())
}

func TestRunNoSearchResults(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline(nil).Run(context.Background(), Job{ID: "j", Keyword: "zzqx"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, scraper.ErrNoResults)
	assert.Contains(t, err.Error(), "no search results found")
	assert.Equal(t, 1, f.session.Closed())
}

func TestRunSummaryFailure(t *testing.T) {
	f := newFixture(t, results()...)
	f.llm.failOn = "summary"

	_, err := f.pipeline(nil).Run(context.Background(), Job{ID: "j", Keyword: "k"}, nil)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "failed to generate summary"))
	assert.Equal(t, 1, f.session.Closed())
}

func TestRunArticleFailure(t *testing.T) {
	f := newFixture(t, results()...)
	f.llm.failOn = "article"

	_, err := f.pipeline(nil).Run(context.Background(), Job{ID: "j", Keyword: "k"}, nil)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "failed to generate blog post"))

	_, statErr := os.Stat(filepath.Join(f.root, "blogs", "k.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunBrowserUnavailable(t *testing.T) {
	f := newFixture(t, results()...)
	p := f.pipeline(nil)
	p.browsers = func(context.Context) (browser.Session, error) {
		return nil, errors.New("chrome not found")
	}

	_, err := p.Run(context.Background(), Job{ID: "j", Keyword: "k"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start browser")
}

func TestRunArchivesArticle(t *testing.T) {
	f := newFixture(t, results()...)
	archive := &mockArchive{}
	archive.On("SaveArticle", mock.Anything, mock.MatchedBy(func(r *storage.ArticleRecord) bool {
		return r.JobID == "job-7" && r.Keyword == "observability tooling" && r.WordCount == 5
	})).Return(nil).Once()

	_, err := f.pipeline(archive).Run(context.Background(), Job{ID: "job-7", Keyword: "observability tooling"}, nil)
	require.NoError(t, err)
	archive.AssertExpectations(t)
}

func TestRunArchiveFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, results()...)
	archive := &mockArchive{}
	archive.On("SaveArticle", mock.Anything, mock.Anything).Return(errors.New("datastore unavailable"))

	result, err := f.pipeline(archive).Run(context.Background(), Job{ID: "j", Keyword: "k"}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, result.ArticlePath)
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t, results()...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.pipeline(nil).Run(ctx, Job{ID: "j", Keyword: "k"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunIsolatesJobArtifacts(t *testing.T) {
	f := newFixture(t, results()...)
	p := f.pipeline(nil)

	_, err := p.Run(context.Background(), Job{ID: "first", Keyword: "k"}, nil)
	require.NoError(t, err)

	stray := filepath.Join(f.store.JobDir("first"), "page_9_content.txt")
	require.NoError(t, os.WriteFile(stray, []byte("other job"), 0o644))

	second := browsertest.NewSession(results()[:1]...)
	p.browsers = second.Factory()
	_, err = p.Run(context.Background(), Job{ID: "second", Keyword: "k2"}, nil)
	require.NoError(t, err)

	last := f.llm.summaries[len(f.llm.summaries)-1]
	assert.Contains(t, last, "alpha")
	assert.NotContains(t, last, "other job")
}
