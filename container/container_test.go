package container

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Nexora-Open-Source/blog-generator-backend/browser/browsertest"
	"github.com/Nexora-Open-Source/blog-generator-backend/jobs"
	"github.com/Nexora-Open-Source/blog-generator-backend/scraper"
	"github.com/Nexora-Open-Source/blog-generator-backend/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedLLM struct{}

func (fixedLLM) Complete(_ context.Context, operation, _, _ string) (string, error) {
	if operation == "summary" {
		return "summary of the pages", nil
	}
	return "# Container Article\n\nBody.", nil
}

func testSettings(t *testing.T, session *browsertest.Session) Settings {
	root := t.TempDir()
	return Settings{
		ContentDir:     filepath.Join(root, "files"),
		ArticleDir:     filepath.Join(root, "blogs"),
		Scraper:        scraper.Config{SearchURL: browsertest.HomeURL, MaxResults: 2, MaxRetries: 1},
		BatchSize:      10,
		BrandName:      "Acme",
		Jobs:           jobs.Config{Workers: 1, QueueSize: 2, SubmitTimeout: time.Second},
		Browsers:       session.Factory(),
		TextGeneration: fixedLLM{},
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestGetUnknownService(t *testing.T) {
	c := NewContainer()
	_, err := c.Get("missing")
	assert.EqualError(t, err, "service missing not found")
}

func TestRegisterAndTypedGet(t *testing.T) {
	c := NewContainer()
	logger := quietLogger()
	c.Register(ServiceLogger, logger)

	got, err := c.GetLogger()
	require.NoError(t, err)
	assert.Same(t, logger, got)

	c.Register(ServiceFileStore, "not a store")
	_, err = c.GetFileStore()
	assert.EqualError(t, err, "file_store service is not of expected type")
}

func TestFactoryErrorIsWrapped(t *testing.T) {
	c := NewContainer()
	c.RegisterFactory("broken", func() (interface{}, error) {
		return nil, errors.New("boom")
	})

	_, err := c.Get("broken")
	assert.EqualError(t, err, "failed to create service broken: boom")
}

func TestInitializeServices(t *testing.T) {
	c := NewContainer()
	session := browsertest.NewSession()
	require.NoError(t, c.InitializeServices(testSettings(t, session), quietLogger()))
	defer c.Close()

	_, err := c.GetFileStore()
	assert.NoError(t, err)
	_, err = c.GetTextGeneration()
	assert.NoError(t, err)
	_, err = c.GetJobStore()
	assert.NoError(t, err)
	_, err = c.GetHandler()
	assert.NoError(t, err)
	_, err = c.GetHealthHandler()
	assert.NoError(t, err)

	// Archiving is disabled without a project id.
	_, err = c.GetArchive()
	assert.Error(t, err)
}

func TestInitializeServicesRequiresCredentials(t *testing.T) {
	settings := testSettings(t, browsertest.NewSession())
	settings.TextGeneration = nil

	err := NewContainer().InitializeServices(settings, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create text generation client")
}

func TestWiredJobRunsEndToEnd(t *testing.T) {
	session := browsertest.NewSession(
		browsertest.Result{Title: "One", URL: "https://one.example/", Paragraphs: []string{"alpha"}},
		browsertest.Result{Title: "Two", URL: "https://two.example/", Paragraphs: []string{"beta"}},
	)
	c := NewContainer()
	require.NoError(t, c.InitializeServices(testSettings(t, session), quietLogger()))
	defer c.Close()

	coordinator, err := c.GetCoordinator()
	require.NoError(t, err)

	jobID, err := coordinator.Submit("container wiring")
	require.NoError(t, err)

	var status types.JobStatus
	require.Eventually(t, func() bool {
		status, _ = coordinator.Status(jobID)
		return status.IsTerminal()
	}, 10*time.Second, 10*time.Millisecond)

	assert.Equal(t, types.StatusCompleted, status.Status, status.Error)
	assert.Equal(t, "# Container Article\n\nBody.", status.Result)
	assert.Equal(t, 1, session.Closed())
}

func TestCloseStopsCoordinator(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.InitializeServices(testSettings(t, browsertest.NewSession()), quietLogger()))
	require.NoError(t, c.Close())

	coordinator, err := c.GetCoordinator()
	require.NoError(t, err)
	_, err = coordinator.Submit("after close")
	assert.ErrorIs(t, err, jobs.ErrStopped)
}
