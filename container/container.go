/*
Package container provides dependency injection capabilities for the blog generation backend.

This package implements a simple dependency injection container that helps manage
service dependencies and reduces tight coupling between components.
*/
package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Nexora-Open-Source/blog-generator-backend/browser"
	"github.com/Nexora-Open-Source/blog-generator-backend/generation"
	"github.com/Nexora-Open-Source/blog-generator-backend/handlers"
	"github.com/Nexora-Open-Source/blog-generator-backend/handlers/health"
	"github.com/Nexora-Open-Source/blog-generator-backend/jobs"
	"github.com/Nexora-Open-Source/blog-generator-backend/jobstore"
	"github.com/Nexora-Open-Source/blog-generator-backend/llm"
	"github.com/Nexora-Open-Source/blog-generator-backend/pipeline"
	"github.com/Nexora-Open-Source/blog-generator-backend/scraper"
	"github.com/Nexora-Open-Source/blog-generator-backend/storage"
	"github.com/sirupsen/logrus"
)

// Service names
const (
	ServiceLogger      = "logger"
	ServiceFileStore   = "file_store"
	ServiceArchive     = "archive"
	ServiceTextGen     = "text_generation"
	ServiceJobStore    = "job_store"
	ServiceCoordinator = "coordinator"
	ServiceHandler     = "handler"
	ServiceHealth      = "health"
)

// Settings carries the configuration the services are built from
type Settings struct {
	ProjectID    string
	ContentDir   string
	ArticleDir   string
	Scraper      scraper.Config
	Browser      browser.Options
	LLM          llm.Config
	BatchSize    int
	BrandName    string
	Jobs         jobs.Config
	JobRetention time.Duration

	// Browsers overrides the Chrome session factory. Used by tests.
	Browsers browser.Factory
	// TextGeneration overrides the OpenAI client. Used by tests.
	TextGeneration llm.Client
}

// Container holds all service dependencies
type Container struct {
	mu         sync.RWMutex
	services   map[string]interface{}
	factories  map[string]func() (interface{}, error)
	singletons map[string]interface{}
}

// NewContainer creates a new dependency injection container
func NewContainer() *Container {
	return &Container{
		services:   make(map[string]interface{}),
		factories:  make(map[string]func() (interface{}, error)),
		singletons: make(map[string]interface{}),
	}
}

// Register registers a service instance
func (c *Container) Register(name string, service interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[name] = service
}

// RegisterFactory registers a factory function for lazy service creation
func (c *Container) RegisterFactory(name string, factory func() (interface{}, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[name] = factory
}

// RegisterSingleton registers a singleton service
func (c *Container) RegisterSingleton(name string, service interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.singletons[name] = service
}

// Get retrieves a service by name
func (c *Container) Get(name string) (interface{}, error) {
	c.mu.RLock()
	service, isService := c.services[name]
	singleton, isSingleton := c.singletons[name]
	factory, hasFactory := c.factories[name]
	c.mu.RUnlock()

	switch {
	case isService:
		return service, nil
	case isSingleton:
		return singleton, nil
	case hasFactory:
		created, err := factory()
		if err != nil {
			return nil, fmt.Errorf("failed to create service %s: %w", name, err)
		}
		return created, nil
	}

	return nil, fmt.Errorf("service %s not found", name)
}

// getAs retrieves a service and asserts its type
func getAs[T any](c *Container, name string) (T, error) {
	var zero T
	service, err := c.Get(name)
	if err != nil {
		return zero, err
	}
	typed, ok := service.(T)
	if !ok {
		return zero, fmt.Errorf("%s service is not of expected type", name)
	}
	return typed, nil
}

// GetLogger retrieves the logger service
func (c *Container) GetLogger() (*logrus.Logger, error) {
	return getAs[*logrus.Logger](c, ServiceLogger)
}

// GetFileStore retrieves the artifact file store
func (c *Container) GetFileStore() (*storage.FileStore, error) {
	return getAs[*storage.FileStore](c, ServiceFileStore)
}

// GetArchive retrieves the Datastore article archive. It fails when archiving is disabled.
func (c *Container) GetArchive() (*storage.DatastoreArchive, error) {
	return getAs[*storage.DatastoreArchive](c, ServiceArchive)
}

// GetTextGeneration retrieves the text generation client
func (c *Container) GetTextGeneration() (llm.Client, error) {
	return getAs[llm.Client](c, ServiceTextGen)
}

// GetJobStore retrieves the job table
func (c *Container) GetJobStore() (*jobstore.MemoryStore, error) {
	return getAs[*jobstore.MemoryStore](c, ServiceJobStore)
}

// GetCoordinator retrieves the job coordinator
func (c *Container) GetCoordinator() (*jobs.Coordinator, error) {
	return getAs[*jobs.Coordinator](c, ServiceCoordinator)
}

// GetHandler retrieves the handler service
func (c *Container) GetHandler() (*handlers.Handler, error) {
	return getAs[*handlers.Handler](c, ServiceHandler)
}

// GetHealthHandler retrieves the health handler service
func (c *Container) GetHealthHandler() (*health.Handler, error) {
	return getAs[*health.Handler](c, ServiceHealth)
}

// InitializeServices initializes all core services with proper dependencies
func (c *Container) InitializeServices(settings Settings, logger *logrus.Logger) error {
	c.RegisterSingleton(ServiceLogger, logger)

	files := storage.NewFileStore(settings.ContentDir, settings.ArticleDir, logger)
	c.RegisterSingleton(ServiceFileStore, files)

	checks := []health.Check{
		health.ArtifactCheck(files.CheckWritable),
		health.TextGenerationCheck(settings.LLM.APIKey != "" || settings.TextGeneration != nil),
	}

	var archive storage.Archive
	if settings.ProjectID != "" {
		datastoreArchive, err := storage.NewDatastoreArchive(context.Background(), settings.ProjectID)
		if err != nil {
			return fmt.Errorf("failed to create Datastore client: %w", err)
		}
		logger.WithField("project_id", settings.ProjectID).Info("Datastore archive initialized successfully")
		c.RegisterSingleton(ServiceArchive, datastoreArchive)
		archive = datastoreArchive
		checks = append(checks, health.Check{Name: "datastore", Run: datastoreArchive.Ping})
	}

	textGen := settings.TextGeneration
	if textGen == nil {
		client, err := llm.NewOpenAIClient(settings.LLM, logger)
		if err != nil {
			return fmt.Errorf("failed to create text generation client: %w", err)
		}
		textGen = client
	}
	c.RegisterSingleton(ServiceTextGen, textGen)

	browsers := settings.Browsers
	if browsers == nil {
		browsers = browser.NewChromeFactory(settings.Browser, logger)
	}

	runner := pipeline.New(pipeline.Options{
		Browsers:   browsers,
		Scraper:    settings.Scraper,
		Summarizer: generation.NewSummarizer(textGen, settings.BatchSize, logger),
		Writer:     generation.NewArticleGenerator(textGen, settings.BrandName, logger),
		Store:      files,
		Archive:    archive,
		Logger:     logger,
	})

	store := jobstore.NewMemoryStore(settings.JobRetention, logger)
	c.RegisterSingleton(ServiceJobStore, store)

	coordinator := jobs.NewCoordinator(settings.Jobs, store, runner, logger)
	c.RegisterSingleton(ServiceCoordinator, coordinator)

	// Register handler factories that depend on other services
	c.RegisterFactory(ServiceHandler, func() (interface{}, error) {
		return handlers.NewHandler(coordinator, logger), nil
	})
	c.RegisterFactory(ServiceHealth, func() (interface{}, error) {
		return health.NewHandler(logger, checks...), nil
	})

	return nil
}

// Close stops the coordinator, cancelling any job still running, and closes
// all service connections
func (c *Container) Close() error {
	var errs []error

	if coordinator, err := c.GetCoordinator(); err == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		coordinator.Stop(ctx)
	}

	if store, err := c.GetJobStore(); err == nil {
		store.Close()
	}

	if archive, err := c.GetArchive(); err == nil {
		if err := archive.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close datastore client: %w", err))
		}
	}

	return errors.Join(errs...)
}
