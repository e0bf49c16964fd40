/*
Package pipeline runs the stages of one blog generation job.

A run opens a browser session, searches for the keyword, extracts the top
results into the job's content directory, loads them back, summarizes them,
writes the article and persists it. Each stage reports its progress label
before it starts, and the first failing stage ends the run.
*/
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Nexora-Open-Source/blog-generator-backend/browser"
	"github.com/Nexora-Open-Source/blog-generator-backend/loader"
	"github.com/Nexora-Open-Source/blog-generator-backend/monitoring"
	"github.com/Nexora-Open-Source/blog-generator-backend/scraper"
	"github.com/Nexora-Open-Source/blog-generator-backend/storage"
	"github.com/Nexora-Open-Source/blog-generator-backend/types"
	"github.com/Nexora-Open-Source/blog-generator-backend/utils"
	"github.com/sirupsen/logrus"
)

// Summarizer condenses documents into one summary
type Summarizer interface {
	Summarize(ctx context.Context, docs []loader.Document) (string, error)
}

// Writer produces an article from a summary
type Writer interface {
	Generate(ctx context.Context, summary string) (string, error)
}

// ArtifactStore persists page and article artifacts
type ArtifactStore interface {
	scraper.PageSaver
	JobDir(jobID string) string
	SaveArticle(keyword, content string) (string, error)
}

// Job identifies one run
type Job struct {
	ID      string
	Keyword string
}

// Result is the output of a successful run
type Result struct {
	Article     string
	ArticlePath string
	Pages       int
}

// ProgressFunc receives the label of each stage as it starts
type ProgressFunc func(label string)

// Pipeline wires the stage implementations together
type Pipeline struct {
	browsers   browser.Factory
	extractor  *scraper.Extractor
	loader     *loader.Loader
	summarizer Summarizer
	writer     Writer
	store      ArtifactStore
	archive    storage.Archive
	logger     *logrus.Logger
}

// Options holds the collaborators of a Pipeline. Archive is optional.
type Options struct {
	Browsers   browser.Factory
	Scraper    scraper.Config
	Summarizer Summarizer
	Writer     Writer
	Store      ArtifactStore
	Archive    storage.Archive
	Logger     *logrus.Logger
}

// New creates a Pipeline
func New(opts Options) *Pipeline {
	return &Pipeline{
		browsers:   opts.Browsers,
		extractor:  scraper.NewExtractor(opts.Scraper, opts.Store, opts.Logger),
		loader:     loader.New(opts.Logger),
		summarizer: opts.Summarizer,
		writer:     opts.Writer,
		store:      opts.Store,
		archive:    opts.Archive,
		logger:     opts.Logger,
	}
}

// Run executes every stage for job. The browser session it opens is closed
// exactly once, whichever stage ends the run.
func (p *Pipeline) Run(ctx context.Context, job Job, progress ProgressFunc) (Result, error) {
	if progress == nil {
		progress = func(string) {}
	}
	log := p.logger.WithFields(logrus.Fields{
		"job_id":  job.ID,
		"keyword": job.Keyword,
	})

	var (
		result    Result
		session   browser.Session
		closeOnce sync.Once
		available int
		report    scraper.Report
		docs      []loader.Document
		summary   string
	)
	jobDir := p.store.JobDir(job.ID)

	closeSession := func() {
		closeOnce.Do(func() {
			if session == nil {
				return
			}
			if err := session.Close(); err != nil {
				log.WithError(err).Warn("Failed to close browser session")
			}
		})
	}
	defer closeSession()

	stages := []struct {
		name  string
		label string
		run   func(ctx context.Context) error
	}{
		{"browser", types.ProgressBrowser, func(ctx context.Context) error {
			var err error
			if session, err = p.browsers(ctx); err != nil {
				return fmt.Errorf("failed to start browser: %w", err)
			}
			return nil
		}},
		{"search", types.ProgressSearching, func(ctx context.Context) error {
			var err error
			available, err = p.extractor.Search(ctx, session, job.Keyword)
			return err
		}},
		{"scrape", types.ProgressScraping, func(ctx context.Context) error {
			var err error
			report, err = p.extractor.ScrapeResults(ctx, session, jobDir, available)
			closeSession()
			result.Pages = report.Succeeded
			return err
		}},
		{"load", types.ProgressLoading, func(ctx context.Context) error {
			docs = p.loader.LoadDir(jobDir)
			return nil
		}},
		{"summarize", types.ProgressSummarizing, func(ctx context.Context) error {
			var err error
			if summary, err = p.summarizer.Summarize(ctx, docs); err != nil {
				return fmt.Errorf("failed to generate summary: %w", err)
			}
			return nil
		}},
		{"generate", types.ProgressGenerating, func(ctx context.Context) error {
			var err error
			if result.Article, err = p.writer.Generate(ctx, summary); err != nil {
				return fmt.Errorf("failed to generate blog post: %w", err)
			}
			return nil
		}},
		{"persist", types.ProgressSaving, func(ctx context.Context) error {
			var err error
			if result.ArticlePath, err = p.store.SaveArticle(job.Keyword, result.Article); err != nil {
				return fmt.Errorf("failed to save blog post: %w", err)
			}
			p.archiveArticle(ctx, job, result.Article, log)
			return nil
		}},
	}

	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		progress(stage.label)
		if err := p.runStage(ctx, job, stage.name, stage.run); err != nil {
			log.WithError(err).WithField("stage", stage.name).Error("Blog generation stage failed")
			return Result{}, err
		}
	}

	log.WithFields(logrus.Fields{
		"pages":      result.Pages,
		"path":       result.ArticlePath,
		"word_count": utils.CountWords(result.Article),
	}).Info("Blog generation pipeline completed")

	return result, nil
}

func (p *Pipeline) runStage(ctx context.Context, job Job, name string, fn func(context.Context) error) error {
	ctx, span := monitoring.CreateSpan(ctx, "pipeline."+name)
	defer span.End()
	monitoring.SetSpanAttributes(span, map[string]interface{}{
		"job.id":    job.ID,
		"job.stage": name,
	})

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "failed"
		monitoring.SetSpanError(span, err)
	}
	monitoring.RecordStage(name, status, duration.Seconds())

	p.logger.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"stage":    name,
		"status":   status,
		"duration": duration.String(),
	}).Debug("Pipeline stage finished")

	return err
}

// archiveArticle keeps a copy in the archive when one is configured. Failures
// do not fail the job.
func (p *Pipeline) archiveArticle(ctx context.Context, job Job, article string, log *logrus.Entry) {
	if p.archive == nil {
		return
	}

	start := time.Now()
	err := p.archive.SaveArticle(ctx, &storage.ArticleRecord{
		JobID:     job.ID,
		Keyword:   job.Keyword,
		Content:   article,
		WordCount: utils.CountWords(article),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		monitoring.RecordStage("archive", "failed", time.Since(start).Seconds())
		log.WithError(err).Warn("Failed to archive article")
		return
	}
	monitoring.RecordStage("archive", "success", time.Since(start).Seconds())
}
