// Package storage persists the artifacts produced by a blog generation job.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Nexora-Open-Source/blog-generator-backend/utils"
	"github.com/sirupsen/logrus"
)

// PageArtifact is the extracted content of one search result page
type PageArtifact struct {
	Title   string
	URL     string
	Content string
}

// String renders the artifact in its on-disk layout
func (p PageArtifact) String() string {
	return fmt.Sprintf("Title: %s\n\nURL: %s\n\nContent:\n%s", p.Title, p.URL, p.Content)
}

// PageFileName returns the artifact file name for the 1-based result index
func PageFileName(index int) string {
	return fmt.Sprintf("page_%d_content.txt", index)
}

// FileStore writes page and article artifacts below two root directories
type FileStore struct {
	contentDir string
	articleDir string
	logger     *logrus.Logger
}

// NewFileStore creates a FileStore. Directories are created on first write.
func NewFileStore(contentDir, articleDir string, logger *logrus.Logger) *FileStore {
	return &FileStore{
		contentDir: contentDir,
		articleDir: articleDir,
		logger:     logger,
	}
}

// JobDir returns the directory holding the page artifacts of one job
func (s *FileStore) JobDir(jobID string) string {
	name := strings.TrimSpace(utils.SanitizeFilename(jobID))
	if name == "" {
		name = "job"
	}
	return filepath.Join(s.contentDir, name)
}

// SavePage writes page as page_<index>_content.txt inside dir
func (s *FileStore) SavePage(dir string, index int, page PageArtifact) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create content directory: %w", err)
	}

	path := filepath.Join(dir, utils.SanitizeFilename(PageFileName(index)))
	if err := os.WriteFile(path, []byte(page.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write page artifact: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"path":  path,
		"index": index,
		"url":   page.URL,
	}).Debug("Saved page artifact")

	return path, nil
}

// SaveArticle writes content as <keyword>.txt in the article directory,
// replacing any earlier article for the same keyword.
func (s *FileStore) SaveArticle(keyword, content string) (string, error) {
	if err := os.MkdirAll(s.articleDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create article directory: %w", err)
	}

	name := strings.TrimSpace(utils.SanitizeFilename(keyword))
	if name == "" {
		name = "article"
	}

	path := filepath.Join(s.articleDir, name+".txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write article: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"path":       path,
		"word_count": utils.CountWords(content),
	}).Info("Saved article")

	return path, nil
}

// CheckWritable verifies that both artifact roots can be written to
func (s *FileStore) CheckWritable() error {
	var errs []error
	for _, dir := range []string{s.contentDir, s.articleDir} {
		if err := checkDirWritable(dir); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", dir, err))
		}
	}
	return errors.Join(errs...)
}

func checkDirWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return err
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(name)
}
