// Package loader reads extracted page artifacts back as documents.
package loader

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Document is the full text of one artifact file
type Document struct {
	Source  string
	Content string
}

// Loader reads artifact files. Unreadable inputs are logged and skipped.
type Loader struct {
	logger *logrus.Logger
}

// New creates a Loader
func New(logger *logrus.Logger) *Loader {
	return &Loader{logger: logger}
}

// ListFiles returns every regular file below dir. A missing or unreadable
// directory yields no files.
func (l *Loader) ListFiles(dir string) []string {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			l.logger.WithError(err).WithField("path", path).Warn("Skipping unreadable path")
			if d == nil || d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		l.logger.WithError(err).WithField("dir", dir).Warn("Failed to walk content directory")
	}

	return files
}

// LoadFiles reads each path into a Document, skipping missing, empty and
// unreadable files.
func (l *Loader) LoadFiles(paths []string) []Document {
	docs := make([]Document, 0, len(paths))

	for _, path := range paths {
		log := l.logger.WithField("path", path)

		info, err := os.Stat(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Warn("File does not exist")
			continue
		case err != nil:
			log.WithError(err).Warn("Failed to stat file")
			continue
		case info.IsDir():
			log.Warn("Path is a directory")
			continue
		case info.Size() == 0:
			log.Warn("File is empty")
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			log.WithError(err).Warn("Failed to read file")
			continue
		}

		docs = append(docs, Document{Source: path, Content: string(data)})
	}

	l.logger.WithFields(logrus.Fields{
		"requested": len(paths),
		"loaded":    len(docs),
	}).Info("Loaded documents")

	return docs
}

// LoadDir loads every file below dir
func (l *Loader) LoadDir(dir string) []Document {
	return l.LoadFiles(l.ListFiles(dir))
}
