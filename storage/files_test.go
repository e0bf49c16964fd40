package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	root := t.TempDir()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewFileStore(filepath.Join(root, "files"), filepath.Join(root, "blogs"), logger), root
}

func TestSavePageLayout(t *testing.T) {
	store, _ := newTestStore(t)
	dir := store.JobDir("observability-tooling-1700000000000")

	path, err := store.SavePage(dir, 2, PageArtifact{
		Title:   "What is observability?",
		URL:     "https://example.com/o11y",
		Content: "First paragraph.\n\nSecond paragraph.",
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "page_2_content.txt"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"Title: What is observability?\n\nURL: https://example.com/o11y\n\nContent:\nFirst paragraph.\n\nSecond paragraph.",
		string(data))
}

func TestJobDirSanitizesID(t *testing.T) {
	store, root := newTestStore(t)
	assert.Equal(t, filepath.Join(root, "files", "abc"), store.JobDir(`a/b:c`))
	assert.Equal(t, filepath.Join(root, "files", "job"), store.JobDir(`??`))
}

func TestSaveArticleOverwritesSameKeyword(t *testing.T) {
	store, root := newTestStore(t)

	first, err := store.SaveArticle(`go: "generics"?`, "draft one")
	require.NoError(t, err)
	second, err := store.SaveArticle(`go: "generics"?`, "draft two")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, filepath.Join(root, "blogs", "go generics.txt"), first)

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, "draft two", string(data))
}

func TestCheckWritable(t *testing.T) {
	store, root := newTestStore(t)
	assert.NoError(t, store.CheckWritable())

	blocker := filepath.Join(root, "blocked")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	broken := NewFileStore(filepath.Join(blocker, "files"), filepath.Join(root, "blogs"), store.logger)
	assert.Error(t, broken.CheckWritable())
}
