package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/Nexora-Open-Source/blog-generator-backend/llm"
	"github.com/Nexora-Open-Source/blog-generator-backend/loader"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) Complete(ctx context.Context, operation, system, user string) (string, error) {
	args := m.Called(ctx, operation, system, user)
	return args.String(0), args.Error(1)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func makeDocs(n int) []loader.Document {
	docs := make([]loader.Document, n)
	for i := range docs {
		docs[i] = loader.Document{Source: fmt.Sprintf("page_%d_content.txt", i+1), Content: fmt.Sprintf("doc %d", i+1)}
	}
	return docs
}

func TestBatchSize(t *testing.T) {
	assert.Equal(t, 10, BatchSize(DefaultTokenBudget, DefaultAvgTokensPerDocument))
	assert.Equal(t, 1, BatchSize(100, 300))
	assert.Equal(t, 1, BatchSize(3000, 0))
	assert.Equal(t, 3, BatchSize(1000, 300))
}

func TestBatchesPartitionInOrder(t *testing.T) {
	batches := Batches(makeDocs(25), 10)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 10)
	assert.Len(t, batches[1], 10)
	assert.Len(t, batches[2], 5)
	assert.Equal(t, "doc 11", batches[1][0].Content)
	assert.Equal(t, "doc 25", batches[2][4].Content)

	assert.Empty(t, Batches(nil, 10))
}

func TestSummarizeJoinsBatchSummaries(t *testing.T) {
	client := &mockClient{}
	client.On("Complete", mock.Anything, "summary", summaryInstruction, mock.MatchedBy(func(user string) bool {
		return strings.HasPrefix(user, "doc 1\n\ndoc 2")
	})).Return("first half", nil).Once()
	client.On("Complete", mock.Anything, "summary", summaryInstruction, "doc 3").Return(" second half ", nil).Once()

	s := NewSummarizer(client, 2, quietLogger())
	summary, err := s.Summarize(context.Background(), makeDocs(3))
	require.NoError(t, err)
	assert.Equal(t, "first half\n\nsecond half", summary)
	client.AssertExpectations(t)
}

func TestSummarizeNoDocuments(t *testing.T) {
	client := &mockClient{}
	s := NewSummarizer(client, 10, quietLogger())

	_, err := s.Summarize(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoDocuments)
	client.AssertNotCalled(t, "Complete")
}

func TestSummarizeServiceError(t *testing.T) {
	client := &mockClient{}
	client.On("Complete", mock.Anything, "summary", mock.Anything, mock.Anything).Return("", errors.New("quota exceeded"))

	s := NewSummarizer(client, 10, quietLogger())
	_, err := s.Summarize(context.Background(), makeDocs(12))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch 1 of 2")
	assert.Contains(t, err.Error(), "quota exceeded")
	client.AssertNumberOfCalls(t, "Complete", 1)
}

func TestSummarizeAllBlank(t *testing.T) {
	client := &mockClient{}
	client.On("Complete", mock.Anything, "summary", mock.Anything, mock.Anything).Return("  \n", nil)

	s := NewSummarizer(client, 10, quietLogger())
	_, err := s.Summarize(context.Background(), makeDocs(3))
	assert.ErrorIs(t, err, ErrEmptySummary)
}

func TestSummarizeSkipsEmptyBatch(t *testing.T) {
	client := &mockClient{}
	client.On("Complete", mock.Anything, "summary", summaryInstruction, "doc 1").
		Return("", fmt.Errorf("summary: %w", llm.ErrEmptyResponse)).Once()
	client.On("Complete", mock.Anything, "summary", summaryInstruction, "doc 2").
		Return("kept", nil).Once()

	s := NewSummarizer(client, 1, quietLogger())
	summary, err := s.Summarize(context.Background(), makeDocs(2))
	require.NoError(t, err)
	assert.Equal(t, "kept", summary)
	client.AssertExpectations(t)
}

func TestSummarizeEveryBatchEmptyResponse(t *testing.T) {
	client := &mockClient{}
	client.On("Complete", mock.Anything, "summary", mock.Anything, mock.Anything).
		Return("", fmt.Errorf("summary: %w", llm.ErrEmptyResponse))

	s := NewSummarizer(client, 1, quietLogger())
	_, err := s.Summarize(context.Background(), makeDocs(3))
	assert.ErrorIs(t, err, ErrEmptySummary)
	client.AssertNumberOfCalls(t, "Complete", 3)
}

func TestArticleGeneratorPrompt(t *testing.T) {
	client := &mockClient{}
	client.On("Complete", mock.Anything, "article", mock.MatchedBy(func(system string) bool {
		return strings.Contains(system, "Acme Cloud") &&
			strings.Contains(system, "800 and 1200 words") &&
			strings.Contains(system, "markdown")
	}), "the summary").Return("# Title\n\nBody", nil)

	g := NewArticleGenerator(client, "Acme Cloud", quietLogger())
	article, err := g.Generate(context.Background(), "the summary")
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\nBody", article)
	client.AssertExpectations(t)
}

func TestArticleGeneratorDefaultBrand(t *testing.T) {
	g := NewArticleGenerator(&mockClient{}, " ", quietLogger())
	assert.Contains(t, g.instruction, DefaultBrand)
}

func TestArticleGeneratorFailures(t *testing.T) {
	client := &mockClient{}
	client.On("Complete", mock.Anything, "article", mock.Anything, "blank").Return("", nil)
	client.On("Complete", mock.Anything, "article", mock.Anything, "boom").Return("", errors.New("service down"))

	g := NewArticleGenerator(client, "", quietLogger())

	_, err := g.Generate(context.Background(), "blank")
	assert.ErrorIs(t, err, llm.ErrEmptyResponse)

	_, err = g.Generate(context.Background(), "boom")
	assert.EqualError(t, err, "service down")
}
