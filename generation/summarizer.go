// Package generation turns loaded documents into a summary and the summary
// into a brand-aligned article.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Nexora-Open-Source/blog-generator-backend/llm"
	"github.com/Nexora-Open-Source/blog-generator-backend/loader"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultTokenBudget is the per-request token budget for summarization
	DefaultTokenBudget = 3000
	// DefaultAvgTokensPerDocument is the assumed size of one document
	DefaultAvgTokensPerDocument = 300

	documentSeparator = "\n\n"

	summaryInstruction = "You combine documents into one summary. " +
		"Combine the following documents into one concise, consolidated summary. " +
		"Keep the key facts, figures and arguments, drop navigation text and repetition, " +
		"and answer with the summary only."
)

var (
	// ErrNoDocuments is returned when there is nothing to summarize.
	ErrNoDocuments = errors.New("no documents to summarize")
	// ErrEmptySummary is returned when every batch produced a blank summary.
	ErrEmptySummary = errors.New("summary is empty")
)

// BatchSize returns how many documents fit in one request, at least one
func BatchSize(tokenBudget, avgTokensPerDocument int) int {
	if avgTokensPerDocument <= 0 {
		return 1
	}
	return max(tokenBudget/avgTokensPerDocument, 1)
}

// Batches splits docs into consecutive groups of at most size documents
func Batches(docs []loader.Document, size int) [][]loader.Document {
	if size < 1 {
		size = 1
	}
	var batches [][]loader.Document
	for start := 0; start < len(docs); start += size {
		end := min(start+size, len(docs))
		batches = append(batches, docs[start:end])
	}
	return batches
}

// Summarizer condenses documents batch by batch
type Summarizer struct {
	client    llm.Client
	batchSize int
	logger    *logrus.Logger
}

// NewSummarizer creates a Summarizer sending batchSize documents per request
func NewSummarizer(client llm.Client, batchSize int, logger *logrus.Logger) *Summarizer {
	return &Summarizer{
		client:    client,
		batchSize: max(batchSize, 1),
		logger:    logger,
	}
}

// Summarize returns the batch summaries joined in batch order
func (s *Summarizer) Summarize(ctx context.Context, docs []loader.Document) (string, error) {
	if len(docs) == 0 {
		return "", ErrNoDocuments
	}

	batches := Batches(docs, s.batchSize)
	summaries := make([]string, 0, len(batches))

	for i, batch := range batches {
		contents := make([]string, len(batch))
		for j, doc := range batch {
			contents[j] = doc.Content
		}

		summary, err := s.client.Complete(ctx, "summary", summaryInstruction, strings.Join(contents, documentSeparator))
		if errors.Is(err, llm.ErrEmptyResponse) {
			s.logger.WithFields(logrus.Fields{
				"batch":   i + 1,
				"batches": len(batches),
			}).Warn("Skipping batch with empty summary")
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to summarize batch %d of %d: %w", i+1, len(batches), err)
		}

		if summary = strings.TrimSpace(summary); summary != "" {
			summaries = append(summaries, summary)
		}
	}

	if len(summaries) == 0 {
		return "", ErrEmptySummary
	}

	s.logger.WithFields(logrus.Fields{
		"documents": len(docs),
		"batches":   len(batches),
	}).Info("Summarized documents")

	return strings.Join(summaries, documentSeparator), nil
}
