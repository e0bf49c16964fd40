package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/Nexora-Open-Source/blog-generator-backend/llm"
	"github.com/Nexora-Open-Source/blog-generator-backend/utils"
	"github.com/sirupsen/logrus"
)

// DefaultBrand is the brand articles are written for
const DefaultBrand = "Upcore Technologies"

const articleInstructionTemplate = `You are an expert content writer for %[1]s. Write a blog post from the summary provided by the user. The post must:
1. Start with a catchy, SEO-friendly title.
2. Have an engaging introduction, 3-4 main points with subheadings, and a conclusion.
3. Mention %[1]s naturally where relevant.
4. Use a professional yet conversational tone.
5. Be between 800 and 1200 words.
6. Be formatted in markdown.
7. Be fact-checked and must not mention or promote other companies.`

// ArticleGenerator writes a blog post from a summary
type ArticleGenerator struct {
	client      llm.Client
	instruction string
	logger      *logrus.Logger
}

// NewArticleGenerator creates an ArticleGenerator for brand
func NewArticleGenerator(client llm.Client, brand string, logger *logrus.Logger) *ArticleGenerator {
	if strings.TrimSpace(brand) == "" {
		brand = DefaultBrand
	}
	return &ArticleGenerator{
		client:      client,
		instruction: fmt.Sprintf(articleInstructionTemplate, brand),
		logger:      logger,
	}
}

// Generate returns the article text for summary
func (g *ArticleGenerator) Generate(ctx context.Context, summary string) (string, error) {
	article, err := g.client.Complete(ctx, "article", g.instruction, summary)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(article) == "" {
		return "", llm.ErrEmptyResponse
	}

	g.logger.WithField("word_count", utils.CountWords(article)).Info("Generated article")
	return article, nil
}
