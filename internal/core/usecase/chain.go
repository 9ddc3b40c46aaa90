package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/car-knowledge-assistant/internal/core/domain"
	"github.com/kirillkom/car-knowledge-assistant/internal/core/ports"
)

// Retriever is the read side of the retrieval index used by the chain.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]domain.RetrievedChunk, error)
}

// Chain stuffs retrieved context into the prompt template and asks the generator.
type Chain struct {
	retriever Retriever
	generator ports.AnswerGenerator
	prompt    *PromptTemplate
}

func NewChain(retriever Retriever, generator ports.AnswerGenerator, prompt *PromptTemplate) *Chain {
	if prompt == nil {
		prompt = MustPromptTemplate(DefaultPromptTemplate)
	}
	return &Chain{
		retriever: retriever,
		generator: generator,
		prompt:    prompt,
	}
}

func (c *Chain) Answer(ctx context.Context, question string, k int) (string, []domain.RetrievedChunk, error) {
	if c.generator == nil {
		return "", nil, domain.WrapError(domain.ErrNotInitialized, "answer", errors.New("answer generator is not configured"))
	}

	chunks, err := c.retriever.Search(ctx, question, k)
	if err != nil {
		return "", nil, err
	}

	prompt, err := c.prompt.Render(question, chunks)
	if err != nil {
		return "", nil, err
	}

	text, err := c.generator.Generate(ctx, prompt)
	if err != nil {
		if domain.IsKind(err, domain.ErrGeneration) {
			return "", nil, err
		}
		return "", nil, domain.WrapError(domain.ErrGeneration, fmt.Sprintf("generate answer (%s)", c.generator.Name()), err)
	}
	return strings.TrimSpace(text), chunks, nil
}

func (c *Chain) GeneratorName() string {
	if c.generator == nil {
		return ""
	}
	return c.generator.Name()
}
