package usecase

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/kirillkom/car-knowledge-assistant/internal/core/domain"
)

const DefaultPromptTemplate = `You are a helpful Volkswagen car assistant.
Use the following context to answer the user question.
If the answer is not in the context, say you don't know.

Context: {{.Context}}
Question: {{.Question}}
Answer:
`

type PromptTemplate struct {
	tmpl *template.Template
}

type promptData struct {
	Context  string
	Question string
}

func NewPromptTemplate(text string) (*PromptTemplate, error) {
	if strings.TrimSpace(text) == "" {
		text = DefaultPromptTemplate
	}
	tmpl, err := template.New("answer").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse prompt template", err)
	}
	return &PromptTemplate{tmpl: tmpl}, nil
}

func MustPromptTemplate(text string) *PromptTemplate {
	p, err := NewPromptTemplate(text)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *PromptTemplate) Render(question string, chunks []domain.RetrievedChunk) (string, error) {
	texts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		texts = append(texts, chunk.Text)
	}

	var b strings.Builder
	if err := p.tmpl.Execute(&b, promptData{
		Context:  strings.Join(texts, "\n\n"),
		Question: question,
	}); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return b.String(), nil
}
