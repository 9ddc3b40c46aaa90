package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kirillkom/car-knowledge-assistant/internal/core/domain"
	"github.com/kirillkom/car-knowledge-assistant/internal/core/ports"
)

// Gateway decides whether a raw user question may reach retrieval.
// Any classifier failure blocks the query.
type Gateway struct {
	classifier ports.RelevanceClassifier
	simplifier ports.LexicalSimplifier
	policy     domain.GatewayPolicy
	blockSet   map[string]struct{}
}

func NewGateway(
	classifier ports.RelevanceClassifier,
	simplifier ports.LexicalSimplifier,
	policy domain.GatewayPolicy,
) *Gateway {
	def := domain.DefaultGatewayPolicy()
	if len(policy.Labels) == 0 {
		policy.Labels = def.Labels
	}
	if len(policy.BlockLabels) == 0 {
		policy.BlockLabels = def.BlockLabels
	}

	blockSet := make(map[string]struct{}, len(policy.BlockLabels))
	for _, label := range policy.BlockLabels {
		blockSet[normalizeLabel(label)] = struct{}{}
	}
	return &Gateway{
		classifier: classifier,
		simplifier: simplifier,
		policy:     policy,
		blockSet:   blockSet,
	}
}

func (g *Gateway) Evaluate(ctx context.Context, rawQuery string) domain.GatewayDecision {
	cleaned := Normalize(rawQuery)
	if cleaned == "" {
		return block("", domain.ReasonEmptyQuery)
	}

	labels, err := g.classifier.Classify(ctx, cleaned, g.policy.Labels)
	if err != nil {
		slog.Warn("gateway_classifier_failed", "error", err)
		return block(cleaned, domain.ReasonClassificationUnavailable)
	}
	if len(labels) == 0 {
		slog.Warn("gateway_classifier_empty_ranking")
		return block(cleaned, domain.ReasonClassificationUnavailable)
	}

	top := labels[0]
	if _, blocked := g.blockSet[normalizeLabel(top.Label)]; blocked {
		return block(cleaned, domain.ReasonIrrelevantQuery)
	}
	if g.policy.MinConfidence > 0 && top.Score < g.policy.MinConfidence {
		return block(cleaned, domain.ReasonLowConfidence)
	}

	simplified, err := g.simplifier.Simplify(ctx, cleaned)
	if err != nil {
		slog.Warn("gateway_simplifier_failed", "error", err)
		return pass(cleaned, domain.ReasonClean)
	}
	simplified = strings.TrimSpace(simplified)
	if simplified == "" {
		// Questions made only of stop words still carry the cleaned text.
		return pass(cleaned, domain.ReasonClean)
	}
	return pass(simplified, domain.ReasonCleanSimplified)
}

func (g *Gateway) Policy() domain.GatewayPolicy {
	return g.policy
}

func block(cleaned, reason string) domain.GatewayDecision {
	return domain.GatewayDecision{Action: domain.ActionBlock, CleanedText: cleaned, Reason: reason}
}

func pass(cleaned, reason string) domain.GatewayDecision {
	return domain.GatewayDecision{Action: domain.ActionPass, CleanedText: cleaned, Reason: reason}
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
