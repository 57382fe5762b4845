package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/sitescout/internal/model"
)

// Narrator explains QA reports through a provider
type Narrator struct {
	provider Provider
	logger   *zap.Logger
}

// NewNarrator builds a narrator from config. It returns nil when the LLM is
// disabled so callers can skip narration entirely.
func NewNarrator(config Config, logger *zap.Logger) (*Narrator, error) {
	provider, err := NewProvider(config)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Narrator{provider: provider, logger: logger}, nil
}

// ProviderName returns the provider behind the narrator
func (n *Narrator) ProviderName() string {
	if n == nil || n.provider == nil {
		return ""
	}
	return n.provider.Name()
}

// Narrate returns a short plain-language explanation of report
func (n *Narrator) Narrate(ctx context.Context, report *model.QAReport) (string, error) {
	if n == nil || n.provider == nil {
		return "", fmt.Errorf("narrator disabled")
	}
	resp, err := n.provider.Summarize(ctx, SummarizeRequest{
		Report:       report,
		AllowedFiles: ReportFiles(report),
	})
	if err != nil {
		return "", err
	}
	n.logger.Debug("qa narrative generated",
		zap.String("provider", n.provider.Name()),
		zap.String("model", resp.Model),
		zap.Int("tokens", resp.TokensUsed))
	return resp.Summary, nil
}
