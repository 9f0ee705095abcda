package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/docuchat/docuchat/internal/domain"
	"github.com/docuchat/docuchat/internal/logger"
)

const pointsPrompt = "Read the following document and extract the most important points as concise bullet points. " +
	"Be specific and cover the main ideas, facts, or steps. " +
	"Return only the bullet points, one per line, no introduction or conclusion.\n\n%s"

// bulletChars are stripped from the start of each returned line.
const bulletChars = "-*• \t"

// Service extracts key points from a stored PDF with one completion call.
// It does not touch the vector store.
type Service struct {
	docs      TextReader
	completer domain.Completer
	cfg       domain.PipelineConfig
}

// New creates a summary service.
func New(docs TextReader, completer domain.Completer, cfg domain.PipelineConfig) *Service {
	return &Service{docs: docs, completer: completer, cfg: cfg}
}

// ExtractPoints returns the document's key points in the order the model gave them.
func (s *Service) ExtractPoints(ctx context.Context, filename string) ([]string, error) {
	if !s.docs.Exists(filename) {
		return nil, domain.NewFileNotFound(filename)
	}

	text, err := s.docs.ReadText(ctx, filename)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}

	res, err := s.completer.Complete(ctx, domain.CompletionRequest{
		Prompt:      BuildPrompt(text, s.cfg.SummaryMaxChars),
		Temperature: s.cfg.SummaryTemperature,
		MaxTokens:   s.cfg.SummaryMaxTokens,
	})
	if err != nil {
		if !errors.Is(err, domain.ErrCompletionProvider) {
			err = fmt.Errorf("%w: %w", domain.ErrCompletionProvider, err)
		}
		return nil, fmt.Errorf("complete: %w", err)
	}
	domain.UsageFromContext(ctx).AddCompletion(res.PromptTokens, res.CompletionTokens)

	points := ParsePoints(res.Text)
	logger.FromContext(ctx).Debug("Points extracted",
		zap.String("filename", filename),
		zap.Int("points", len(points)),
	)
	return points, nil
}

// BuildPrompt embeds the first maxRunes runes of text in the extraction
// instruction. maxRunes <= 0 disables truncation.
func BuildPrompt(text string, maxRunes int) string {
	if maxRunes > 0 {
		if r := []rune(text); len(r) > maxRunes {
			text = string(r[:maxRunes])
		}
	}
	return fmt.Sprintf(pointsPrompt, text)
}

// ParsePoints splits a completion into lines, strips bullet markers and drops
// blank lines.
func ParsePoints(completion string) []string {
	points := []string{}
	for _, line := range strings.Split(completion, "\n") {
		p := strings.TrimSpace(strings.TrimLeft(line, bulletChars))
		if p != "" {
			points = append(points, p)
		}
	}
	return points
}
