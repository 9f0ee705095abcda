package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/docuchat/docuchat/internal/domain"
	"github.com/docuchat/docuchat/internal/logger"
)

const answerPrompt = "Use the following pieces of context to answer the question at the end. " +
	"If you don't know the answer, just say that you don't know, don't try to make up an answer.\n\n" +
	"%s\n\nQuestion: %s\nHelpful Answer:"

// Service runs upload, indexing and question answering.
type Service struct {
	docs        DocumentStore
	splitter    Splitter
	embed       domain.Embedder
	collections Collections
	completer   domain.Completer
	cfg         domain.PipelineConfig
}

// New creates a pipeline service.
func New(
	docs DocumentStore,
	splitter Splitter,
	embed domain.Embedder,
	collections Collections,
	completer domain.Completer,
	cfg domain.PipelineConfig,
) *Service {
	return &Service{
		docs:        docs,
		splitter:    splitter,
		embed:       embed,
		collections: collections,
		completer:   completer,
		cfg:         cfg,
	}
}

// Ingest stores an uploaded PDF under its base name, replacing any previous file.
func (s *Service) Ingest(ctx context.Context, filename string, r io.Reader) error {
	if strings.TrimSpace(filename) == "" {
		return fmt.Errorf("filename is required: %w", domain.ErrValidation)
	}
	if err := s.docs.Save(ctx, filename, r); err != nil {
		return fmt.Errorf("save %s: %w", filename, err)
	}
	return nil
}

// Index extracts, splits and embeds a stored PDF, then replaces the vector
// collection with its chunks. Returns the chunk count.
func (s *Service) Index(ctx context.Context, filename string) (int, error) {
	log := logger.FromContext(ctx)

	if !s.docs.Exists(filename) {
		return 0, domain.NewFileNotFound(filename)
	}

	text, err := s.docs.ReadText(ctx, filename)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", filename, err)
	}

	chunks := s.splitter.Split(text)

	var vectors [][]float32
	if len(chunks) > 0 {
		res, err := domain.EmbedAll(ctx, s.embed, chunks)
		if err != nil {
			return 0, fmt.Errorf("embed chunks: %w", err)
		}
		vectors = res.Embeddings
	}

	id, err := s.collections.Rebuild(ctx, chunks, vectors)
	if err != nil {
		return 0, fmt.Errorf("rebuild collection: %w", err)
	}

	log.Info("PDF indexed",
		zap.String("filename", filename),
		zap.String("collection", id),
		zap.Int("text_runes", len([]rune(text))),
		zap.Int("chunks", len(chunks)),
	)
	return len(chunks), nil
}

// Ask answers question from the k most similar chunks of the active collection.
func (s *Service) Ask(ctx context.Context, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", fmt.Errorf("question is required: %w", domain.ErrValidation)
	}

	id, err := s.collections.Active(ctx)
	if err != nil {
		return "", fmt.Errorf("active collection: %w", err)
	}

	emb, err := s.embed.Embed(ctx, question)
	if err != nil {
		return "", fmt.Errorf("embed question: %w", err)
	}

	hits, err := s.collections.Query(ctx, id, emb.Embedding, s.cfg.TopK)
	if err != nil {
		return "", fmt.Errorf("query %s: %w", id, err)
	}

	res, err := s.completer.Complete(ctx, domain.CompletionRequest{
		Prompt:      BuildPrompt(question, hits),
		Temperature: s.cfg.AnswerTemperature,
	})
	if err != nil {
		if !errors.Is(err, domain.ErrCompletionProvider) {
			err = fmt.Errorf("%w: %w", domain.ErrCompletionProvider, err)
		}
		return "", fmt.Errorf("complete: %w", err)
	}
	domain.UsageFromContext(ctx).AddCompletion(res.PromptTokens, res.CompletionTokens)

	logger.FromContext(ctx).Debug("Question answered",
		zap.String("collection", id),
		zap.Int("hits", len(hits)),
		zap.Int("prompt_tokens", res.PromptTokens),
		zap.Int("completion_tokens", res.CompletionTokens),
	)
	return strings.TrimSpace(res.Text), nil
}

// BuildPrompt stuffs the retrieved chunks, separated by blank lines, into the
// answer template.
func BuildPrompt(question string, hits []domain.Hit) string {
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = h.Text
	}
	return fmt.Sprintf(answerPrompt, strings.Join(parts, "\n\n"), question)
}
