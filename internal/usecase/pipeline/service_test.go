package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/docuchat/docuchat/internal/chunker"
	"github.com/docuchat/docuchat/internal/domain"
	"github.com/docuchat/docuchat/internal/embedding/hash"
)

// --- Mocks ---

type mockDocs struct {
	files   map[string]string
	saved   map[string]string
	readErr error
}

func (m *mockDocs) Save(_ context.Context, filename string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if m.saved == nil {
		m.saved = map[string]string{}
	}
	m.saved[filename] = string(data)
	return nil
}

func (m *mockDocs) Exists(filename string) bool {
	_, ok := m.files[filename]
	return ok
}

func (m *mockDocs) ReadText(_ context.Context, filename string) (string, error) {
	if m.readErr != nil {
		return "", m.readErr
	}
	return m.files[filename], nil
}

type mockCollections struct {
	active     string
	activeErr  error
	hits       []domain.Hit
	queryErr   error
	rebuilt    [][]string
	rebuildErr error
	queryK     int
}

func (m *mockCollections) Rebuild(_ context.Context, chunks []string, vectors [][]float32) (string, error) {
	if m.rebuildErr != nil {
		return "", m.rebuildErr
	}
	if len(chunks) != len(vectors) {
		return "", domain.ErrValidation
	}
	m.rebuilt = append(m.rebuilt, chunks)
	m.active = "pdf_1"
	return m.active, nil
}

func (m *mockCollections) Active(_ context.Context) (string, error) {
	if m.activeErr != nil {
		return "", m.activeErr
	}
	if m.active == "" {
		return "", domain.ErrNotIndexed
	}
	return m.active, nil
}

func (m *mockCollections) Query(_ context.Context, _ string, _ []float32, k int) ([]domain.Hit, error) {
	m.queryK = k
	return m.hits, m.queryErr
}

type mockCompleter struct {
	text   string
	err    error
	prompt string
	temp   float32
	calls  int
}

func (m *mockCompleter) Complete(_ context.Context, req domain.CompletionRequest) (domain.CompletionResult, error) {
	m.calls++
	m.prompt = req.Prompt
	m.temp = req.Temperature
	if m.err != nil {
		return domain.CompletionResult{}, m.err
	}
	return domain.CompletionResult{Text: m.text}, nil
}

func newTestService(t *testing.T, docs *mockDocs, cols *mockCollections, comp *mockCompleter) *Service {
	t.Helper()
	sp, err := chunker.New(1000, 200)
	if err != nil {
		t.Fatal(err)
	}
	return New(docs, sp, hash.New(), cols, comp, domain.DefaultPipelineConfig())
}

// --- Tests ---

func TestIngest(t *testing.T) {
	docs := &mockDocs{}
	svc := newTestService(t, docs, &mockCollections{}, &mockCompleter{})

	if err := svc.Ingest(context.Background(), "a.pdf", strings.NewReader("%PDF")); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if docs.saved["a.pdf"] != "%PDF" {
		t.Errorf("unexpected saved content %q", docs.saved["a.pdf"])
	}
}

func TestIngest_EmptyName(t *testing.T) {
	svc := newTestService(t, &mockDocs{}, &mockCollections{}, &mockCompleter{})

	err := svc.Ingest(context.Background(), " ", strings.NewReader("x"))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestIndex_MissingFile(t *testing.T) {
	cols := &mockCollections{}
	svc := newTestService(t, &mockDocs{}, cols, &mockCompleter{})

	_, err := svc.Index(context.Background(), "missing.pdf")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var nf *domain.FileNotFoundError
	if !errors.As(err, &nf) || nf.Filename != "missing.pdf" {
		t.Errorf("expected FileNotFoundError for missing.pdf, got %v", err)
	}
	if len(cols.rebuilt) != 0 {
		t.Error("missing file must not touch the vector store")
	}
}

func TestIndex_ReturnsChunkCount(t *testing.T) {
	text := strings.Repeat("word ", 500) // 2500 runes
	docs := &mockDocs{files: map[string]string{"doc.pdf": text}}
	cols := &mockCollections{}
	svc := newTestService(t, docs, cols, &mockCompleter{})

	n, err := svc.Index(context.Background(), "doc.pdf")
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 chunks, got %d", n)
	}
	if len(cols.rebuilt) != 1 || len(cols.rebuilt[0]) != n {
		t.Errorf("expected one rebuild with %d chunks, got %v", n, cols.rebuilt)
	}
}

func TestIndex_EmptyText(t *testing.T) {
	docs := &mockDocs{files: map[string]string{"scan.pdf": ""}}
	cols := &mockCollections{}
	svc := newTestService(t, docs, cols, &mockCompleter{})

	n, err := svc.Index(context.Background(), "scan.pdf")
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if n != 0 || len(cols.rebuilt) != 1 {
		t.Errorf("expected an empty rebuild, got n=%d rebuilt=%v", n, cols.rebuilt)
	}
}

func TestIndex_ExtractionError(t *testing.T) {
	docs := &mockDocs{files: map[string]string{"bad.pdf": ""}, readErr: domain.ErrExtraction}
	svc := newTestService(t, docs, &mockCollections{}, &mockCompleter{})

	_, err := svc.Index(context.Background(), "bad.pdf")
	if !errors.Is(err, domain.ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
}

func TestAsk_BeforeIndex(t *testing.T) {
	comp := &mockCompleter{}
	svc := newTestService(t, &mockDocs{}, &mockCollections{}, comp)

	_, err := svc.Ask(context.Background(), "What?")
	if !errors.Is(err, domain.ErrNotIndexed) {
		t.Fatalf("expected ErrNotIndexed, got %v", err)
	}
	if comp.calls != 0 {
		t.Error("completer must not be called before indexing")
	}
}

func TestAsk_EmptyQuestion(t *testing.T) {
	svc := newTestService(t, &mockDocs{}, &mockCollections{active: "pdf_1"}, &mockCompleter{})

	_, err := svc.Ask(context.Background(), "   ")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestAsk_StuffsContext(t *testing.T) {
	cols := &mockCollections{active: "pdf_1", hits: []domain.Hit{
		{Text: "The sky is blue."},
		{Text: "Grass is green."},
	}}
	comp := &mockCompleter{text: " Blue. "}
	svc := newTestService(t, &mockDocs{}, cols, comp)

	answer, err := svc.Ask(context.Background(), "What color is the sky?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer != "Blue." {
		t.Errorf("expected trimmed answer, got %q", answer)
	}
	if cols.queryK != 4 {
		t.Errorf("expected k=4, got %d", cols.queryK)
	}
	if comp.temp != 0 {
		t.Errorf("expected temperature 0, got %v", comp.temp)
	}
	if !strings.Contains(comp.prompt, "The sky is blue.\n\nGrass is green.") {
		t.Errorf("context not joined by blank lines:\n%s", comp.prompt)
	}
	if !strings.HasSuffix(comp.prompt, "Question: What color is the sky?\nHelpful Answer:") {
		t.Errorf("unexpected prompt tail:\n%s", comp.prompt)
	}
}

func TestAsk_CorruptedPassesThrough(t *testing.T) {
	cols := &mockCollections{active: "pdf_1", queryErr: domain.ErrCorrupted}
	svc := newTestService(t, &mockDocs{}, cols, &mockCompleter{})

	_, err := svc.Ask(context.Background(), "q")
	if !errors.Is(err, domain.ErrCorrupted) {
		t.Fatalf("expected ErrCorrupted, got %v", err)
	}
}

func TestAsk_CompletionFailure(t *testing.T) {
	cols := &mockCollections{active: "pdf_1"}
	comp := &mockCompleter{err: errors.New("rate limited")}
	svc := newTestService(t, &mockDocs{}, cols, comp)

	_, err := svc.Ask(context.Background(), "q")
	if !errors.Is(err, domain.ErrCompletionProvider) {
		t.Fatalf("expected ErrCompletionProvider, got %v", err)
	}
	if comp.calls != 1 {
		t.Errorf("completion must not be retried, got %d calls", comp.calls)
	}
}

func TestBuildPrompt_NoHits(t *testing.T) {
	p := BuildPrompt("q", nil)
	if !strings.Contains(p, "make up an answer.\n\n\n\nQuestion: q") {
		t.Errorf("unexpected prompt %q", p)
	}
}
