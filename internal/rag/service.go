// Package rag implements the retrieval-augmented generation service: texts
// are embedded into a [vectorstore.Store], questions retrieve the nearest
// documents of a collection, and answers are generated by an LLM constrained
// to that retrieved context.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/travelgenie/internal/observe"
	"github.com/MrWong99/travelgenie/pkg/provider/embeddings"
	"github.com/MrWong99/travelgenie/pkg/provider/llm"
	"github.com/MrWong99/travelgenie/pkg/types"
	"github.com/MrWong99/travelgenie/pkg/vectorstore"
)

// Defaults for [Config].
const (
	DefaultCollection = "documents"
	DefaultTopK       = 5
	DefaultTimeout    = 60 * time.Second
)

// PromptTemplate is the question-answering prompt. The first verb receives
// the retrieved context, the second the question.
const PromptTemplate = "Answer the question based only on the following context:\n%s\n\nQuestion: %s\n"

// Validation errors. The HTTP layer maps them to 400.
var (
	ErrEmptyQuestion    = errors.New("rag: question must not be empty")
	ErrNoTexts          = errors.New("rag: texts must not be empty")
	ErrMetadataMismatch = errors.New("rag: metadatas must have the same length as texts")
)

// Config holds the dependencies of a [Service].
type Config struct {
	Store    vectorstore.Store
	Embedder embeddings.Provider

	// LLM is needed only by Answer.
	LLM llm.Provider

	// Collection is used when a request names none. Defaults to DefaultCollection.
	Collection string

	// TopK is the number of documents retrieved per question. Defaults to DefaultTopK.
	TopK int

	// Timeout bounds one Answer call. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Answer is the result of [Service.Answer].
type Answer struct {
	Text    string
	Sources []vectorstore.ScoredDocument
}

// Service answers questions over stored documents.
type Service struct {
	store      vectorstore.Store
	embedder   embeddings.Provider
	llm        llm.Provider
	collection string
	topK       int
	timeout    time.Duration
	metrics    *observe.Metrics
}

// NewService validates cfg and returns a Service.
func NewService(cfg Config) (*Service, error) {
	var errs []error
	if cfg.Store == nil {
		errs = append(errs, errors.New("rag: Store must not be nil"))
	}
	if cfg.Embedder == nil {
		errs = append(errs, errors.New("rag: Embedder must not be nil"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	s := &Service{
		store:      cfg.Store,
		embedder:   cfg.Embedder,
		llm:        cfg.LLM,
		collection: cfg.Collection,
		topK:       cfg.TopK,
		timeout:    cfg.Timeout,
		metrics:    cfg.Metrics,
	}
	if s.collection == "" {
		s.collection = DefaultCollection
	}
	if s.topK <= 0 {
		s.topK = DefaultTopK
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s, nil
}

// Collection resolves name to the collection actually used.
func (s *Service) Collection(name string) string {
	if strings.TrimSpace(name) == "" {
		return s.collection
	}
	return name
}

// Retrieve returns the documents of collection nearest to question.
func (s *Service) Retrieve(ctx context.Context, question, collection string) ([]vectorstore.ScoredDocument, error) {
	ctx, span := observe.StartSpan(ctx, "rag.retrieve")
	defer span.End()
	collection = s.Collection(collection)
	span.SetAttributes(attribute.String("rag.collection", collection))

	docs, err := s.retrieve(ctx, question, collection)
	if err != nil {
		observe.Fail(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("rag.documents", len(docs)))
	return docs, nil
}

func (s *Service) retrieve(ctx context.Context, question, collection string) ([]vectorstore.ScoredDocument, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	vec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("rag: embed question: %w", err)
	}
	docs, err := s.store.Search(ctx, collection, vec, s.topK)
	if err != nil {
		return nil, fmt.Errorf("rag: search %q: %w", collection, err)
	}
	return docs, nil
}

// Answer retrieves context for question and asks the LLM to answer from it.
// The retrieved documents are returned as sources.
func (s *Service) Answer(ctx context.Context, question, collection string) (Answer, error) {
	ctx, span := observe.StartSpan(ctx, "rag.answer")
	defer span.End()
	collection = s.Collection(collection)
	span.SetAttributes(attribute.String("rag.collection", collection))

	if s.llm == nil {
		return Answer{}, errors.New("rag: no language model configured")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	docs, err := s.retrieve(ctx, question, collection)
	if err != nil {
		observe.Fail(span, err)
		return Answer{}, err
	}

	start := time.Now()
	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		Messages: []types.Message{{Role: types.RoleUser, Content: FormatPrompt(docs, question)}},
	})
	status := observe.StatusOK
	if err != nil {
		status = observe.StatusError
	}
	s.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(observe.Attr("status", status)))
	if err != nil {
		observe.Fail(span, err)
		return Answer{}, fmt.Errorf("rag: generate answer: %w", err)
	}
	if resp == nil {
		return Answer{}, errors.New("rag: generate answer: empty response")
	}
	return Answer{Text: strings.TrimSpace(resp.Content), Sources: docs}, nil
}

// FormatPrompt renders [PromptTemplate] with the documents' contents
// separated by blank lines.
func FormatPrompt(docs []vectorstore.ScoredDocument, question string) string {
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = d.Content
	}
	return fmt.Sprintf(PromptTemplate, strings.Join(parts, "\n\n"), question)
}

// AddTexts embeds texts and stores them in collection. metadatas may be nil;
// otherwise it must have one entry per text. It returns the new document IDs.
func (s *Service) AddTexts(ctx context.Context, texts []string, metadatas []map[string]any, collection string) ([]string, error) {
	ctx, span := observe.StartSpan(ctx, "rag.add_texts")
	defer span.End()
	collection = s.Collection(collection)
	span.SetAttributes(attribute.String("rag.collection", collection), attribute.Int("rag.texts", len(texts)))

	if len(texts) == 0 {
		return nil, ErrNoTexts
	}
	if metadatas != nil && len(metadatas) != len(texts) {
		return nil, ErrMetadataMismatch
	}

	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		observe.Fail(span, err)
		return nil, fmt.Errorf("rag: embed texts: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("rag: embed texts: got %d vectors for %d texts", len(vecs), len(texts))
	}

	docs := make([]vectorstore.Document, len(texts))
	for i, t := range texts {
		docs[i] = vectorstore.Document{Content: t}
		if metadatas != nil {
			docs[i].Metadata = metadatas[i]
		}
	}
	ids, err := s.store.AddDocuments(ctx, collection, docs, vecs)
	if err != nil {
		observe.Fail(span, err)
		return nil, fmt.Errorf("rag: store texts in %q: %w", collection, err)
	}
	observe.Logger(ctx).Info("rag: texts added", "collection", collection, "count", len(ids))
	return ids, nil
}
