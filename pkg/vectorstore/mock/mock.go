// Package mock provides an in-memory [vectorstore.Store] for tests.
//
// Search computes exact cosine distance over every stored document, so
// results match what the PostgreSQL store returns for small data sets.
//
//	s := mock.New()
//	s.SearchErr = errors.New("db down")
package mock

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/MrWong99/travelgenie/pkg/vectorstore"
)

type entry struct {
	doc vectorstore.Document
	vec []float32
	seq int
}

// Store is an in-memory vector store.
type Store struct {
	mu sync.Mutex

	collections map[string]map[string]*entry
	seq         int

	// AddErr and SearchErr, when non-nil, are returned by the matching method.
	AddErr    error
	SearchErr error

	addCalls    int
	searchCalls int
	closed      bool
}

var _ vectorstore.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{collections: make(map[string]map[string]*entry)}
}

// AddDocuments implements [vectorstore.Store].
func (s *Store) AddDocuments(_ context.Context, collection string, docs []vectorstore.Document, embeddings [][]float32) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addCalls++
	if s.AddErr != nil {
		return nil, s.AddErr
	}
	if len(docs) != len(embeddings) {
		return nil, vectorstore.ErrLengthMismatch
	}
	if s.collections == nil {
		s.collections = make(map[string]map[string]*entry)
	}
	col, ok := s.collections[collection]
	if !ok {
		col = make(map[string]*entry)
		s.collections[collection] = col
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		s.seq++
		col[d.ID] = &entry{doc: d, vec: append([]float32(nil), embeddings[i]...), seq: s.seq}
		ids[i] = d.ID
	}
	return ids, nil
}

// Search implements [vectorstore.Store].
func (s *Store) Search(_ context.Context, collection string, embedding []float32, k int) ([]vectorstore.ScoredDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchCalls++
	if s.SearchErr != nil {
		return nil, s.SearchErr
	}

	type hit struct {
		sd  vectorstore.ScoredDocument
		seq int
	}
	var hits []hit
	for _, e := range s.collections[collection] {
		hits = append(hits, hit{
			sd:  vectorstore.ScoredDocument{Document: e.doc, Distance: CosineDistance(embedding, e.vec)},
			seq: e.seq,
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].sd.Distance == hits[j].sd.Distance {
			return hits[i].seq < hits[j].seq
		}
		return hits[i].sd.Distance < hits[j].sd.Distance
	})

	out := make([]vectorstore.ScoredDocument, 0, min(k, len(hits)))
	for i := 0; i < len(hits) && i < k; i++ {
		out = append(out, hits[i].sd)
	}
	return out, nil
}

// Close implements [vectorstore.Store].
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Closed reports whether Close was called.
func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Len returns the number of documents in collection.
func (s *Store) Len(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.collections[collection])
}

// AddCalls returns the number of AddDocuments calls.
func (s *Store) AddCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addCalls
}

// SearchCalls returns the number of Search calls.
func (s *Store) SearchCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searchCalls
}

// CosineDistance returns 1 - cos(a, b). Zero vectors and length mismatches
// are maximally distant.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
