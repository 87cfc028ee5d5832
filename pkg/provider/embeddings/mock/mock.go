// Package mock provides a test double for the embeddings.Provider interface.
//
// By default Provider derives a deterministic vector from each text's bytes so
// identical texts embed identically and similarity search in tests behaves
// predictably. Set Vectors to pin specific texts to specific vectors.
//
// Example:
//
//	p := &mock.Provider{DimensionsValue: 3, Vectors: map[string][]float32{
//	    "paris": {1, 0, 0},
//	}}
package mock

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/MrWong99/travelgenie/pkg/provider/embeddings"
)

// Provider is a mock implementation of embeddings.Provider.
type Provider struct {
	mu sync.Mutex

	// Vectors maps exact texts to fixed vectors.
	Vectors map[string][]float32

	// Err, if non-nil, is returned from Embed and EmbedBatch.
	Err error

	// DimensionsValue is returned by Dimensions. Defaults to 8 when zero.
	DimensionsValue int

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// EmbedCalls records every text passed to Embed.
	EmbedCalls []string

	// EmbedBatchCalls records every batch passed to EmbedBatch.
	EmbedBatchCalls [][]string
}

// Embed returns the pinned or derived vector for text.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, text)
	if p.Err != nil {
		return nil, p.Err
	}
	return p.vector(text), nil
}

// EmbedBatch returns one vector per text.
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]string, len(texts))
	copy(cp, texts)
	p.EmbedBatchCalls = append(p.EmbedBatchCalls, cp)
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vector(t)
	}
	return out, nil
}

// Dimensions returns DimensionsValue.
func (p *Provider) Dimensions() int {
	if p.DimensionsValue == 0 {
		return 8
	}
	return p.DimensionsValue
}

// ModelID returns ModelIDValue.
func (p *Provider) ModelID() string {
	return p.ModelIDValue
}

func (p *Provider) vector(text string) []float32 {
	if v, ok := p.Vectors[text]; ok {
		return v
	}
	dims := p.Dimensions()
	out := make([]float32, dims)
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()
	for i := range out {
		seed = seed*6364136223846793005 + 1442695040888963407
		out[i] = float32(seed>>40) / float32(1<<24)
	}
	return out
}

var _ embeddings.Provider = (*Provider)(nil)
