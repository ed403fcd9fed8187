// Package mock provides a test double for the embeddings.Provider interface.
//
// Use Provider to return pre-canned embedding vectors without a live model
// and to verify that the correct texts are submitted for embedding.
//
// Example:
//
//	p := &mock.Provider{
//	    EmbedFunc: func(text string) []float32 { return vectors[text] },
//	    DimensionsValue: 3,
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/intervox/pkg/provider/embeddings"
)

// EmbedBatchCall records a single invocation of EmbedBatch or Embed.
type EmbedBatchCall struct {
	// Ctx is the context passed to the call.
	Ctx context.Context
	// Texts is a copy of the texts submitted.
	Texts []string
}

// Provider is a mock implementation of embeddings.Provider.
type Provider struct {
	mu sync.Mutex

	// EmbedFunc, if set, computes the vector for each text.
	EmbedFunc func(text string) []float32

	// EmbedResult is returned for every text when EmbedFunc is nil.
	EmbedResult []float32

	// Err, if non-nil, is returned by Embed and EmbedBatch.
	Err error

	// DimensionsValue is returned by Dimensions.
	DimensionsValue int

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// Calls records every Embed and EmbedBatch call in order.
	Calls []EmbedBatchCall
}

// Ensure Provider implements embeddings.Provider at compile time.
var _ embeddings.Provider = (*Provider)(nil)

// Embed records the call and returns the vector for text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch records the call and returns one vector per text.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, EmbedBatchCall{Ctx: ctx, Texts: append([]string(nil), texts...)})
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if p.EmbedFunc != nil {
			out[i] = p.EmbedFunc(t)
		} else {
			out[i] = p.EmbedResult
		}
	}
	return out, nil
}

// Dimensions returns DimensionsValue.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.DimensionsValue
}

// ModelID returns ModelIDValue.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelIDValue
}

// CallCount returns the number of recorded calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}
