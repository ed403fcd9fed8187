// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to inspect the CompletionRequests sent by the
// question planner and the answer judge, and to feed controlled replies
// without a live backend.
//
// Example:
//
//	p := &mock.Provider{
//	    CompleteResponse: &llm.CompletionResponse{Content: `{"score": 80}`},
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/intervox/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
//
// Replies are chosen in this order: CompleteFunc if set; otherwise the next
// entry of Responses/Errs (indexed by call number, the last entry repeating);
// otherwise CompleteResponse and CompleteErr.
type Provider struct {
	mu sync.Mutex

	// CompleteFunc, if set, computes the reply for each call.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// Responses and Errs script successive replies.
	Responses []*llm.CompletionResponse
	Errs      []error

	// CompleteResponse is returned by Complete. May be nil (returns nil, nil).
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned as the error from Complete.
	CompleteErr error

	// ModelCapabilities is returned by Capabilities.
	ModelCapabilities llm.ModelCapabilities

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall
}

// Complete records the call and returns the configured reply.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	n := len(p.CompleteCalls)
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	fn := p.CompleteFunc
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Responses) > 0 || len(p.Errs) > 0 {
		var (
			resp *llm.CompletionResponse
			err  error
		)
		if len(p.Responses) > 0 {
			resp = p.Responses[min(n, len(p.Responses)-1)]
		}
		if len(p.Errs) > 0 {
			err = p.Errs[min(n, len(p.Errs)-1)]
		}
		return resp, err
	}
	return p.CompleteResponse, p.CompleteErr
}

// Capabilities returns ModelCapabilities.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelCapabilities
}

// CallCount returns the number of Complete calls so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.CompleteCalls)
}

// Calls returns a copy of the recorded calls.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]CompleteCall, len(p.CompleteCalls))
	copy(out, p.CompleteCalls)
	return out
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
