// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to verify which audio the caller submitted and to script
// successive transcription outcomes.
//
// Example:
//
//	p := &mock.Provider{
//	    Results: []stt.Transcript{{}, {Text: "I led the migration."}},
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/intervox/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is the Request passed to Transcribe.
	Req stt.Request
}

// Provider is a mock implementation of stt.Provider.
//
// Outcomes are chosen in this order: TranscribeFunc if set; otherwise the
// entries of Results/Errs indexed by call number, the last entry repeating;
// otherwise Result and Err.
type Provider struct {
	mu sync.Mutex

	// TranscribeFunc, if set, computes the outcome of each call.
	TranscribeFunc func(ctx context.Context, req stt.Request) (stt.Transcript, error)

	// Results and Errs script successive outcomes.
	Results []stt.Transcript
	Errs    []error

	// Result is returned when no script is set.
	Result stt.Transcript

	// Err, if non-nil, is returned when no script is set.
	Err error

	// Calls records every invocation of Transcribe in order.
	Calls []TranscribeCall
}

var _ stt.Provider = (*Provider)(nil)

// Transcribe records the call and returns the configured outcome.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	p.mu.Lock()
	n := len(p.Calls)
	p.Calls = append(p.Calls, TranscribeCall{Ctx: ctx, Req: req})
	fn := p.TranscribeFunc
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Results) == 0 && len(p.Errs) == 0 {
		return p.Result, p.Err
	}
	var (
		res stt.Transcript
		err error
	)
	if len(p.Results) > 0 {
		res = p.Results[min(n, len(p.Results)-1)]
	}
	if len(p.Errs) > 0 {
		err = p.Errs[min(n, len(p.Errs)-1)]
	}
	return res, err
}

// CallCount returns how many times Transcribe was called.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}
