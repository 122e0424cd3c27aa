package fake

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/openconreg/conreg/internal/charge/domain"
)

// Processor is an in-memory payment processor for development and
// tests. Outcomes can be scripted per call; by default every charge
// settles with a fresh reference id.
type Processor struct {
	mu       sync.Mutex
	declines []string
	requests []domain.ProcessorRequest
}

func New() *Processor {
	return &Processor{}
}

// DeclineNext makes the next charge attempt fail with the given reason.
// Queued declines are consumed in order.
func (p *Processor) DeclineNext(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.declines = append(p.declines, reason)
}

// Requests returns a copy of every charge request seen so far.
func (p *Processor) Requests() []domain.ProcessorRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.ProcessorRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

func (p *Processor) Charge(ctx context.Context, req domain.ProcessorRequest) (domain.ProcessorResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.ProcessorResult{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)

	reference := "ch_" + uuid.NewString()
	if len(p.declines) > 0 {
		reason := p.declines[0]
		p.declines = p.declines[1:]
		return domain.ProcessorResult{}, &domain.DeclineError{
			Reference: reference,
			Reason:    reason,
		}
	}

	return domain.ProcessorResult{Reference: reference}, nil
}
