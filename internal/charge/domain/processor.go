package domain

import (
	"context"
	"fmt"

	"github.com/openconreg/conreg/pkg/money"
)

// ProcessorRequest describes one charge against an external payment
// processor. PaymentMethod is an opaque token from the caller (card
// token, saved method id).
type ProcessorRequest struct {
	PaymentMethod string
	Amount        money.Amount
	Description   string
}

// ProcessorResult carries the processor's reference id for a settled
// charge.
type ProcessorResult struct {
	Reference string
}

// DeclineError is a controlled processor outcome, not a transport
// failure: the attempt is recorded as a failed charge.
type DeclineError struct {
	Reference string
	Reason    string
}

func (e *DeclineError) Error() string {
	return fmt.Sprintf("declined: %s", e.Reason)
}

// Processor is the external payment collaborator. It may be slow and it
// may fail; its outcome is always recorded, never silently dropped.
type Processor interface {
	Charge(ctx context.Context, req ProcessorRequest) (ProcessorResult, error)
}
