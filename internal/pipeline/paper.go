package pipeline

import (
	"context"

	"github.com/google/uuid"

	"quantgate/internal/domain"
)

// PaperExecutor simulates execution by filling every intent at its
// stated price. Used in paper mode and dry runs.
type PaperExecutor struct{}

// NewPaperExecutor creates a paper executor.
func NewPaperExecutor() *PaperExecutor {
	return &PaperExecutor{}
}

// Execute implements Executor with an immediate full fill.
func (e *PaperExecutor) Execute(_ context.Context, intent domain.OrderIntent) (domain.ExecutionResult, error) {
	return domain.ExecutionResult{
		Executed:   true,
		OrderID:    "paper-" + uuid.NewString(),
		FilledSize: intent.Size,
		FillPrice:  intent.Price,
	}, nil
}
