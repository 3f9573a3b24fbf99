package feedback

import (
	"context"
	"fmt"
)

// Advisor answers user questions about an analysis.
type Advisor struct {
	Provider Provider
}

// Answer sends the advisory prompt and returns the model's reply.
func (a Advisor) Answer(ctx context.Context, question, reportText string, includeMonthly bool) (string, error) {
	if a.Provider == nil {
		return "", ErrNoProvider
	}
	reply, err := a.Provider.Complete(ctx, BuildPrompt(question, reportText, includeMonthly))
	if err != nil {
		return "", fmt.Errorf("%s feedback: %w", a.Provider.Name(), err)
	}
	return reply, nil
}
