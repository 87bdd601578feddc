package advisor

import "context"

// Noop is the default Advisor: it declines every request with zero
// confidence so callers fall back to their non-advised heuristics.
type Noop struct{}

func (Noop) SuggestPerceptionMode(ctx context.Context, url, goal string, recentFailures []string) (Advice, error) {
	return Advice{}, nil
}

func (Noop) ClassifyFailure(ctx context.Context, toolName, errMessage string) (Advice, error) {
	return Advice{}, nil
}
