package advisor

import (
	"context"
	"testing"
)

func TestNoopReturnsZeroConfidence(t *testing.T) {
	var a Advisor = Noop{}

	advice, err := a.SuggestPerceptionMode(context.Background(), "https://example.com", "find login", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if advice.Confidence != 0 {
		t.Fatalf("expected zero confidence, got %v", advice.Confidence)
	}

	advice, err = a.ClassifyFailure(context.Background(), "click", "element not found")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if advice.Confidence != 0 {
		t.Fatalf("expected zero confidence, got %v", advice.Confidence)
	}
}

func TestExtractJSONTrimsProse(t *testing.T) {
	got := extractJSON("Sure, here you go: {\"recommendation\":\"retry\",\"confidence\":0.8} thanks")
	if got != `{"recommendation":"retry","confidence":0.8}` {
		t.Fatalf("unexpected extraction: %q", got)
	}
}

func TestExtractJSONNoBraces(t *testing.T) {
	if got := extractJSON("no json here"); got != "{}" {
		t.Fatalf("expected empty object fallback, got %q", got)
	}
}
