package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// Anthropic implements Advisor on top of the Claude Messages API. It asks
// for a compact JSON verdict and fails soft: a malformed or empty response
// degrades to zero confidence rather than an error, since advice is
// always optional.
type Anthropic struct {
	client *anthropic.Client
	model  string
}

// NewAnthropic builds an Anthropic advisor with the given model name,
// authenticating via the ANTHROPIC_API_KEY environment variable (the
// SDK's default credential resolution).
func NewAnthropic(model string) *Anthropic {
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	client := anthropic.NewClient()
	return &Anthropic{client: &client, model: model}
}

type verdict struct {
	Recommendation string  `json:"recommendation"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning"`
}

func (a *Anthropic) ask(ctx context.Context, system, prompt string) (Advice, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 256,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		System: []anthropic.TextBlockParam{{Text: system}},
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return Advice{}, fmt.Errorf("anthropic advisor call: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return Advice{}, nil
	}

	var v verdict
	if err := json.Unmarshal([]byte(extractJSON(text.String())), &v); err != nil {
		return Advice{}, nil
	}
	return Advice{Recommendation: v.Recommendation, Confidence: v.Confidence, Reasoning: v.Reasoning}, nil
}

// extractJSON trims any prose Claude wraps around the JSON object.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return "{}"
	}
	return s[start : end+1]
}

func (a *Anthropic) SuggestPerceptionMode(ctx context.Context, url, goal string, recentFailures []string) (Advice, error) {
	system := `You advise a browser automation engine on which perception depth to use next: ` +
		`lightning, quick, standard, or deep. Respond with a single JSON object ` +
		`{"recommendation":"<mode>","confidence":<0..1>,"reasoning":"<short>"}.`
	prompt := fmt.Sprintf("url=%s goal=%q recent_failures=%v", url, goal, recentFailures)
	return a.ask(ctx, system, prompt)
}

func (a *Anthropic) ClassifyFailure(ctx context.Context, toolName, errMessage string) (Advice, error) {
	system := `You classify a browser automation tool failure for a retry engine. ` +
		`Respond with a single JSON object {"recommendation":"<retry|escalate|abort>",` +
		`"confidence":<0..1>,"reasoning":"<short>"}.`
	prompt := fmt.Sprintf("tool=%s error=%q", toolName, errMessage)
	return a.ask(ctx, system, prompt)
}
