package tools

import (
	"context"
	"time"

	"browsercore/internal/coreerr"
	"browsercore/internal/coretypes"
	"browsercore/internal/mangle"
)

// ReportInsight lets a caller record an observation about the page or
// task into the deductive engine as an advisory fact, without it
// affecting retry/circuit-breaker policy the way tool_failure does.
type ReportInsight struct{}

func (t *ReportInsight) Name() string     { return "report_insight" }
func (t *ReportInsight) Category() string { return "Meta-cognitive" }

func (t *ReportInsight) Run(ctx context.Context, deps *Deps, call coretypes.ToolCall) (map[string]interface{}, error) {
	insight := argString(call.Args, "insight")
	if insight == "" {
		return nil, coreerr.New(coreerr.InvalidInput, "insight is required")
	}
	if deps.Engine != nil {
		_ = deps.Engine.AddFacts(ctx, []mangle.Fact{{
			Predicate: "task_insight",
			Args:      []interface{}{call.SessionID, insight},
			Timestamp: time.Now(),
		}})
	}
	return map[string]interface{}{"recorded": true}, nil
}

// CompleteTask marks the caller's task as finished, recording the
// outcome and any extracted learnings as advisory facts for future
// perception-mode and retry-policy decisions on similar sessions.
type CompleteTask struct{}

func (t *CompleteTask) Name() string     { return "complete_task" }
func (t *CompleteTask) Category() string { return "Meta-cognitive" }

func (t *CompleteTask) Run(ctx context.Context, deps *Deps, call coretypes.ToolCall) (map[string]interface{}, error) {
	outcome := argString(call.Args, "outcome")
	if outcome == "" {
		outcome = "success"
	}
	learnings := argString(call.Args, "extract_learnings")

	if deps.Engine != nil {
		facts := []mangle.Fact{{
			Predicate: "task_complete",
			Args:      []interface{}{call.SessionID, outcome},
			Timestamp: time.Now(),
		}}
		if learnings != "" {
			facts = append(facts, mangle.Fact{
				Predicate: "task_learning",
				Args:      []interface{}{call.SessionID, learnings},
				Timestamp: time.Now(),
			})
		}
		_ = deps.Engine.AddFacts(ctx, facts)
	}
	return map[string]interface{}{"outcome": outcome}, nil
}
