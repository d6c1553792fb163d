package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// FakeClient returns deterministic, minimal JSON payloads per task for
// offline runs and tests. It keys off the [task: ...] header each suite
// prompt starts with.
type FakeClient struct{}

func NewFakeClient() *FakeClient { return &FakeClient{} }

func (f *FakeClient) Name() string { return "FakeModel" }
func (f *FakeClient) Close() error { return nil }

func (f *FakeClient) GenerateJSON(_ context.Context, prompt string, input any) (json.RawMessage, error) {
	var obj any
	switch {
	case strings.Contains(prompt, "[task: classify_vagueness]"):
		answer := ""
		if m, ok := input.(map[string]string); ok {
			answer = m["answer"]
		}
		// Short answers without specifics read as vague.
		obj = map[string]any{"is_vague": len(strings.TrimSpace(answer)) < 20}
	case strings.Contains(prompt, "[task: generate_anchoring]"):
		roles := 0
		if m, ok := input.(map[string]any); ok {
			data, _ := json.Marshal(m["roles"])
			var arr []any
			_ = json.Unmarshal(data, &arr)
			roles = len(arr)
		}
		anchorings := make([]map[string]any, 0, roles)
		for i := 0; i < roles; i++ {
			anchorings = append(anchorings, map[string]any{
				"problem_index": 0,
				"demand":        fmt.Sprintf("fake demand %d", i+1),
			})
		}
		obj = map[string]any{"anchorings": anchorings}
	case strings.Contains(prompt, "[task: generate_persona]"):
		obj = map[string]any{
			"name":                "Fake Advisor",
			"background":          "A deterministic stand-in persona.",
			"communication_style": "terse",
			"signature_phrase":    "show me the evidence",
		}
	case strings.Contains(prompt, "[task: generate_health_statements]"):
		obj = map[string]any{
			"risk_statement":        "fake risk statement",
			"opportunity_statement": "fake opportunity statement",
		}
	case strings.Contains(prompt, "[task: generate_board_question]"):
		obj = map[string]any{"question": "What concrete step did you take this quarter?"}
	case strings.Contains(prompt, "[task: generate_report]"):
		obj = map[string]any{"markdown": "# Quarterly Report\n\nfake report body\n"}
	case strings.Contains(prompt, "[task: describe_trend]"):
		obj = map[string]any{"description": "fake trend description"}
	default:
		return nil, fmt.Errorf("fake client: unknown task in prompt")
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}
