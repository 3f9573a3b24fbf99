package feedback

import (
	"strings"
)

const (
	advisorPersona = "너는 전문 세무사 AI야. 사용자의 질문에 답변을 주면서, 추가로 이번 달 요약 피드백도 포함해줘.\n" +
		"단, 월말 피드백은 한 달에 한 번만 포함하고, 이후 질문에는 생략해도 돼."
	advisorAnswerOnly = "너는 전문 세무사 AI야. 이번 달 요약 피드백은 이미 제공했으니 생략하고, 사용자의 질문에만 답변해줘."

	// FeedbackTemperature matches the advisory call of the original service.
	FeedbackTemperature float32 = 0.5
)

// Prompt is a provider-neutral chat request: one system instruction and one
// user message.
type Prompt struct {
	System      string
	User        string
	Temperature float32
	// JSON asks the provider for a raw JSON response where supported.
	JSON bool
}

// BuildPrompt assembles the advisory request for question over a rendered
// report. includeMonthly comes from Gate.
func BuildPrompt(question, reportText string, includeMonthly bool) Prompt {
	var b strings.Builder
	b.WriteString("사용자 질문: ")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(reportText))
	b.WriteString("\n")

	system := advisorPersona
	if !includeMonthly {
		system = advisorAnswerOnly
	}
	return Prompt{System: system, User: b.String(), Temperature: FeedbackTemperature}
}
