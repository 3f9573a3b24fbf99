package feedback

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"bookkeeper/internal/analysis"
)

// GeneratedThresholds is an analysis.ThresholdSource that asks a model for
// an expense-ratio table fitted to the categories actually present.
type GeneratedThresholds struct {
	Provider Provider
}

var _ analysis.ThresholdSource = GeneratedThresholds{}

type generatedRule struct {
	Category string   `json:"category"`
	Kind     string   `json:"kind"`
	Min      *float64 `json:"min"`
	Max      *float64 `json:"max"`
	Cap      *int64   `json:"cap"`
}

// Thresholds implements analysis.ThresholdSource. Any provider or decoding
// failure is returned so the analyzer can fall back to its static table.
func (g GeneratedThresholds) Thresholds(ctx context.Context, expenses analysis.CategorySummary) (analysis.ThresholdTable, error) {
	if g.Provider == nil {
		return nil, ErrNoProvider
	}
	if len(expenses) == 0 {
		return analysis.ThresholdTable{}, nil
	}

	reply, err := g.Provider.Complete(ctx, thresholdPrompt(expenses))
	if err != nil {
		return nil, fmt.Errorf("generate thresholds: %w", err)
	}

	var rules []generatedRule
	if err := decodeModelList(reply, "rules", &rules); err != nil {
		return nil, fmt.Errorf("generate thresholds: %w: %v", ErrMalformedResponse, err)
	}

	table := make(analysis.ThresholdTable, 0, len(rules))
	for _, r := range rules {
		category := strings.TrimSpace(r.Category)
		if _, ok := expenses[category]; !ok {
			continue
		}
		kind := analysis.ThresholdKind(strings.ToLower(strings.TrimSpace(r.Kind)))
		th, err := analysis.InferThreshold(category, kind, r.Min, r.Max, r.Cap)
		if err != nil {
			return nil, fmt.Errorf("generate thresholds: %w: %v", ErrMalformedResponse, err)
		}
		table = append(table, th)
	}
	return table, nil
}

func thresholdPrompt(expenses analysis.CategorySummary) Prompt {
	var b strings.Builder
	b.WriteString("다음은 자영업자의 비용 항목별 합계입니다:\n")
	for _, ct := range expenses.Sorted() {
		fmt.Fprintf(&b, "- %s: %s원\n", ct.Category, humanize.Comma(ct.Total))
	}
	b.WriteString("\n각 항목에 대해 매출 대비 적정 비중 기준을 {\"rules\": [...]} 형태의 JSON 객체로만 답해주세요. ")
	b.WriteString("rules의 각 원소는 {\"category\": 항목명, \"min\": 최소비율, \"max\": 최대비율} 또는 ")
	b.WriteString("금액 한도가 적절한 항목은 {\"category\": 항목명, \"cap\": 원 단위 한도} 형식입니다. ")
	b.WriteString("비율은 0과 1 사이의 소수로 표기하세요.\n")

	return Prompt{
		System:      "너는 중소기업 회계 감사 전문가야. 업종 평균을 근거로 비용 비중 기준을 제시해.",
		User:        b.String(),
		Temperature: 0.2,
		JSON:        true,
	}
}
