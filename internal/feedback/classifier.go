package feedback

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"bookkeeper/internal/core"
)

const classifierPersona = "너는 회계 전문가야. 주어진 데이터를 통해 적절한 회계 분류를 제공해야 해."

// Classifier asks a model to fill in missing categories.
type Classifier struct {
	Provider Provider
	// Categories, when set, restricts answers to known labels.
	Categories []string
	// Overwrite reclassifies every row, not only uncategorized ones.
	Overwrite bool
}

// Classify returns a derived ledger with categories assigned by the model.
// The input ledger is never modified. On error callers should keep l.
func (c Classifier) Classify(ctx context.Context, l core.Ledger) (core.Ledger, error) {
	if c.Provider == nil {
		return nil, ErrNoProvider
	}

	var targets []int
	for i, t := range l {
		if c.Overwrite || strings.TrimSpace(t.Category) == "" {
			targets = append(targets, i)
		}
	}
	if len(targets) == 0 {
		return l.Clone(), nil
	}

	reply, err := c.Provider.Complete(ctx, c.prompt(l, targets))
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	var labels []string
	if err := decodeModelList(reply, "labels", &labels); err != nil {
		return nil, fmt.Errorf("classify: %w: %v", ErrMalformedResponse, err)
	}
	if len(labels) != len(targets) {
		return nil, fmt.Errorf("classify: got %d labels for %d rows: %w", len(labels), len(targets), ErrMalformedResponse)
	}

	out := l.Clone()
	for k, i := range targets {
		if label := strings.TrimSpace(labels[k]); label != "" {
			out[i].Category = label
		}
	}
	return out, nil
}

func (c Classifier) prompt(l core.Ledger, targets []int) Prompt {
	var b strings.Builder
	b.WriteString("다음은 자영업자의 장부 데이터입니다. 각 항목에 대해 적절한 회계 분류를 제시해주세요. '금액'에 대한 정보를 통해 분류를 예측해주세요.\n\n")
	for n, i := range targets {
		t := l[i]
		fmt.Fprintf(&b, "%d. 날짜: %s, 내용: %s, 금액: %s\n", n+1, t.Date, t.Description, humanize.Comma(t.Amount))
	}
	if len(c.Categories) > 0 {
		fmt.Fprintf(&b, "\n사용 가능한 분류: %s\n", strings.Join(c.Categories, ", "))
	}
	fmt.Fprintf(&b, "\n위 %d개 항목의 분류를 순서대로 JSON 객체로만 답해주세요. 예: {\"labels\": [\"매출\", \"원재료비\"]}\n", len(targets))

	return Prompt{System: classifierPersona, User: b.String(), Temperature: 0.3, JSON: true}
}
