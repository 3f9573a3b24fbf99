package analysis

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// RenderText formats a report as the plain-text block handed to the feedback
// collaborator.
func RenderText(r Report) string {
	var b strings.Builder
	b.WriteString("장부 분석 결과입니다:\n")
	for _, c := range r.Categories {
		fmt.Fprintf(&b, "- %s: %s원\n", c.Category, humanize.Comma(c.Total))
	}
	fmt.Fprintf(&b, "\n월 평균 매출액: 약 %s원\n", humanize.Comma(r.MonthlyAverageIncome))
	fmt.Fprintf(&b, "예상 부가세: 약 %s원\n", humanize.Comma(r.Tax.VATEstimate))
	fmt.Fprintf(&b, "예상 종합소득세: 약 %s원\n", humanize.Comma(r.Tax.IncomeTaxEstimate))
	fmt.Fprintf(&b, "공제 반영 후 예상 납부세액: 약 %s원\n", humanize.Comma(r.Tax.FinalTaxDue))
	if r.Tax.Extrapolated {
		fmt.Fprintf(&b, "(%d개월 자료를 연간 기준으로 환산한 추정치입니다)\n", len(r.Months))
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n경고 항목:\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	return b.String()
}
