package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"

	"bookkeeper/internal/analysis"
)

// rulesFile mirrors the YAML layout. Pointer fields distinguish "absent"
// from zero so that omitted keys keep their defaults.
type rulesFile struct {
	RevenueCategory string          `yaml:"revenue_category"`
	Tax             taxFile         `yaml:"tax"`
	Thresholds      []thresholdFile `yaml:"thresholds"`
}

type taxFile struct {
	VATRate            *float64      `yaml:"vat_rate"`
	SimpleIncomeRate   *float64      `yaml:"simple_income_rate"`
	BasicDeduction     *int64        `yaml:"basic_deduction"`
	MedicalDeduction   *int64        `yaml:"medical_deduction"`
	PensionDeduction   *int64        `yaml:"pension_deduction"`
	DependentDeduction *int64        `yaml:"dependent_deduction"`
	ChildCredit        *int64        `yaml:"child_credit"`
	ElderlyCredit      *int64        `yaml:"elderly_credit"`
	NonDeductible      []string      `yaml:"non_deductible"`
	Brackets           []bracketFile `yaml:"brackets"`
}

type bracketFile struct {
	UpTo   int64   `yaml:"up_to"`
	Rate   float64 `yaml:"rate"`
	Offset int64   `yaml:"offset"`
}

type thresholdFile struct {
	Category string   `yaml:"category"`
	Kind     string   `yaml:"kind"`
	Min      *float64 `yaml:"min"`
	Max      *float64 `yaml:"max"`
	Cap      *int64   `yaml:"cap"`
}

// LoadRules reads analysis rules from a YAML file. An empty path returns the
// built-in defaults.
func LoadRules(path string) (analysis.Rules, error) {
	if path == "" {
		return analysis.DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return analysis.Rules{}, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules overlays YAML data on the default rules.
func ParseRules(data []byte) (analysis.Rules, error) {
	var f rulesFile
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return analysis.Rules{}, fmt.Errorf("parse rules: %w", err)
	}

	rules := analysis.DefaultRules()
	if s := strings.TrimSpace(f.RevenueCategory); s != "" {
		rules.RevenueCategory = s
	}

	tax := &rules.Tax
	setRate(&tax.VATRate, f.Tax.VATRate)
	setRate(&tax.SimpleIncomeRate, f.Tax.SimpleIncomeRate)
	setAmount(&tax.BasicDeduction, f.Tax.BasicDeduction)
	setAmount(&tax.MedicalDeduction, f.Tax.MedicalDeduction)
	setAmount(&tax.PensionDeduction, f.Tax.PensionDeduction)
	setAmount(&tax.DependentDeduction, f.Tax.DependentDeduction)
	setAmount(&tax.ChildCredit, f.Tax.ChildCredit)
	setAmount(&tax.ElderlyCredit, f.Tax.ElderlyCredit)
	if f.Tax.NonDeductible != nil {
		tax.NonDeductible = f.Tax.NonDeductible
	}
	if len(f.Tax.Brackets) > 0 {
		brackets, err := toBrackets(f.Tax.Brackets)
		if err != nil {
			return analysis.Rules{}, err
		}
		tax.Brackets = brackets
	}

	if f.Thresholds != nil {
		table := make(analysis.ThresholdTable, 0, len(f.Thresholds))
		for i, t := range f.Thresholds {
			th, err := toThreshold(t)
			if err != nil {
				return analysis.Rules{}, fmt.Errorf("threshold %d: %w", i, err)
			}
			table = append(table, th)
		}
		rules.Thresholds = table
	}

	if err := validateRules(rules); err != nil {
		return analysis.Rules{}, err
	}
	return rules, nil
}

func toBrackets(in []bracketFile) ([]analysis.Bracket, error) {
	out := make([]analysis.Bracket, 0, len(in))
	var prev int64
	for i, b := range in {
		last := i == len(in)-1
		if !last && b.UpTo <= prev {
			return nil, fmt.Errorf("bracket %d: up_to must increase", i)
		}
		if last && b.UpTo != 0 && b.UpTo <= prev {
			return nil, fmt.Errorf("bracket %d: up_to must increase", i)
		}
		if b.Rate < 0 || b.Offset < 0 {
			return nil, fmt.Errorf("bracket %d: rate and offset must be non-negative", i)
		}
		prev = b.UpTo
		out = append(out, analysis.Bracket{UpTo: b.UpTo, Rate: decimal.NewFromFloat(b.Rate), Offset: b.Offset})
	}
	return out, nil
}

func toThreshold(t thresholdFile) (analysis.Threshold, error) {
	kind := analysis.ThresholdKind(strings.ToLower(strings.TrimSpace(t.Kind)))
	return analysis.InferThreshold(strings.TrimSpace(t.Category), kind, t.Min, t.Max, t.Cap)
}

func validateRules(r analysis.Rules) error {
	var problems []string
	t := r.Tax
	if t.VATRate.IsNegative() || t.SimpleIncomeRate.IsNegative() {
		problems = append(problems, "tax rates must be non-negative")
	}
	amounts := []struct {
		name string
		v    int64
	}{
		{"basic_deduction", t.BasicDeduction},
		{"medical_deduction", t.MedicalDeduction},
		{"pension_deduction", t.PensionDeduction},
		{"dependent_deduction", t.DependentDeduction},
		{"child_credit", t.ChildCredit},
		{"elderly_credit", t.ElderlyCredit},
	}
	for _, a := range amounts {
		if a.v < 0 {
			problems = append(problems, fmt.Sprintf("%s must be non-negative", a.name))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid rules:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

func setRate(dst *decimal.Decimal, v *float64) {
	if v != nil {
		*dst = decimal.NewFromFloat(*v)
	}
}

func setAmount(dst *int64, v *int64) {
	if v != nil {
		*dst = *v
	}
}
