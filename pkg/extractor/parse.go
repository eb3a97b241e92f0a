package extractor

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ktsuji/budgetscan/internal/models"
)

// payload mirrors the JSON shape requested from the model. Amount
// and year are raw so that models answering with quoted numbers
// ("1,000,000円") still normalize instead of failing to unmarshal.
type payload struct {
	ProjectName  string              `json:"project_name"`
	BudgetAmount json.RawMessage     `json:"budget_amount"`
	PolicyArea   string              `json:"policy_area"`
	Description  string              `json:"description"`
	FiscalYear   json.RawMessage     `json:"fiscal_year"`
	KPI          map[string]kpiEntry `json:"kpi"`
}

// kpiEntry accepts either {"target": x, "current": y} or a bare
// scalar, which is treated as the target with current defaulting to
// zero.
type kpiEntry struct {
	Target  float64
	Current float64
}

func (k *kpiEntry) UnmarshalJSON(data []byte) error {
	var obj struct {
		Target  float64 `json:"target"`
		Current float64 `json:"current"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		k.Target = obj.Target
		k.Current = obj.Current
		return nil
	}

	var scalar float64
	if err := json.Unmarshal(data, &scalar); err == nil {
		k.Target = scalar
		k.Current = 0
		return nil
	}

	return fmt.Errorf("kpi entry is neither an object nor a number: %s", data)
}

// parseRecord parses one model response into a validated record.
func parseRecord(content string) (models.BudgetRecord, error) {
	var record models.BudgetRecord

	cleaned := stripCodeFences(content)

	var p payload
	if err := json.Unmarshal([]byte(cleaned), &p); err != nil {
		return record, fmt.Errorf("response is not valid JSON: %w", err)
	}

	if len(p.BudgetAmount) == 0 {
		return record, fmt.Errorf("missing required field budget_amount")
	}
	amount, err := parseAmount(p.BudgetAmount)
	if err != nil {
		return record, err
	}

	if len(p.FiscalYear) == 0 {
		return record, fmt.Errorf("missing required field fiscal_year")
	}
	year, err := parseFiscalYear(p.FiscalYear)
	if err != nil {
		return record, err
	}

	kpi := make(map[string]models.KPIValue, len(p.KPI))
	for name, entry := range p.KPI {
		kpi[name] = models.KPIValue{Target: entry.Target, Current: entry.Current}
	}

	record = models.BudgetRecord{
		ProjectName:  strings.TrimSpace(p.ProjectName),
		BudgetAmount: amount,
		PolicyArea:   strings.TrimSpace(p.PolicyArea),
		Description:  strings.TrimSpace(p.Description),
		FiscalYear:   year,
		KPI:          kpi,
	}

	if err := record.Validate(); err != nil {
		return models.BudgetRecord{}, err
	}
	return record, nil
}

// stripCodeFences removes markdown fences some models wrap around
// JSON despite instructions.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// parseAmount accepts a JSON number or a string amount that still
// carries separators or currency marks.
func parseAmount(raw json.RawMessage) (int64, error) {
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n < 0 {
			return 0, models.ErrNegativeBudget
		}
		return n, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return NormalizeAmount(s)
	}

	return 0, fmt.Errorf("budget_amount is neither an integer nor a string: %s", raw)
}

// NormalizeAmount strips thousands separators and currency symbols
// from a budget figure and returns it as a non-negative integer.
// "1,000,000円" normalizes to 1000000. Returns an error when no
// valid amount remains.
func NormalizeAmount(s string) (int64, error) {
	var b strings.Builder
	negative := false
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= '０' && r <= '９': // full-width digits
			b.WriteRune('0' + (r - '０'))
		case r == ',' || r == '，' || r == '円' || r == '¥' || r == '￥' || r == ' ' || r == '　':
			// separators and currency marks
		case r == '-' || r == '−':
			negative = true
		default:
			return 0, fmt.Errorf("cannot normalize amount %q", s)
		}
	}
	if negative {
		return 0, models.ErrNegativeBudget
	}
	if b.Len() == 0 {
		return 0, fmt.Errorf("cannot normalize amount %q", s)
	}

	amount, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cannot normalize amount %q: %w", s, err)
	}
	return amount, nil
}

var (
	westernYearRe = regexp.MustCompile(`\d{4}`)
	eraYearRe     = regexp.MustCompile(`(令和|平成)(\d{1,2}|元)`)
)

// parseFiscalYear accepts a JSON number or a string year, including
// Japanese era forms: 令和7年度 is fiscal 2025, 平成31年度 is 2019.
func parseFiscalYear(raw json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("fiscal_year is neither an integer nor a string: %s", raw)
	}

	if m := eraYearRe.FindStringSubmatch(s); m != nil {
		offset := 1
		if m[2] != "元" {
			offset, _ = strconv.Atoi(m[2])
		}
		switch m[1] {
		case "令和":
			return 2018 + offset, nil
		case "平成":
			return 1988 + offset, nil
		}
	}

	if m := westernYearRe.FindString(s); m != "" {
		year, _ := strconv.Atoi(m)
		return year, nil
	}

	return 0, fmt.Errorf("cannot parse fiscal year %q", s)
}
