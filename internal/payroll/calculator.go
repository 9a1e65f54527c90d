package payroll

import (
	"time"

	"github.com/pusulahq/pusula/backend/internal/store"
	"github.com/pusulahq/pusula/backend/internal/timesheet"
	"github.com/shopspring/decimal"
)

// Statutory worker and employer rates.
var (
	rateSGKWorker            = decimal.RequireFromString("0.14")
	rateUnemploymentWorker   = decimal.RequireFromString("0.01")
	rateSGKEmployer          = decimal.RequireFromString("0.205")
	rateUnemploymentEmployer = decimal.RequireFromString("0.02")
	rateStampTax             = decimal.RequireFromString("0.00759")
)

// bracket is one step of the progressive income tax table. Ceiling is
// the cumulative annual base the rate applies up to; the last bracket
// has no ceiling.
type bracket struct {
	ceiling decimal.Decimal
	rate    decimal.Decimal
}

var taxBrackets = []bracket{
	{ceiling: decimal.NewFromInt(110000), rate: decimal.RequireFromString("0.15")},
	{ceiling: decimal.NewFromInt(230000), rate: decimal.RequireFromString("0.20")},
	{ceiling: decimal.NewFromInt(580000), rate: decimal.RequireFromString("0.27")},
	{ceiling: decimal.NewFromInt(3000000), rate: decimal.RequireFromString("0.35")},
	{ceiling: decimal.Decimal{}, rate: decimal.RequireFromString("0.40")},
}

// Record is the derived payroll outcome for one employee month. It is
// computed on demand, never stored as a mutable entity. The timesheet
// hour totals ride along for display; gross pay is flat per month and
// does not move with overtime or missing hours.
type Record struct {
	EmployeeID           string          `json:"employeeId"`
	Year                 int             `json:"year"`
	Month                time.Month      `json:"month"`
	GrossSalary          decimal.Decimal `json:"grossSalary"`
	SGKWorker            decimal.Decimal `json:"sgkWorker"`
	UnemploymentWorker   decimal.Decimal `json:"unemploymentWorker"`
	IncomeTaxBase        decimal.Decimal `json:"incomeTaxBase"`
	IncomeTax            decimal.Decimal `json:"incomeTax"`
	StampTax             decimal.Decimal `json:"stampTax"`
	NetSalary            decimal.Decimal `json:"netSalary"`
	SGKEmployer          decimal.Decimal `json:"sgkEmployer"`
	UnemploymentEmployer decimal.Decimal `json:"unemploymentEmployer"`
	EmployerCost         decimal.Decimal `json:"employerCost"`
	TotalHours           float64         `json:"totalHours"`
	OvertimeHours        float64         `json:"overtimeHours"`
	MissingHours         float64         `json:"missingHours"`
}

// Calculate derives the payroll record for the employee's month. It
// returns nil when the employee has no positive base salary; that is a
// defined empty result, not an error.
func Calculate(employee store.Employee, year int, month time.Month, entries []timesheet.Entry) *Record {
	if employee.BaseSalary <= 0 {
		return nil
	}

	gross := decimal.NewFromFloat(employee.BaseSalary)

	sgkWorker := gross.Mul(rateSGKWorker).Round(2)
	unemploymentWorker := gross.Mul(rateUnemploymentWorker).Round(2)

	taxBase := gross.Sub(sgkWorker).Sub(unemploymentWorker)
	cumulativeBefore := taxBase.Mul(decimal.NewFromInt(int64(month) - 1))
	incomeTax := progressiveTax(cumulativeBefore, taxBase).Round(2)

	stampTax := gross.Mul(rateStampTax).Round(2)

	net := gross.Sub(sgkWorker).Sub(unemploymentWorker).Sub(incomeTax).Sub(stampTax)

	sgkEmployer := gross.Mul(rateSGKEmployer).Round(2)
	unemploymentEmployer := gross.Mul(rateUnemploymentEmployer).Round(2)
	employerCost := gross.Add(sgkEmployer).Add(unemploymentEmployer)

	record := &Record{
		EmployeeID:           employee.RecordID,
		Year:                 year,
		Month:                month,
		GrossSalary:          gross.Round(2),
		SGKWorker:            sgkWorker,
		UnemploymentWorker:   unemploymentWorker,
		IncomeTaxBase:        taxBase.Round(2),
		IncomeTax:            incomeTax,
		StampTax:             stampTax,
		NetSalary:            net.Round(2),
		SGKEmployer:          sgkEmployer,
		UnemploymentEmployer: unemploymentEmployer,
		EmployerCost:         employerCost.Round(2),
	}

	for _, entry := range entries {
		record.TotalHours += entry.TotalHours
		record.OvertimeHours += entry.OvertimeHours
		record.MissingHours += entry.MissingHours
	}
	return record
}

// progressiveTax computes the marginal tax on amount given the
// cumulative annual base already taxed this year.
func progressiveTax(cumulativeBefore, amount decimal.Decimal) decimal.Decimal {
	if amount.Sign() <= 0 {
		return decimal.Zero
	}

	tax := decimal.Zero
	remaining := amount
	position := cumulativeBefore

	for _, step := range taxBrackets {
		if remaining.Sign() <= 0 {
			break
		}
		if step.ceiling.IsZero() {
			tax = tax.Add(remaining.Mul(step.rate))
			remaining = decimal.Zero
			break
		}
		room := step.ceiling.Sub(position)
		if room.Sign() <= 0 {
			continue
		}
		portion := decimal.Min(remaining, room)
		tax = tax.Add(portion.Mul(step.rate))
		remaining = remaining.Sub(portion)
		position = position.Add(portion)
	}
	return tax
}
