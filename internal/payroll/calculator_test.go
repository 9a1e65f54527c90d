package payroll

import (
	"testing"
	"time"

	"github.com/pusulahq/pusula/backend/internal/store"
	"github.com/pusulahq/pusula/backend/internal/timesheet"
	"github.com/shopspring/decimal"
)

func mustDecimalEqual(t *testing.T, label string, got decimal.Decimal, want string) {
	t.Helper()
	expected := decimal.RequireFromString(want)
	if !got.Equal(expected) {
		t.Fatalf("%s: expected %s, got %s", label, want, got)
	}
}

func TestCalculateReturnsNilWithoutBaseSalary(t *testing.T) {
	employee := store.Employee{RecordID: "emp-1", FullName: "Ada"}

	if record := Calculate(employee, 2026, time.January, nil); record != nil {
		t.Fatalf("expected nil record for zero salary, got %+v", record)
	}

	employee.BaseSalary = -1
	if record := Calculate(employee, 2026, time.January, nil); record != nil {
		t.Fatalf("expected nil record for negative salary, got %+v", record)
	}
}

func TestCalculateJanuaryDeductions(t *testing.T) {
	employee := store.Employee{RecordID: "emp-1", BaseSalary: 100000}

	record := Calculate(employee, 2026, time.January, nil)
	if record == nil {
		t.Fatalf("expected payroll record")
	}
	if record.EmployeeID != "emp-1" || record.Year != 2026 || record.Month != time.January {
		t.Fatalf("unexpected record identity: %+v", record)
	}

	mustDecimalEqual(t, "gross", record.GrossSalary, "100000")
	mustDecimalEqual(t, "sgk worker", record.SGKWorker, "14000")
	mustDecimalEqual(t, "unemployment worker", record.UnemploymentWorker, "1000")
	mustDecimalEqual(t, "income tax base", record.IncomeTaxBase, "85000")
	mustDecimalEqual(t, "income tax", record.IncomeTax, "12750")
	mustDecimalEqual(t, "stamp tax", record.StampTax, "759")
	mustDecimalEqual(t, "net", record.NetSalary, "71491")
	mustDecimalEqual(t, "sgk employer", record.SGKEmployer, "20500")
	mustDecimalEqual(t, "unemployment employer", record.UnemploymentEmployer, "2000")
	mustDecimalEqual(t, "employer cost", record.EmployerCost, "122500")
}

func TestCalculateCrossesTaxBracketWithCumulativeBase(t *testing.T) {
	employee := store.Employee{RecordID: "emp-1", BaseSalary: 100000}

	// By February the cumulative base sits at 85000; the month's base
	// spans the 110000 bracket boundary: 25000 at 15%, 60000 at 20%.
	record := Calculate(employee, 2026, time.February, nil)
	if record == nil {
		t.Fatalf("expected payroll record")
	}
	mustDecimalEqual(t, "income tax", record.IncomeTax, "15750")
}

func TestCalculateTopBracketIsUnbounded(t *testing.T) {
	employee := store.Employee{RecordID: "emp-1", BaseSalary: 100000}

	// December: cumulative base 935000 exceeds every bounded ceiling
	// except the last, which has none.
	record := Calculate(employee, 2026, time.December, nil)
	if record == nil {
		t.Fatalf("expected payroll record")
	}
	// 85000 entirely inside the 35% bracket (935000..1020000 < 3000000).
	mustDecimalEqual(t, "income tax", record.IncomeTax, "29750")
}

func TestCalculateAggregatesTimesheetHours(t *testing.T) {
	employee := store.Employee{RecordID: "emp-1", BaseSalary: 50000}
	entries := []timesheet.Entry{
		{Date: "2026-06-01", Status: timesheet.StatusWork, TotalHours: 8, OvertimeHours: 0, MissingHours: 0},
		{Date: "2026-06-02", Status: timesheet.StatusWork, TotalHours: 10, OvertimeHours: 2, MissingHours: 0},
		{Date: "2026-06-03", Status: timesheet.StatusAbsent, MissingHours: 8},
	}

	record := Calculate(employee, 2026, time.June, entries)
	if record == nil {
		t.Fatalf("expected payroll record")
	}
	if record.TotalHours != 18 || record.OvertimeHours != 2 || record.MissingHours != 8 {
		t.Fatalf("unexpected hour totals: %+v", record)
	}

	// Hours are display-only; gross stays flat regardless of attendance.
	mustDecimalEqual(t, "gross", record.GrossSalary, "50000")
}
