package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bizadmin-backend/internal/logging"
	"bizadmin-backend/internal/model"
)

// MarkAbsentEmployees records Absent for everyone without attendance today.
func (s *Set) MarkAbsentEmployees(ctx context.Context) (Result, error) {
	today := s.today()
	if today.Weekday() == time.Sunday {
		return Result{Status: StatusSkipped, Reason: "Sunday", Date: dateString(today)}, nil
	}

	employees, err := s.HR.ListEmployees(ctx)
	if err != nil {
		return Result{}, err
	}
	marked, err := s.HR.EmployeeIDsWithAttendance(ctx, today)
	if err != nil {
		return Result{}, err
	}

	created := 0
	for _, employee := range employees {
		if _, ok := marked[employee.ID]; ok {
			continue
		}
		err := s.HR.CreateAttendance(ctx, &model.Attendance{
			EmployeeID:       employee.ID,
			AttendanceDate:   today,
			AttendanceStatus: model.AttendanceAbsent,
		})
		if err != nil {
			logging.LogError(s.Logger, "jobs", "MarkAbsentEmployees", "create attendance", employee.EmployeeCode, err)
			continue
		}
		created++
	}

	return Result{
		Status: StatusSuccess,
		Date:   dateString(today),
		Counts: map[string]int{"marked_absent": created, "already_marked": len(marked)},
	}, nil
}

// GenerateMonthlyPayroll creates Pending payroll rows on the last day of the
// month. Employees that already have a row for the month are left alone.
func (s *Set) GenerateMonthlyPayroll(ctx context.Context) (Result, error) {
	today := s.today()
	if today.AddDate(0, 0, 1).Day() != 1 {
		return Result{Status: StatusSkipped, Reason: "Not the last day of the month", Date: dateString(today)}, nil
	}

	employees, err := s.HR.ListEmployees(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(employees) == 0 {
		return Result{Status: StatusSkipped, Reason: "No employees found", Date: dateString(today)}, nil
	}

	createdBy, err := s.systemUserID(ctx)
	if err != nil {
		return Result{}, err
	}

	periodFrom := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	periodTo := today
	month := fmt.Sprintf("%d-%02d", today.Year(), int(today.Month()))
	workingDays := WorkingDays(periodFrom, periodTo)

	created, skipped := 0, 0
	for _, employee := range employees {
		log := s.Logger.WithFields(logrus.Fields{"employee": employee.EmployeeCode, "month": month})

		exists, err := s.HR.PayrollExists(ctx, employee.ID, periodFrom, periodTo)
		if err != nil {
			logging.LogError(log, "jobs", "GenerateMonthlyPayroll", "check payroll", nil, err)
			continue
		}
		if exists {
			skipped++
			continue
		}

		present, err := s.HR.CountPresentDays(ctx, employee.ID, periodFrom, periodTo)
		if err != nil {
			logging.LogError(log, "jobs", "GenerateMonthlyPayroll", "count present days", nil, err)
			continue
		}

		record := &model.PayrollRecord{
			EmployeeID:    employee.ID,
			PayrollStatus: model.PayrollStatusPending,
			PeriodFrom:    periodFrom,
			PeriodTo:      periodTo,
			WorkingDays:   workingDays,
			DaysPresent:   present,
			NetAmount:     NetPay(employee.MonthlySalary, workingDays, present),
			Notes:         "Auto-generated payroll for " + month,
			CreatedByID:   createdBy,
		}
		if err := s.HR.CreatePayroll(ctx, record); err != nil {
			logging.LogError(log, "jobs", "GenerateMonthlyPayroll", "create payroll", nil, err)
			continue
		}
		created++
	}

	if created > 0 {
		s.notifyOwners(ctx,
			"Monthly Payroll Generated",
			fmt.Sprintf("Monthly payroll records have been generated for %d employee(s) for %s", created, month),
			model.NotificationTypePayroll,
		)
	}

	return Result{
		Status: StatusSuccess,
		Date:   dateString(today),
		Counts: map[string]int{"created": created, "skipped": skipped, "total_employees": len(employees)},
	}, nil
}

// WorkingDays counts Monday to Friday in [from, to].
func WorkingDays(from, to time.Time) int {
	days := 0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days++
		}
	}
	return days
}

// NetPay is salary / workingDays * present, rounded half-even to cents.
func NetPay(salary decimal.Decimal, workingDays, present int) decimal.Decimal {
	if workingDays <= 0 {
		return decimal.Zero
	}
	return salary.Div(decimal.NewFromInt(int64(workingDays))).Mul(decimal.NewFromInt(int64(present))).RoundBank(2)
}
