package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bizadmin-backend/internal/logging"
	"bizadmin-backend/internal/model"
)

// BillingPeriod is one completed slice of an AMC contract.
type BillingPeriod struct {
	From   time.Time
	To     time.Time
	Amount decimal.Decimal
}

var (
	periodsPerYear = map[model.BillingCycle]int{
		model.BillingMonthly:    12,
		model.BillingQuarterly:  4,
		model.BillingHalfYearly: 2,
		model.BillingYearly:     1,
	}
	monthsPerPeriod = map[model.BillingCycle]int{
		model.BillingMonthly:    1,
		model.BillingQuarterly:  3,
		model.BillingHalfYearly: 6,
		model.BillingYearly:     12,
	}
)

type amcSummary struct {
	number string
	client string
	bills  int
}

// GenerateAMCBilling bills every completed period of the active contracts
// that has no billing row yet.
func (s *Set) GenerateAMCBilling(ctx context.Context) (Result, error) {
	today := s.today()

	amcs, err := s.AMC.ListActive(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(amcs) == 0 {
		return Result{Status: StatusSkipped, Reason: "No active AMCs found", Date: dateString(today)}, nil
	}

	createdBy, err := s.systemUserID(ctx)
	if err != nil {
		return Result{}, err
	}

	total := 0
	var processed []amcSummary
	for _, amc := range amcs {
		if civilDate(amc.EndDate).Before(today) {
			continue
		}

		bills := 0
		for _, period := range BillingPeriods(amc, today) {
			exists, err := s.AMC.BillingExists(ctx, amc.ID, period.From, period.To)
			if err != nil {
				logging.LogError(s.Logger, "jobs", "GenerateAMCBilling", "check billing", amc.AMCNumber, err)
				break
			}
			if exists {
				continue
			}

			billNumber, err := s.nextBillNumber(ctx, amc, period.From)
			if err != nil {
				logging.LogError(s.Logger, "jobs", "GenerateAMCBilling", "bill number", amc.AMCNumber, err)
				break
			}
			err = s.AMC.CreateBilling(ctx, &model.AMCBilling{
				AMCID:       amc.ID,
				BillNumber:  billNumber,
				BillDate:    today,
				PeriodFrom:  period.From,
				PeriodTo:    period.To,
				Amount:      period.Amount,
				CreatedByID: createdBy,
			})
			if err != nil {
				logging.LogError(s.Logger, "jobs", "GenerateAMCBilling", "create billing", billNumber, err)
				break
			}
			bills++
		}

		if bills > 0 {
			total += bills
			processed = append(processed, amcSummary{number: amc.AMCNumber, client: amc.ClientName, bills: bills})
		}
	}

	notified := 0
	if total > 0 {
		notified = s.notifyOwners(ctx, "New AMC Billing Records Generated", billingMessage(total, processed), model.NotificationTypeAMC)
	}

	return Result{
		Status: StatusSuccess,
		Date:   dateString(today),
		Counts: map[string]int{"bills_created": total, "amcs_billed": len(processed), "notifications_sent": notified},
	}, nil
}

// BillingPeriods lists the periods of a contract that ended on or before today.
func BillingPeriods(amc model.AMC, today time.Time) []BillingPeriod {
	perYear, ok := periodsPerYear[amc.BillingCycle]
	if !ok {
		perYear = 4
	}
	months, ok := monthsPerPeriod[amc.BillingCycle]
	if !ok {
		months = 3
	}

	startDate, endDate := civilDate(amc.StartDate), civilDate(amc.EndDate)
	days := int(endDate.Sub(startDate).Hours()/24) + 1
	totalPeriods := int(float64(perYear) * float64(days) / 365.25)
	if totalPeriods < 1 {
		totalPeriods = 1
	}
	amount := amc.Amount.Div(decimal.NewFromInt(int64(totalPeriods))).RoundBank(2)

	var periods []BillingPeriod
	for start := startDate; !start.After(endDate); {
		end := addMonths(start, months).AddDate(0, 0, -1)
		if end.After(endDate) {
			end = endDate
		}
		if !end.After(today) {
			periods = append(periods, BillingPeriod{From: start, To: end, Amount: amount})
		}
		start = end.AddDate(0, 0, 1)
	}
	return periods
}

// BillNumber is AMC-{number}-{YYYY}-{MM}-{n}, n being the period index
// within the year for the contract's cycle.
func BillNumber(amc model.AMC, periodFrom time.Time) string {
	month := int(periodFrom.Month())
	n := 1
	switch amc.BillingCycle {
	case model.BillingMonthly:
		n = month
	case model.BillingQuarterly:
		n = (month-1)/3 + 1
	case model.BillingHalfYearly:
		n = (month-1)/6 + 1
	}
	return fmt.Sprintf("AMC-%s-%d-%02d-%d", amc.AMCNumber, periodFrom.Year(), month, n)
}

func (s *Set) nextBillNumber(ctx context.Context, amc model.AMC, periodFrom time.Time) (string, error) {
	base := BillNumber(amc, periodFrom)
	candidate := base
	for counter := 1; ; counter++ {
		exists, err := s.AMC.BillNumberExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, counter)
	}
}

// addMonths moves by whole months, clamping to the last day of the target
// month.
func addMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	if last := first.AddDate(0, 1, -1).Day(); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
}

func billingMessage(total int, processed []amcSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d new AMC billing record(s) have been generated automatically.\n\nAMCs processed:\n", total)
	for _, amc := range processed {
		fmt.Fprintf(&b, "- AMC %s (%s): %d bill(s)\n", amc.number, amc.client, amc.bills)
	}
	return b.String()
}
