package jobs

import (
	"context"

	"bizadmin-backend/internal/logging"
	"bizadmin-backend/internal/model"
)

func (s *Set) AutoCloseAwardedTenders(ctx context.Context) (Result, error) {
	today := s.today()

	tenders, err := s.Tenders.ListAwardedEndedBefore(ctx, today)
	if err != nil {
		return Result{}, err
	}
	if len(tenders) == 0 {
		return Result{Status: StatusSkipped, Reason: "No tenders to close", Date: dateString(today)}, nil
	}

	closed := 0
	for _, tender := range tenders {
		if err := s.Tenders.UpdateStatus(ctx, tender.ID, model.TenderStatusClosed); err != nil {
			logging.LogError(s.Logger, "jobs", "AutoCloseAwardedTenders", "close tender", tender.ID, err)
			continue
		}
		closed++
	}

	return Result{
		Status: StatusSuccess,
		Date:   dateString(today),
		Counts: map[string]int{"closed": closed},
	}, nil
}
