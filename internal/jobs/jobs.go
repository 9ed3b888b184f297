// Package jobs holds the periodic business jobs and the runner that fires
// them on their cron schedules.
package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"bizadmin-backend/internal/logging"
	"bizadmin-backend/internal/model"
	"bizadmin-backend/internal/notify"
	"bizadmin-backend/internal/repository"
)

const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
)

// Result summarises one run for logs and the CLI.
type Result struct {
	Status string         `json:"status"`
	Reason string         `json:"reason,omitempty"`
	Date   string         `json:"date,omitempty"`
	Counts map[string]int `json:"counts,omitempty"`
}

type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) (Result, error)
}

// OwnerNotifier broadcasts a job outcome to the superusers.
type OwnerNotifier interface {
	NotifyOwners(ctx context.Context, title, message string, notificationType model.NotificationType) (int, error)
}

type Deps struct {
	Users         *repository.UserRepository
	HR            *repository.HRRepository
	AMC           *repository.AMCRepository
	Tenders       *repository.TenderRepository
	Notifications *repository.NotificationRepository
	Owners        OwnerNotifier
	Push          func() (*notify.PushClient, error)
	Location      *time.Location
	Now           func() time.Time
	Logger        logrus.FieldLogger
}

// Set binds the job bodies to their collaborators.
type Set struct {
	Deps
}

func NewSet(deps Deps) *Set {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	return &Set{Deps: deps}
}

func (s *Set) All() []Job {
	return []Job{
		{Name: "mark-absent-employees", Spec: "40 23 * * 1-6", Run: s.MarkAbsentEmployees},
		{Name: "generate-amc-billing", Spec: "0 0 * * *", Run: s.GenerateAMCBilling},
		{Name: "generate-monthly-payroll", Spec: "0 23 * * *", Run: s.GenerateMonthlyPayroll},
		{Name: "auto-close-awarded-tenders", Spec: "0 1 * * *", Run: s.AutoCloseAwardedTenders},
		{Name: "send-scheduled-notifications", Spec: "@every 5m", Run: s.SendScheduledNotifications},
	}
}

// today is the local calendar date as UTC midnight, the form date columns
// are stored in.
func (s *Set) today() time.Time {
	return civilDate(s.Now().In(s.Location))
}

func (s *Set) systemUserID(ctx context.Context) (*uint, error) {
	owners, err := s.Users.ListSuperusers(ctx)
	if err != nil {
		return nil, err
	}
	if len(owners) == 0 {
		s.Logger.Warn("no superuser found, records will have no creator")
		return nil, nil
	}
	id := owners[0].ID
	return &id, nil
}

func (s *Set) notifyOwners(ctx context.Context, title, message string, notificationType model.NotificationType) int {
	if s.Owners == nil {
		return 0
	}
	n, err := s.Owners.NotifyOwners(ctx, title, message, notificationType)
	if err != nil {
		logging.LogError(s.Logger, "jobs", "notifyOwners", title, nil, err)
	}
	return n
}

// civilDate drops the clock and zone of a date column value.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dateString(t time.Time) string {
	return t.Format(time.DateOnly)
}
