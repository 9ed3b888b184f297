package model

// AllModels is the migration set used by bootstrap and tests.
func AllModels() []any {
	return []any{
		&User{}, &Firm{}, &DocumentTemplate{}, &DocumentVersion{}, &Notification{},
		&Employee{}, &Attendance{}, &PayrollRecord{}, &AMC{}, &AMCBilling{}, &Tender{},
	}
}
