package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Store groups the repositories that must share one transaction.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Templates() *TemplateRepository {
	return NewTemplateRepository(s.db)
}

func (s *Store) Versions() *VersionRepository {
	return NewVersionRepository(s.db)
}

func (s *Store) Firms() *FirmRepository {
	return NewFirmRepository(s.db)
}

// InTx runs fn inside one database transaction. Conflicts raised by the
// commit itself are reported as ErrConflict.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConflict) {
		return err
	}
	if isConflict(err) {
		return wrapWrite("commit transaction", err)
	}
	return err
}

// LocksRows reports whether SELECT ... FOR UPDATE is meaningful on this dialect.
func (s *Store) LocksRows() bool {
	return s.db.Dialector.Name() == "mysql"
}
