package app

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrFirmNotFound        = fmt.Errorf("%w: firm does not exist", ErrInvalidInput)
	ErrUnsupportedFileType = errors.New("invalid file type, only PDF and DOCX are allowed")

	ErrNotFound           = errors.New("not found")
	ErrTemplateNotFound   = fmt.Errorf("template %w", ErrNotFound)
	ErrVersionNotFound    = fmt.Errorf("version %w", ErrNotFound)
	ErrNoPublishedVersion = fmt.Errorf("published version %w", ErrNotFound)

	ErrNoSelection  = errors.New("please provide either version_ids or template_ids")
	ErrEmptyArchive = errors.New("no files found to download")

	ErrStorageFailure      = errors.New("storage failure")
	ErrTransactionConflict = errors.New("concurrent update conflict, please retry")

	ErrUsernameExists    = errors.New("username already exists")
	ErrEmailExists       = errors.New("email already exists")
	ErrInvalidCredential = errors.New("invalid username or password")
)

func invalidInput(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}

func storageFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageFailure, op, err)
}
