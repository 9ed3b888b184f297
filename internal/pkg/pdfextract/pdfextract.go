package pdfextract

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
)

var ErrEmptyDocument = errors.New("empty pdf document")

// PageCount parses the whole document held in data and returns its page count.
// The parser panics on some malformed inputs; those surface as errors.
func PageCount(data []byte) (pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = 0, fmt.Errorf("parse pdf failed: %v", r)
		}
	}()
	if len(data) == 0 {
		return 0, ErrEmptyDocument
	}
	pdfReader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, err
	}
	return pdfReader.NumPage(), nil
}
