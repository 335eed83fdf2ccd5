package core

import (
	"errors"
	"fmt"
)

// Validation errors raised by the ingestion pipeline before any artifact is
// produced. The API layer maps each to a distinct response; everything else
// that goes wrong mid-run is folded into a FAILED result instead.
var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrInvalidDocument   = errors.New("document could not be parsed")
	ErrPageOutOfRange    = errors.New("page number out of range")
	ErrIngestInProgress  = errors.New("ingestion already in progress for this document")
	ErrBlobNotFound      = errors.New("object not found in storage")
)

// TooManyPagesError rejects documents above the synchronous processing
// ceiling. Carries both counts so the boundary layer can report them.
type TooManyPagesError struct {
	Pages int
	Limit int
}

func (e *TooManyPagesError) Error() string {
	return fmt.Sprintf("document has %d pages, exceeds limit of %d", e.Pages, e.Limit)
}
