package services

import (
	"github.com/iota-uz/sheet-importer/pkg/serrors"
)

var (
	ErrLoadFailure = serrors.NewError("LOAD_FAILURE", "bulk load failed", "Errors.LoadFailure")
	ErrCancelled   = serrors.NewError("IMPORT_CANCELLED", "import cancelled", "Errors.ImportCancelled")
)
