package pricesource

import (
	"errors"
	"fmt"

	"MetalPulse/internal/domain/models"
	xhttp "MetalPulse/pkg/http"
)

// SourceError wraps a failed upstream fetch.
type SourceError struct {
	Source    string
	Err       error
	Retryable bool
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() []error {
	return []error{models.ErrSourceUnavailable, e.Err}
}

func newSourceError(source string, err error) *SourceError {
	retryable := true
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		retryable = se.StatusCode == 429 || se.StatusCode >= 500
	}
	return &SourceError{Source: source, Err: err, Retryable: retryable}
}

func isRateLimited(err error) bool {
	var se *xhttp.StatusError
	return errors.As(err, &se) && se.StatusCode == 429
}
