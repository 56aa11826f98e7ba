package catalog

import (
	"errors"
	"fmt"
)

// ErrFetchFailed matches every FetchFailedError via errors.Is.
var ErrFetchFailed = errors.New("catalog fetch failed")

// FetchFailedError is returned when the source catalog cannot be retrieved
// or decoded. StatusCode is zero for transport and decode failures.
type FetchFailedError struct {
	StatusCode int
	Err        error
}

func (e *FetchFailedError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d", ErrFetchFailed, e.StatusCode)
	}
	return fmt.Errorf("%w: %w", ErrFetchFailed, e.Err).Error()
}

func (e *FetchFailedError) Unwrap() error {
	return e.Err
}

// Is reports ErrFetchFailed as a match.
func (e *FetchFailedError) Is(target error) bool {
	return target == ErrFetchFailed
}
