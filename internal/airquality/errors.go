package airquality

import (
	"errors"
	"fmt"
)

// Pipeline and query errors.
var (
	ErrUpstreamAcquisition = errors.New("upstream acquisition failed")
	ErrShapeMismatch       = errors.New("grid shape mismatch")
	ErrNoValidData         = errors.New("no valid data points")
	ErrStoreUnavailable    = errors.New("durable store unavailable")
	ErrCacheUnavailable    = errors.New("cache unavailable")
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("no point within radius")
	ErrNoData              = errors.New("no data available")
	ErrCacheMiss           = errors.New("cache miss")
)

// ShapeMismatchError reports a variable whose shape disagrees with the
// coordinate grid.
type ShapeMismatchError struct {
	Variable string
	Want     [2]int
	Got      [2]int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("%s: shape %dx%d does not match coordinate grid %dx%d",
		e.Variable, e.Got[0], e.Got[1], e.Want[0], e.Want[1])
}

// Is reports ErrShapeMismatch as the matching sentinel.
func (e *ShapeMismatchError) Is(target error) bool {
	return target == ErrShapeMismatch
}

// ValidationError reports a malformed query parameter.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Is reports ErrValidation as the matching sentinel.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
