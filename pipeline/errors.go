package pipeline

import (
	"errors"
	"net/http"

	"github.com/jonwraymond/pipecache/source"
)

var (
	// ErrResourceNotFound reports an upstream source that does not exist.
	ErrResourceNotFound = source.ErrNotFound

	// ErrRangeNotSatisfiable reports a malformed or unsatisfiable Range header.
	ErrRangeNotSatisfiable = errors.New("pipeline: range not satisfiable")

	// ErrClientReset reports that the client stopped reading the response.
	ErrClientReset = errors.New("pipeline: client stream reset")

	// ErrNoStages is returned when a pipeline has nothing to run.
	ErrNoStages = errors.New("pipeline: no stages")

	// ErrInvalidParameter reports a sitemap parameter that cannot be parsed.
	ErrInvalidParameter = errors.New("pipeline: invalid parameter")
)

// StatusFor maps an error returned by Setup or Process to an HTTP status.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrResourceNotFound), errors.Is(err, source.ErrUnsupportedScheme):
		return http.StatusNotFound
	case errors.Is(err, ErrRangeNotSatisfiable):
		return http.StatusRequestedRangeNotSatisfiable
	case errors.Is(err, ErrInvalidParameter):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
