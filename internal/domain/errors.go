package domain

import (
	"errors"
	"net/http"
)

// Error kinds shared by the optimization pipeline and its collaborators.
// Callers wrap them with fmt.Errorf("%w: ...") and classify with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrData       = errors.New("data error")
	ErrDataFetch  = errors.New("data fetch error")
	ErrInfeasible = errors.New("optimization infeasible")
	ErrSolver     = errors.New("solver error")
)

// ErrorKind is the stable, machine-readable name of an error kind.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindData       ErrorKind = "data"
	KindDataFetch  ErrorKind = "data_fetch"
	KindInfeasible ErrorKind = "infeasible"
	KindSolver     ErrorKind = "solver"
	KindInternal   ErrorKind = "internal"
)

// Kind classifies err. Errors outside the taxonomy are internal.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrDataFetch):
		return KindDataFetch
	case errors.Is(err, ErrData):
		return KindData
	case errors.Is(err, ErrInfeasible):
		return KindInfeasible
	case errors.Is(err, ErrSolver):
		return KindSolver
	default:
		return KindInternal
	}
}

// HTTPStatus maps the kind to the status code returned by the API.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindData, KindInfeasible:
		return http.StatusUnprocessableEntity
	case KindDataFetch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
