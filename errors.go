package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

var (
	errNotFound        = errors.New("not found")
	errForbidden       = errors.New("forbidden")
	errVersionMismatch = errors.New("version mismatch")
	errMacroMismatch   = errors.New("macro mismatch")
	errFoodArchived    = errors.New("food is archived")
	errInvalid         = errors.New("invalid input")
)

// validationError is a 400 with a client-facing message.
type validationError struct{ msg string }

func (e *validationError) Error() string { return e.msg }
func (e *validationError) Unwrap() error { return errInvalid }

func invalidf(format string, args ...any) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}

// macroMismatchError reports stated calories that disagree with the macros.
type macroMismatchError struct {
	Stated   int
	Computed float64
}

func (e *macroMismatchError) Error() string {
	return fmt.Sprintf("calories (%d) do not match macros (%.0f kcal from protein, carbs and fat)", e.Stated, e.Computed)
}
func (e *macroMismatchError) Unwrap() error { return errMacroMismatch }

// versionMismatchError carries the current row version so the caller can
// return it as the ETag of the 412 response.
type versionMismatchError struct{ Current int64 }

func (e *versionMismatchError) Error() string { return "food was modified by another request" }
func (e *versionMismatchError) Unwrap() error { return errVersionMismatch }

// respondError maps a service error to an HTTP response. notFoundMsg is used
// for errNotFound / pgx.ErrNoRows; fallback is logged and returned as a 500.
func (h *Handler) respondError(c *gin.Context, err error, notFoundMsg, fallback string) {
	var ve *validationError
	var mm *macroMismatchError
	var vm *versionMismatchError
	var pgErr *pgconn.PgError

	switch {
	case errors.As(err, &ve):
		apiError(c, http.StatusBadRequest, ve.msg)
	case errors.As(err, &mm):
		apiError(c, http.StatusUnprocessableEntity, mm.Error())
	case errors.As(err, &vm):
		c.Header("ETag", encodeRowVersion(vm.Current))
		apiError(c, http.StatusPreconditionFailed, vm.Error())
	case errors.Is(err, errNotFound), errors.Is(err, pgx.ErrNoRows):
		apiError(c, http.StatusNotFound, notFoundMsg)
	case errors.Is(err, errForbidden):
		apiError(c, http.StatusForbidden, "shared catalogue foods cannot be modified")
	case errors.Is(err, errFoodArchived):
		apiError(c, http.StatusConflict, "archived foods cannot be logged")
	case errors.As(err, &pgErr) && (pgErr.Code == "23505" || pgErr.Code == "23503"):
		apiError(c, http.StatusConflict, "conflicts with existing data")
	default:
		h.log.Error(fallback, zap.String("path", c.FullPath()), zap.Error(err))
		apiError(c, http.StatusInternalServerError, fallback)
	}
}
