package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"ispledger/internal/auth"
	"ispledger/internal/backup"
	"ispledger/internal/console"
	"ispledger/internal/core"
	"ispledger/internal/diagram"
	"ispledger/internal/log"
	"ispledger/internal/schema"
	"ispledger/internal/storage"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error  string            `json:"error"`
	Code   string            `json:"code"`
	Fields map[string]string `json:"fields,omitempty"`
}

// ResponseBuilder writes a JSON response.
type ResponseBuilder struct {
	status  int
	body    any
	headers map[string]string
}

func JSON(status int, body any) *ResponseBuilder {
	return &ResponseBuilder{status: status, body: body, headers: map[string]string{}}
}

func OK(body any) *ResponseBuilder { return JSON(http.StatusOK, body) }

func Created(body any) *ResponseBuilder { return JSON(http.StatusCreated, body) }

func NoContent() *ResponseBuilder { return JSON(http.StatusNoContent, nil) }

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for k, v := range b.headers {
		w.Header().Set(k, v)
	}
	if b.body == nil {
		w.WriteHeader(b.status)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.status)
	_ = json.NewEncoder(w).Encode(b.body)
}

func errorResponse(status int, code, message string) *ResponseBuilder {
	return JSON(status, ErrorBody{Error: message, Code: code})
}

func BadRequest(message string) *ResponseBuilder {
	return errorResponse(http.StatusBadRequest, log.ErrorTypeValidation, message)
}

func Unauthorized(message string) *ResponseBuilder {
	return errorResponse(http.StatusUnauthorized, log.ErrorTypeAuth, message)
}

func NotFound(message string) *ResponseBuilder {
	return errorResponse(http.StatusNotFound, log.ErrorTypeNotFound, message)
}

func InternalError() *ResponseBuilder {
	return errorResponse(http.StatusInternalServerError, log.ErrorTypeInternal, "internal error")
}

// validationResponse lists the failing fields by their JSON names.
func validationResponse(errs validator.ValidationErrors) *ResponseBuilder {
	fields := make(map[string]string, len(errs))
	for _, fe := range errs {
		fields[fe.Field()] = fe.Tag()
	}
	return JSON(http.StatusUnprocessableEntity, ErrorBody{
		Error:  "validation failed",
		Code:   log.ErrorTypeValidation,
		Fields: fields,
	})
}

var validationErrors = []error{
	core.ErrValidation, core.ErrInvalidMonthKey, core.ErrInvalidDate,
	core.ErrInvalidAmount, core.ErrEmptyName, core.ErrEmptyUsername,
	core.ErrEmptyDescription, core.ErrInvalidExpenseType, core.ErrInvalidQuantity,
	diagram.ErrSelfLink, console.ErrNotAllowed, console.ErrInvalidArg,
	schema.ErrUnsupportedVersion, auth.ErrEmptySecret,
}

var conflictErrors = []error{
	core.ErrDuplicateMonth, core.ErrDuplicateUsername, core.ErrInsufficientStock,
	core.ErrClientArchived, diagram.ErrDuplicateLink, diagram.ErrNothingToUndo,
	diagram.ErrNothingToRedo, core.ErrStale,
}

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// FromError maps domain errors to responses. Unknown errors are 500s and
// their text is not exposed.
func FromError(err error) *ResponseBuilder {
	var (
		verrs  validator.ValidationErrors
		tooBig *http.MaxBytesError
	)
	switch {
	case errors.As(err, &verrs):
		return validationResponse(verrs)
	case errors.As(err, &tooBig):
		return errorResponse(http.StatusRequestEntityTooLarge, log.ErrorTypeValidation, "request body too large")
	case errors.Is(err, core.ErrNotFound), errors.Is(err, backup.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return NotFound(err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrWrongAnswer),
		errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return Unauthorized(err.Error())
	case isAny(err, conflictErrors):
		return errorResponse(http.StatusConflict, log.ErrorTypeConflict, err.Error())
	case isAny(err, validationErrors):
		return errorResponse(http.StatusUnprocessableEntity, log.ErrorTypeValidation, err.Error())
	default:
		return InternalError()
	}
}
