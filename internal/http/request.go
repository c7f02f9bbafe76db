package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"ispledger/internal/core"
)

// maxBodyBytes bounds JSON request bodies. Spreadsheets and whole diagrams
// use maxDocumentBytes.
const (
	maxBodyBytes     = 1 << 20
	maxDocumentBytes = 32 << 20
)

var errEmptyBody = errors.New("request body is empty")

// decode reads a JSON body into dst and validates struct tags.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	return s.decodeLimit(w, r, dst, maxBodyBytes)
}

func (s *Server) decodeLimit(w http.ResponseWriter, r *http.Request, dst any, limit int64) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %w", core.ErrValidation, errEmptyBody)
		}
		return fmt.Errorf("%w: malformed JSON: %v", core.ErrValidation, err)
	}
	if isStruct(dst) {
		if err := s.validate.Struct(dst); err != nil {
			return err
		}
	}
	return nil
}

func isStruct(v any) bool {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t != nil && t.Kind() == reflect.Struct
}

// monthParam reads ?month=YYYY-MM, falling back to the current view month.
func (s *Server) monthParam(r *http.Request) (string, error) {
	month := strings.TrimSpace(r.URL.Query().Get("month"))
	if month == "" {
		return s.store.Snapshot().CurrentViewMonth, nil
	}
	if _, err := core.ParseMonthKey(month); err != nil {
		return "", err
	}
	return month, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", core.ErrValidation, name)
	}
	return n, nil
}

func boolParam(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
