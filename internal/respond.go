package internal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"itam-api/internal/auth"
	"itam-api/internal/validation"
)

const maxBodyBytes = 1 << 20

// Sentinel errors shared by handlers. Each maps to a fixed status in writeDBError.
var (
	errNotFound            = errors.New("not found")
	errNoLicensesAvailable = errors.New("no licenses available")
	errAlreadyAssigned     = errors.New("already assigned")
	errUnknownModel        = errors.New("asset model does not exist")
	errUnknownPerson       = errors.New("person does not exist or is inactive")
	errUnknownAsset        = errors.New("asset does not exist")
	errUnknownReference    = errors.New("referenced record does not exist")
	errNotPending          = errors.New("purchase order is no longer pending")
)

// Postgres SQLSTATE codes we answer with a client error.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

type validationErrorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code"`
	Fields validation.Errors `json:"fields"`
}

type pageInfo struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

type listResponse struct {
	Data any      `json:"data"`
	Page pageInfo `json:"page"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	auth.WriteError(w, status, code, message)
}

// sendListResponse writes the paged list envelope. A nil slice is sent as [].
func sendListResponse[T any](w http.ResponseWriter, data []T, p listParams, total int) {
	if data == nil {
		data = []T{}
	}
	writeJSON(w, http.StatusOK, listResponse{
		Data: data,
		Page: pageInfo{Limit: p.limit, Offset: p.offset, Total: total},
	})
}

// decode reads a JSON body into dst and validates it. On failure it has
// already written the 400 response.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body: "+err.Error())
		return false
	}
	if err := s.Validator.Struct(dst); err != nil {
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusBadRequest, validationErrorResponse{
				Error:  "Validation failed",
				Code:   "VALIDATION_FAILED",
				Fields: verrs,
			})
			return false
		}
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return false
	}
	return true
}

// pathID parses a positive integer URL parameter, answering 400 otherwise.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid "+name)
		return 0, false
	}
	return id, true
}

// writeDBError maps storage errors to responses. what names the resource in messages.
func (s *Server) writeDBError(w http.ResponseWriter, r *http.Request, err error, what string) {
	switch {
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, errNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", what+" not found")
		return
	case errors.Is(err, errNoLicensesAvailable):
		writeError(w, http.StatusConflict, "NO_LICENSES_AVAILABLE", "No licenses available for this title")
		return
	case errors.Is(err, errUnknownModel), errors.Is(err, errUnknownPerson), errors.Is(err, errUnknownAsset),
		errors.Is(err, errUnknownReference):
		writeError(w, http.StatusBadRequest, "INVALID_REFERENCE", err.Error())
		return
	case errors.Is(err, errNotPending):
		writeError(w, http.StatusConflict, "INVALID_STATE", err.Error())
		return
	case errors.Is(err, errAlreadyAssigned):
		writeError(w, http.StatusConflict, "ALREADY_ASSIGNED", "This person already holds a license for this title")
		return
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			writeError(w, http.StatusConflict, "CONFLICT", what+" already exists")
			return
		case pgForeignKeyViolation:
			if r.Method == http.MethodDelete {
				writeError(w, http.StatusConflict, "IN_USE", what+" is still referenced")
				return
			}
			writeError(w, http.StatusBadRequest, "INVALID_REFERENCE", "Referenced record does not exist")
			return
		case pgCheckViolation:
			writeError(w, http.StatusBadRequest, "INVALID_VALUE", "Value violates constraint "+pgErr.ConstraintName)
			return
		}
	}

	s.Log.Error("database error",
		zap.String("resource", what),
		zap.String("request_id", requestIDFrom(r.Context())),
		zap.Error(err))
	writeError(w, http.StatusInternalServerError, "INTERNAL", "Internal server error")
}

// isUniqueViolation reports whether err is a Postgres unique violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
