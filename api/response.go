package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/garnizeh/taosdlc/internal/workflow"
	"github.com/garnizeh/taosdlc/pkg/repository"
	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response", slog.Any("err", err))
	}
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	writeJSON(w, errorResponse{Error: code, Message: message, Details: details}, status)
}

func badRequest(w http.ResponseWriter, message string) {
	writeErrorCode(w, http.StatusBadRequest, "bad_request", message, nil)
}

// writeError maps workflow errors to HTTP statuses. Unknown errors are logged
// and reported as 500 without their text.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		terr *workflow.TransitionError
		verr *workflow.ValidationError
	)
	switch {
	case errors.As(err, &verr):
		writeErrorCode(w, http.StatusBadRequest, "validation_error", verr.Error(), map[string]any{"field": verr.Field})
	case errors.As(err, &terr):
		writeErrorCode(w, http.StatusConflict, "invalid_transition", terr.Error(), map[string]any{
			"current":   terr.Current,
			"requested": terr.Requested,
			"reason":    terr.Reason,
		})
	case errors.Is(err, workflow.ErrValidation):
		writeErrorCode(w, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, workflow.ErrNotAuthorized):
		writeErrorCode(w, http.StatusForbidden, "not_authorized", err.Error(), nil)
	case errors.Is(err, workflow.ErrNotFound):
		writeErrorCode(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, workflow.ErrInvalidTransition):
		writeErrorCode(w, http.StatusConflict, "invalid_transition", err.Error(), nil)
	case errors.Is(err, workflow.ErrAlreadyResolved):
		writeErrorCode(w, http.StatusConflict, "already_resolved", err.Error(), nil)
	case errors.Is(err, workflow.ErrDuplicateApprovalRequest):
		writeErrorCode(w, http.StatusConflict, "duplicate_approval_request", err.Error(), nil)
	case errors.Is(err, workflow.ErrAlreadyAccepted):
		writeErrorCode(w, http.StatusConflict, "already_accepted", err.Error(), nil)
	case errors.Is(err, repository.ErrDuplicate):
		writeErrorCode(w, http.StatusConflict, "duplicate", err.Error(), nil)
	default:
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request_id", RequestIDFromContext(r.Context())),
			slog.Any("err", err),
		)
		writeErrorCode(w, http.StatusInternalServerError, "internal_error", "internal server error", nil)
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	return nil
}

// pathID parses a positive integer route variable.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// pagination reads limit and offset query params.
func pagination(r *http.Request) (int, int) {
	q := r.URL.Query()
	limit := 50
	if l := q.Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}
	offset := 0
	if o := q.Get("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}
