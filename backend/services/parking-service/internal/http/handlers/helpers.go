package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"parkwise/backend/services/parking-service/internal/clients"
	"parkwise/backend/services/parking-service/internal/command"
	"parkwise/backend/services/parking-service/internal/models"
	"parkwise/backend/services/parking-service/internal/store"
)

// TerminalHeader identifies the operator terminal issuing interactive lookups.
const TerminalHeader = "X-Terminal-ID"

const (
	codeSuperseded  = "SUPERSEDED"
	codeUnavailable = "BACKEND_UNAVAILABLE"
	codeInternal    = "INTERNAL"
	codeBadRequest  = "BAD_REQUEST"
	maxBodyBytes    = 1 << 20
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, clients.ErrorBody{Error: message, Code: code})
}

// errorStatus maps a domain error to its HTTP status and wire code.
func errorStatus(err error) (int, string) {
	var v *models.ValidationError
	if errors.As(err, &v) {
		switch v.Code {
		case models.CodeUnknownTicket, models.CodeNotFound:
			return http.StatusNotFound, string(v.Code)
		case models.CodeTicketAlreadyInUse, models.CodePlateAlreadyActive, models.CodeTariffExists, models.CodeOperationInProgress:
			return http.StatusConflict, string(v.Code)
		default:
			return http.StatusBadRequest, string(v.Code)
		}
	}
	switch {
	case errors.Is(err, store.ErrSuperseded):
		return http.StatusConflict, codeSuperseded
	case errors.Is(err, command.ErrBackendUnavailable):
		return http.StatusServiceUnavailable, codeUnavailable
	}
	var remote *command.RemoteError
	if errors.As(err, &remote) && remote.StatusCode >= 500 {
		return http.StatusBadGateway, codeUnavailable
	}
	return http.StatusInternalServerError, codeInternal
}

func respondError(w http.ResponseWriter, logger *zap.Logger, op string, err error) {
	status, code := errorStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		logger.Error(op+" failed", zap.Error(err))
		if status == http.StatusInternalServerError {
			message = "internal error"
		}
	}
	writeError(w, status, code, message)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func intQuery(r *http.Request, key string, def int) (int, error) {
	val := strings.TrimSpace(r.URL.Query().Get(key))
	if val == "" {
		return def, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, models.NewValidationError(models.CodeInvalidArgument, "%s must be an integer", key)
	}
	return n, nil
}

func pageQuery(r *http.Request) (models.Page, error) {
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		return models.Page{}, err
	}
	offset, err := intQuery(r, "offset", 0)
	if err != nil {
		return models.Page{}, err
	}
	return models.Page{Limit: limit, Offset: offset}.Normalized(), nil
}

// dateQuery parses key as a calendar date in loc; missing means today.
func dateQuery(r *http.Request, key string, loc *time.Location) (time.Time, error) {
	val := strings.TrimSpace(r.URL.Query().Get(key))
	if val == "" {
		now := time.Now().In(loc)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc), nil
	}
	date, err := time.ParseInLocation(clients.DateLayout, val, loc)
	if err != nil {
		return time.Time{}, models.NewValidationError(models.CodeInvalidArgument, "%s must look like %s", key, clients.DateLayout)
	}
	return date, nil
}

func decimalQuery(r *http.Request, key string) (*decimal.Decimal, error) {
	val := strings.TrimSpace(r.URL.Query().Get(key))
	if val == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(val)
	if err != nil {
		return nil, models.NewValidationError(models.CodeInvalidArgument, "%s must be a number", key)
	}
	return &d, nil
}

func orNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
