package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"repolens/internal/apperr"
)

type errorBody struct {
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
}

func statusOf(code apperr.Code) int {
	switch code {
	case apperr.CodeInvalidRepositoryRef, apperr.CodeInvalidArgument:
		return http.StatusBadRequest
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeAccessDenied:
		return http.StatusForbidden
	case apperr.CodeDependencyNotReady, apperr.CodeTaskRunning:
		return http.StatusConflict
	case apperr.CodeDependencyFailed:
		return http.StatusFailedDependency
	case apperr.CodeContentUnavailable:
		return http.StatusUnprocessableEntity
	case apperr.CodeQuotaExceeded:
		return http.StatusTooManyRequests
	case apperr.CodeSessionClosed:
		return http.StatusGone
	case apperr.CodeGatewayExhausted:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	msg := err.Error()
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	status := statusOf(code)
	if status >= http.StatusInternalServerError {
		log.Printf("server: %v", err)
	}
	writeJSON(w, status, errorBody{Code: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
