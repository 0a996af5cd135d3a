package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vbonduro/photographies/internal/domain"
)

const (
	msgUploaded         = "Photography uploaded successfully"
	msgUploadedMany     = "Photographies uploaded successfully"
	msgRetrievedMany    = "Photographies retrieved successfully"
	msgRetrieved        = "Photography retrieved successfully"
	msgDeleted          = "Photography deleted successfully"
	msgDeletedMany      = "Photographies deleted successfully"
	msgNotFound         = "Photography not found"
	msgInternal         = "Internal server error"
	msgInvalidID        = "Validation failed (uuid is expected)"
	msgInvalidBody      = "Invalid request body"
	msgFileRequired     = "File is required"
	msgUnsupportedImage = "Validation failed (expected type is .(png|jpeg|jpg|webp))"
)

type envelope struct {
	Data    any    `json:"data"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Data       any    `json:"data"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, envelope{Data: data, Message: message})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorEnvelope{Message: message, StatusCode: status})
}

// writeServiceError maps a service error onto an HTTP status. Client facing
// failures keep their message; anything unclassified is logged and hidden.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, msgNotFound)
	case errors.Is(err, domain.ErrUpload),
		errors.Is(err, domain.ErrPersistence),
		errors.Is(err, domain.ErrMediaDelete):
		s.logger.Warn("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}
