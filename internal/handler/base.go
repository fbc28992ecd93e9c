// Package handler contains the HTTP handlers: the WhatsApp webhook, the
// dashboard API and the operational endpoints.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	apperrors "github.com/dinamicamotors/leadflow/internal/errors"
	"github.com/dinamicamotors/leadflow/internal/middleware"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		// Headers are already flushed; an encode failure here can only be
		// logged by the caller's middleware.
		_ = json.NewEncoder(w).Encode(data)
	}
}

// errorBody is the JSON error envelope returned by the API.
type errorBody struct {
	Error     apperrors.Response `json:"error"`
	RequestID string             `json:"request_id,omitempty"`
}

// APIError writes an application error as JSON. Coded errors map to their
// HTTP status; foreign errors become an opaque 500.
func APIError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		appErr = apperrors.Wrap("handler", apperrors.CodeInternal, apperrors.KindSystem, "unexpected error", err)
	}

	requestID := middleware.GetRequestID(r.Context())
	if appErr.Kind != apperrors.KindUser {
		logger.Error("request failed",
			zap.String("request_id", requestID),
			zap.String("path", r.URL.Path),
			zap.String("code", string(appErr.Code)),
			zap.Error(err),
		)
	}

	JSON(w, appErr.HTTPStatus(), errorBody{
		Error:     appErr.ToResponse(),
		RequestID: requestID,
	})
}
