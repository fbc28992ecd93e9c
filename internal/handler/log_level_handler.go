package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/dinamicamotors/leadflow/internal/logging"
)

// LogLevelHandler serves the runtime log level endpoint. GET reports the
// current level, PUT/POST change it.
type LogLevelHandler struct {
	level  zap.AtomicLevel
	logger *zap.Logger
}

func NewLogLevelHandler(level zap.AtomicLevel, logger *zap.Logger) *LogLevelHandler {
	return &LogLevelHandler{level: level, logger: logger}
}

// LogLevelResponse is the endpoint's JSON body.
type LogLevelResponse struct {
	Level   string `json:"level"`
	Message string `json:"message,omitempty"`
}

func (h *LogLevelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getLevel(w)
	case http.MethodPut, http.MethodPost:
		h.setLevel(w, r)
	default:
		writeLevelError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *LogLevelHandler) getLevel(w http.ResponseWriter) {
	writeLevelJSON(w, http.StatusOK, LogLevelResponse{Level: h.level.Level().String()})
}

func (h *LogLevelHandler) setLevel(w http.ResponseWriter, r *http.Request) {
	requested := r.URL.Query().Get("level")
	if requested == "" {
		var body struct {
			Level string `json:"level"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			requested = body.Level
		}
	}
	if requested == "" {
		writeLevelError(w, http.StatusBadRequest, "level parameter is required")
		return
	}

	level, err := logging.ParseLevel(requested)
	if err != nil {
		writeLevelError(w, http.StatusBadRequest, err.Error())
		return
	}

	previous := h.level.Level()
	h.level.SetLevel(level)
	h.logger.Info("log level changed",
		zap.String("previous_level", previous.String()),
		zap.String("new_level", level.String()),
	)

	writeLevelJSON(w, http.StatusOK, LogLevelResponse{
		Level:   level.String(),
		Message: "log level changed from " + previous.String() + " to " + level.String(),
	})
}

func writeLevelJSON(w http.ResponseWriter, status int, resp LogLevelResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func writeLevelError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
