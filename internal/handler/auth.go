package handler

import (
	"crypto/sha256"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/dinamicamotors/leadflow/internal/audit"
	apperrors "github.com/dinamicamotors/leadflow/internal/errors"
	"github.com/dinamicamotors/leadflow/internal/middleware"
)

// APIKeyHeader carries the admin API key on dashboard requests.
const APIKeyHeader = "X-API-Key"

// APIKeyAuth returns middleware that protects the dashboard API with a
// single admin key. The configured value is a bcrypt hash, so a leaked
// config file does not leak the key itself. Keys are pre-hashed with
// SHA-256 to stay inside bcrypt's 72-byte input limit.
func APIKeyAuth(apiKeyHash string, logger *zap.Logger) func(http.Handler) http.Handler {
	auditLog := audit.NewLogger(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			if key == "" {
				auditLog.AuthFailure(r.Context(), r.RemoteAddr, middleware.GetRequestID(r.Context()), "missing API key")
				APIError(w, r, logger, apperrors.New("handler.APIKeyAuth", apperrors.CodeUnauthorized, apperrors.KindUser, "missing API key"))
				return
			}

			digest := sha256.Sum256([]byte(key))
			if err := bcrypt.CompareHashAndPassword([]byte(apiKeyHash), digest[:]); err != nil {
				auditLog.AuthFailure(r.Context(), r.RemoteAddr, middleware.GetRequestID(r.Context()), "invalid API key")
				logger.Warn("rejected dashboard request with bad API key",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				APIError(w, r, logger, apperrors.New("handler.APIKeyAuth", apperrors.CodeUnauthorized, apperrors.KindUser, "invalid API key"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// HashAPIKey produces the bcrypt hash of an API key for configuration.
func HashAPIKey(key string) (string, error) {
	digest := sha256.Sum256([]byte(key))
	hash, err := bcrypt.GenerateFromPassword(digest[:], bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
