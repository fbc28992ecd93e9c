package middleware

import "net/http"

const (
	// MaxFormBodySize caps Twilio webhook form posts (100KB). WhatsApp text
	// messages are tiny; anything near this is abuse.
	MaxFormBodySize = 100 << 10

	// MaxJSONBodySize caps admin API request bodies (1MB).
	MaxJSONBodySize = 1 << 20
)

// BodySizeLimiter rejects requests whose declared length exceeds maxBytes
// and caps chunked bodies through http.MaxBytesReader.
func BodySizeLimiter(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > maxBytes {
				http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// BodySizeLimiterForm limits form submission bodies.
func BodySizeLimiterForm() func(http.Handler) http.Handler {
	return BodySizeLimiter(MaxFormBodySize)
}

// BodySizeLimiterJSON limits JSON API request bodies.
func BodySizeLimiterJSON() func(http.Handler) http.Handler {
	return BodySizeLimiter(MaxJSONBodySize)
}
