package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tartampluch/photo-time-sleuth/internal/config"
	"github.com/tartampluch/photo-time-sleuth/internal/locale"
)

type ctxKey int

const requestIDKey ctxKey = iota

// requestID returns the ID assigned by withRequestLog.
func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// statusRecorder captures the status code for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// withRequestLog tags each request with an X-Request-ID and logs one line
// once it is served.
func withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set(config.HeaderRequestID, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))

		slog.Info(config.MsgRequest,
			config.LogKeyComponent, config.CompServer,
			config.LogKeyRequestID, id,
			config.LogKeyMethod, r.Method,
			config.LogKeyPath, r.URL.Path,
			config.LogKeyStatus, rec.status,
			config.LogKeyDuration, time.Since(start).Milliseconds(),
		)
	})
}

// tr returns the translator matching the request's Accept-Language.
func (s *Server) tr(r *http.Request) *locale.Translator {
	if s.Catalog == nil {
		return nil
	}
	return s.Catalog.For(r.Header.Get(config.HeaderAcceptLanguage))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(config.HeaderContentType, config.MimeJSON)
	w.Header().Set(config.HeaderXContentType, config.MimeNoSniff)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(config.ErrWriteResp,
			config.LogKeyComponent, config.CompServer,
			config.LogKeyError, err,
		)
	}
}

// fail writes {"error": <localized key>} and logs the cause.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, key string, data map[string]any, cause error) {
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, config.MsgRequestFailed,
		config.LogKeyComponent, config.CompServer,
		config.LogKeyRequestID, requestID(r.Context()),
		config.LogKeyPath, r.URL.Path,
		config.LogKeyStatus, status,
		config.LogKeyKey, key,
		config.LogKeyError, cause,
	)
	writeJSON(w, status, map[string]string{"error": s.tr(r).GetWith(key, data)})
}

// decodeJSON reads a size-limited JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBody)
	return json.NewDecoder(r.Body).Decode(dst)
}
