package api

import (
	"net/http"
	"time"

	"github.com/Gammanik/resumable-upload/internal/auth"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// NewRouter регистрирует обработчики HTTP запросов
func NewRouter(h *FileHandler, validator auth.Validator) *mux.Router {
	router := mux.NewRouter()
	router.Use(requestLogger(h.Logger))

	protected := requireCredential(validator)

	api := router.PathPrefix("/api").Subrouter()
	api.Handle("/upload-chunk", protected(http.HandlerFunc(h.UploadChunk))).Methods(http.MethodPost)
	api.HandleFunc("/file/{id}/metadata", h.GetMetadata).Methods(http.MethodGet)
	api.HandleFunc("/file/{id}/checksum", h.GetChecksum).Methods(http.MethodGet)
	api.Handle("/file/{id}", protected(http.HandlerFunc(h.DeleteFile))).Methods(http.MethodDelete)

	router.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)

	return router
}

// requireCredential отклоняет запрос до вызова обработчика, если токен не прошел проверку
func requireCredential(validator auth.Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := validator.Validate(r.Context(), auth.BearerToken(r)); err != nil {
				writeError(w, http.StatusForbidden, "unauthorized", "Unauthorized: Invalid or missing token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestLogger присваивает запросу идентификатор и пишет его в лог
func requestLogger(logger log.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", requestID)

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status >= http.StatusInternalServerError {
				logger.Warnf("[%s] %s %s -> %d (%s)", requestID, r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
				return
			}
			logger.Debugf("[%s] %s %s -> %d (%s)", requestID, r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
		})
	}
}
