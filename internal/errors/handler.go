package errors

import (
	"encoding/json"
	"net/http"

	"github.com/zsiec/fdclink/internal/logger"
)

// ErrorResponse is the JSON body of every error returned by the status API.
type ErrorResponse struct {
	Error   *AppError `json:"error"`
	TraceID string    `json:"trace_id,omitempty"`
}

// ErrorHandler writes errors as JSON bodies and logs them at a level that
// follows the status class.
type ErrorHandler struct {
	logger logger.Logger
}

// NewErrorHandler creates a handler logging through log.
func NewErrorHandler(log logger.Logger) *ErrorHandler {
	return &ErrorHandler{logger: log}
}

// HandleError writes err. Anything that is not an AppError becomes a 500
// whose body does not carry the error text.
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := As(err)
	if !ok {
		appErr = Wrap(err, ErrorTypeInternal, "An unexpected error occurred")
	}
	traceID := r.Header.Get(logger.RequestIDHeader)

	log := h.logger.WithFields(map[string]interface{}{
		"error_type": appErr.Type,
		"error_code": appErr.Code,
		"trace_id":   traceID,
		"method":     r.Method,
		"path":       r.URL.Path,
	})
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		log.Error(appErr.Error())
	} else {
		log.Debug(appErr.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.HTTPStatus)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: appErr, TraceID: traceID}); err != nil {
		h.logger.WithError(err).Error("Failed to encode error response")
	}
}

// HandleNotFound answers requests that matched no route.
func (h *ErrorHandler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	h.HandleError(w, r, NewNotFoundError("endpoint "+r.URL.Path))
}

// HandleMethodNotAllowed answers requests using an unsupported method.
func (h *ErrorHandler) HandleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.HandleError(w, r, New(ErrorTypeMethodNotAllowed, "method %s not allowed", r.Method))
}

// Middleware converts handler panics into 500 responses.
func (h *ErrorHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				h.logger.WithFields(map[string]interface{}{
					"panic":  recovered,
					"method": r.Method,
					"path":   r.URL.Path,
				}).Error("Panic recovered in HTTP handler")
				h.HandleError(w, r, NewInternalError("An unexpected error occurred"))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
