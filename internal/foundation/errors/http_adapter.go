package errors

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
)

// HTTPErrorAdapter handles error presentation and status code determination for HTTP applications.
type HTTPErrorAdapter struct {
	logger *slog.Logger
}

// NewHTTPErrorAdapter creates a new HTTP error adapter with an optional slog logger.
// If logger is nil, the default package logger will be used.
func NewHTTPErrorAdapter(logger *slog.Logger) *HTTPErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPErrorAdapter{logger: logger}
}

// HTTPErrorResponse represents a standard JSON error payload.
type HTTPErrorResponse struct {
	Error     string         `json:"error"`
	Code      string         `json:"code,omitempty"`
	Stage     string         `json:"stage,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`
}

// stageCarrier is implemented by errors that know which pipeline stage failed.
type stageCarrier interface {
	error
	FailedStage() string
}

// StatusCodeFor determines the HTTP status code for a given error based on
// its classification. Unknown errors map to 500.
func (a *HTTPErrorAdapter) StatusCodeFor(err error) int {
	if err == nil {
		return http.StatusOK
	}

	if c, ok := AsClassified(err); ok {
		switch c.Category() {
		case CategoryValidation, CategoryConfig:
			return http.StatusBadRequest
		case CategoryAuth:
			return http.StatusUnauthorized
		case CategoryNotFound:
			return http.StatusNotFound
		case CategoryNetwork, CategoryGit, CategoryStorage:
			return http.StatusBadGateway
		case CategoryCredentials, CategoryToolchain, CategoryPackaging:
			return http.StatusUnprocessableEntity
		case CategoryTimeout:
			return http.StatusGatewayTimeout
		case CategoryCanceled, CategoryRuntime:
			return http.StatusServiceUnavailable
		default:
			return http.StatusInternalServerError
		}
	}

	return http.StatusInternalServerError
}

// WriteErrorResponse writes a JSON error response and logs with appropriate level.
func (a *HTTPErrorAdapter) WriteErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	status := a.StatusCodeFor(err)
	payload := a.FormatErrorResponse(err)

	b, jerr := json.Marshal(payload)
	if jerr != nil {
		w.WriteHeader(status)
		_, _ = w.Write([]byte("{\"error\":\"internal error\"}"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)

	if c, ok := AsClassified(err); ok {
		a.logger.Log(r.Context(), a.slogLevelFromSeverity(c.Severity()), err.Error(),
			slog.Int("status", status), slog.String("path", r.URL.Path))
		return
	}
	a.logger.Error(err.Error(), slog.Int("status", status), slog.String("path", r.URL.Path))
}

// FormatErrorResponse converts known errors into a canonical error payload.
func (a *HTTPErrorAdapter) FormatErrorResponse(err error) HTTPErrorResponse {
	if err == nil {
		return HTTPErrorResponse{Error: ""}
	}
	var resp HTTPErrorResponse
	if c, ok := AsClassified(err); ok {
		resp = HTTPErrorResponse{Error: c.Message(), Code: string(c.Category())}
		if c.Cause() != nil {
			resp.Error = c.Message() + ": " + c.Cause().Error()
		}
		if len(c.Context()) > 0 {
			resp.Details = map[string]any(c.Context())
		}
		if c.CanRetry() {
			resp.Retryable = true
		}
	} else {
		resp = HTTPErrorResponse{Error: err.Error()}
	}
	var sc stageCarrier
	if stderrors.As(err, &sc) {
		resp.Stage = sc.FailedStage()
	}
	return resp
}

func (a *HTTPErrorAdapter) slogLevelFromSeverity(s ErrorSeverity) slog.Level {
	switch s {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
