// internal/common/errors/handler.go
package errors

import (
	"encoding/json"
	"net/http"

	"golang.org/x/text/language"
)

// ErrorResponse is the JSON body written for every failed request.
type ErrorResponse struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	RequestID string                 `json:"requestId,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// ErrorHandler writes StandardErrors as translated JSON responses.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Write normalizes err and writes it with the mapped HTTP status. The message
// is localized from the request's Accept-Language header.
func (h *ErrorHandler) Write(w http.ResponseWriter, r *http.Request, err error) {
	stdErr := Normalize(err)
	if stdErr == nil {
		return
	}
	status := HTTPStatus(stdErr.Code)
	h.logError(r, stdErr, status)

	resp := ErrorResponse{
		Code:      stdErr.Code,
		Message:   Translate(stdErr, r.Header.Get("Accept-Language")),
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		RequestID: r.Header.Get("X-Request-ID"),
		Metadata:  stdErr.Metadata,
	}

	// Internal details never leave the process for server-side failures.
	if status >= http.StatusInternalServerError {
		resp.Details = ""
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *ErrorHandler) logError(r *http.Request, stdErr *StandardError, status int) {
	if h.logger == nil {
		return
	}
	fields := map[string]interface{}{
		"code":      stdErr.Code,
		"category":  GetErrorCategory(stdErr.Code),
		"status":    status,
		"details":   stdErr.Details,
		"retryable": stdErr.Retryable,
		"method":    r.Method,
		"path":      r.URL.Path,
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(stdErr.Message, fields)
		return
	}
	h.logger.Warn(stdErr.Message, fields)
}

// ==========================
// Translation catalog
// ==========================

var supportedLanguages = []language.Tag{
	language.English, // first entry is the fallback
	language.Persian,
}

var languageMatcher = language.NewMatcher(supportedLanguages)

var catalog = map[language.Tag]map[ErrorCode]string{
	language.Persian: {
		ErrCodeInvalidRequest:      "درخواست نامعتبر است",
		ErrCodeInvalidPath:         "مسیر سند نامعتبر است",
		ErrCodePathNotFound:        "مسیر سند یافت نشد",
		ErrCodeShapeChange:         "این تغییر ساختار فرم را بر هم می‌زند",
		ErrCodeRouteNotFound:       "مسیر درخواستی یافت نشد",
		ErrCodeVersionConflict:     "پیش‌نویس همزمان توسط کاربر دیگری تغییر کرده است",
		ErrCodeDraftNotFound:       "پیش‌نویس یافت نشد",
		ErrCodeDraftSubmitted:      "این پیش‌نویس قبلاً ارسال شده است",
		ErrCodeSubmitInProgress:    "این پیش‌نویس در حال ارسال است",
		ErrCodeValidationFailed:    "اطلاعات فرم معتبر نیست",
		ErrCodeTemplateNotFound:    "قالب فرم یافت نشد",
		ErrCodeTemplateInvalid:     "تعریف قالب فرم نامعتبر است",
		ErrCodeUpstreamUnavailable: "ارتباط با سرور برقرار نشد",
		ErrCodeUpstreamTimeout:     "پاسخ سرور بیش از حد طول کشید",
		ErrCodeUpstreamResponse:    "پاسخ سرور قابل استفاده نیست",
		ErrCodeDatabaseFailure:     "خطا در ذخیره‌سازی اطلاعات",
		ErrCodeSearchFailed:        "جستجو ناموفق بود",
		ErrCodeSearchDisabled:      "جستجو فعال نیست",
		ErrCodeInternal:            "خطای غیرمنتظره رخ داد",
	},
}

// MatchLanguage picks the supported language for an Accept-Language header.
func MatchLanguage(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return supportedLanguages[0]
	}
	_, index, _ := languageMatcher.Match(tags...)
	return supportedLanguages[index]
}

// Translate returns the localized message for stdErr, falling back to the
// error's own English message.
func Translate(stdErr *StandardError, acceptLanguage string) string {
	if messages, ok := catalog[MatchLanguage(acceptLanguage)]; ok {
		if msg, ok := messages[stdErr.Code]; ok {
			return msg
		}
	}
	return stdErr.Message
}
