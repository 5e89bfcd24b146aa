package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/vegbox-admin/api/internal/platform/httpx"
	"github.com/vegbox-admin/api/internal/platform/i18n"
	"github.com/vegbox-admin/api/internal/platform/requestctx"
	"github.com/vegbox-admin/api/internal/services"
)

const (
	internalErrorKey = "error.internal"
	notFoundErrorKey = "error.not_found"
)

var kindStatus = map[services.ErrorKind]int{
	services.KindValidation:         http.StatusBadRequest,
	services.KindConflict:           http.StatusConflict,
	services.KindNotFound:           http.StatusNotFound,
	services.KindStateInconsistency: http.StatusConflict,
	services.KindWindowExpired:      http.StatusGone,
	services.KindStorage:            http.StatusServiceUnavailable,
}

// ErrorResponder renders service errors as the JSON error envelope with a
// message localized for the request.
type ErrorResponder struct {
	translator *i18n.Translator
}

// NewErrorResponder returns a responder. A nil translator falls back to English.
func NewErrorResponder(translator *i18n.Translator) *ErrorResponder {
	if translator == nil {
		translator, _ = i18n.NewTranslator("", nil)
	}
	return &ErrorResponder{translator: translator}
}

// Translator exposes the translator used for messages.
func (e *ErrorResponder) Translator() *i18n.Translator {
	return e.translator
}

// Write maps err to a status code and writes the envelope.
func (e *ErrorResponder) Write(ctx context.Context, w http.ResponseWriter, err error) {
	locale := requestctx.Locale(ctx)

	var svcErr *services.Error
	if !errors.As(err, &svcErr) {
		requestctx.Logger(ctx).Error("unhandled error: " + err.Error())
		httpx.WriteError(ctx, w, httpx.NewError("internal", e.translator.Message(locale, internalErrorKey, nil), http.StatusInternalServerError))
		return
	}

	status, ok := kindStatus[svcErr.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		requestctx.Logger(ctx).Warn("service failure: " + svcErr.Error())
	}

	message := e.translator.Message(locale, svcErr.Key, svcErr.Params)
	apiErr := httpx.NewError(errorCode(svcErr.Key), message, status)
	if details := e.details(locale, svcErr.Params); len(details) > 0 {
		apiErr = apiErr.WithDetails(details)
	}
	httpx.WriteError(ctx, w, apiErr)
}

// Invalid writes a validation failure for a malformed request.
func (e *ErrorResponder) Invalid(ctx context.Context, w http.ResponseWriter, field string) {
	locale := requestctx.Locale(ctx)
	params := map[string]any{"field": field}
	httpx.WriteError(ctx, w, httpx.NewError("invalid_input", e.translator.Message(locale, "error.invalid_input", params), http.StatusBadRequest).
		WithDetails(params))
}

// NotFound writes the generic not found envelope.
func (e *ErrorResponder) NotFound(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("not_found", e.translator.Message(requestctx.Locale(ctx), notFoundErrorKey, nil), http.StatusNotFound))
}

// Reject writes a failure raised by the transport itself, localized by key.
func (e *ErrorResponder) Reject(ctx context.Context, w http.ResponseWriter, status int, key string, params map[string]any) {
	message := e.translator.Message(requestctx.Locale(ctx), key, params)
	httpx.WriteError(ctx, w, httpx.NewError(errorCode(key), message, status))
}

func (e *ErrorResponder) details(locale string, params map[string]any) map[string]any {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]any, len(params))
	for key, value := range params {
		switch v := value.(type) {
		case time.Time:
			out[key] = v.In(e.translator.Location()).Format(time.DateOnly)
			out[key+"Display"] = e.translator.FormatDate(locale, v)
		default:
			out[key] = v
		}
	}
	return out
}

func errorCode(key string) string {
	code := strings.TrimPrefix(key, "error.")
	if code == "" {
		return "internal"
	}
	return code
}
