package handlers

import (
	"net"
	"net/http"
	"strings"

	"github.com/vegbox-admin/api/internal/platform/i18n"
	"github.com/vegbox-admin/api/internal/platform/observability"
	"github.com/vegbox-admin/api/internal/platform/requestctx"
	"github.com/vegbox-admin/api/internal/platform/textutil"
)

const (
	defaultActorHeader = "X-Actor"
	maxActorLength     = 128
)

// ActorMiddleware resolves the acting operator from header, falling back to
// defaultActor. Mutating requests without an actor are rejected. It reads the
// request locale, so mount it after LocaleMiddleware.
func ActorMiddleware(responder *ErrorResponder, header, defaultActor string) func(http.Handler) http.Handler {
	if responder == nil {
		responder = NewErrorResponder(nil)
	}
	header = strings.TrimSpace(header)
	if header == "" {
		header = defaultActorHeader
	}
	defaultActor = textutil.PlainText(defaultActor, maxActorLength)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := textutil.PlainText(r.Header.Get(header), maxActorLength)
			if id == "" {
				id = defaultActor
			}
			if id == "" {
				if isMutation(r.Method) {
					responder.Reject(r.Context(), w, http.StatusUnauthorized, "error.actor_required", map[string]any{"header": header})
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := requestctx.WithActor(r.Context(), requestctx.Actor{
				ID:        id,
				UserAgent: r.UserAgent(),
				RemoteIP:  remoteHost(r.RemoteAddr),
			})
			r = r.WithContext(ctx)
			observability.ObserveRequest(w, r)
			next.ServeHTTP(w, r)
		})
	}
}

// LocaleMiddleware negotiates the response locale from Accept-Language.
func LocaleMiddleware(translator *i18n.Translator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if translator == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			locale := translator.Negotiate(r.Header.Get("Accept-Language"))
			r = r.WithContext(requestctx.WithLocale(r.Context(), locale))
			w.Header().Set("Content-Language", locale)
			observability.ObserveRequest(w, r)
			next.ServeHTTP(w, r)
		})
	}
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func remoteHost(addr string) string {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
