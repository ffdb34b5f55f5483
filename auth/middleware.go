package auth

import (
	"errors"
	"net/http"
	"strings"
)

// TokenFromRequest returns the bearer token of r. The token query parameter
// is accepted for clients that cannot set headers, such as EventSource and
// browser websockets.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// Middleware attaches the caller identity to each request context. Requests
// without a token proceed as Anonymous when allowAnonymous is set; invalid
// tokens are always rejected with 401.
func Middleware(v Verifier, allowAnonymous bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)

			var id Identity
			switch {
			case token == "" && allowAnonymous:
				id = Anonymous()
			case token == "":
				unauthorized(w, ErrUnauthenticated)
				return
			default:
				verified, err := v.Verify(r.Context(), token)
				if err != nil {
					unauthorized(w, err)
					return
				}
				id = verified
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func unauthorized(w http.ResponseWriter, err error) {
	msg := ErrUnauthenticated.Error()
	if errors.Is(err, ErrInvalidToken) {
		msg = ErrInvalidToken.Error()
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="planner"`)
	http.Error(w, msg, http.StatusUnauthorized)
}
