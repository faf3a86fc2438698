package web

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"strings"
)

// allow checks the method and token of a request, writing the error
// response itself when the request is rejected. Mutating requests are also
// rejected in read-only mode.
func (s *Server) allow(w http.ResponseWriter, r *http.Request, mutating bool, methods ...string) bool {
	methodOK := false
	for _, m := range methods {
		if r.Method == m {
			methodOK = true
			break
		}
	}
	if !methodOK {
		w.Header().Set("Allow", strings.Join(methods, ", "))
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return false
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead && !allowSameOrigin(r) {
		writeAPIError(w, http.StatusForbidden, "CROSS_ORIGIN", "cross-origin request rejected")
		return false
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return false
	}
	if mutating && s.cfg.ReadOnly {
		writeAPIError(w, http.StatusForbidden, "READ_ONLY", "server is in read-only mode")
		return false
	}
	return true
}

func (s *Server) authorizeRequest(r *http.Request) bool {
	if s.cfg.Token == "" {
		return true
	}

	queryToken := strings.TrimSpace(r.URL.Query().Get("token"))
	if queryToken != "" && secureEqual(queryToken, s.cfg.Token) {
		return true
	}

	headerToken := bearerToken(r.Header.Get("Authorization"))
	return headerToken != "" && secureEqual(headerToken, s.cfg.Token)
}

func bearerToken(authHeader string) string {
	const bearerPrefix = "Bearer "
	authHeader = strings.TrimSpace(authHeader)
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
}

func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// allowSameOrigin accepts requests without an Origin header (non-browser
// clients) and browser requests whose origin host matches the Host header.
func allowSameOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil || originURL.Host == "" {
		return false
	}
	return strings.EqualFold(originURL.Host, r.Host)
}
