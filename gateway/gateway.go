// Package gateway defines the contract every wire-protocol parser
// (fastcgi, scgi, uwsgi, httpparser) implements, plus the common
// parameter-to-Request mapping shared by all four (spec §4.B, §4.B.5).
package gateway

import (
	"net"
	"strconv"
	"strings"

	"github.com/tryteex/tiny-web-sub001/data"
)

// Result is what every parser variant produces from one logical request:
// a populated Request, an optional extracted session cookie value, and
// the request body (already collected in full — gateway parsers hand the
// decoder a complete body rather than a stream, since FastCGI/SCGI/uWSGI
// all frame the body length up front and the HTTP parser reads exactly
// Content-Length bytes).
type Result struct {
	Request       data.Request
	SessionCookie string
	HasSession    bool
	Body          []byte
}

// SessionCookieName is configurable (spec §6); parsers take it as a
// parameter rather than a package global so multiple servers in one
// process can use different names.

// ApplyParam folds one name/value pair from the wire into req according
// to the common table in spec §4.B.5. name must already be upper-cased
// for the CGI-style keys (HTTP_HOST, REQUEST_METHOD, ...) — HTTP
// gateway.httpparser translates header names to this canonical form
// before calling ApplyParam, so this single function serves all four
// wire protocols. Unrecognized names are stored verbatim in
// req.Input.Params.
func ApplyParam(req *data.Request, name, value string, sessionCookieName string) (sessionCookie string, hasSession bool) {
	switch name {
	case "HTTP_X_REQUESTED_WITH":
		if strings.EqualFold(value, "xmlhttprequest") {
			req.Ajax = true
		}
	case "HTTP_HOST":
		req.Host = value
	case "REQUEST_SCHEME":
		req.Scheme = value
	case "HTTP_USER_AGENT":
		req.Agent = value
	case "HTTP_REFERER":
		req.Referer = value
	case "REMOTE_ADDR":
		if ip := net.ParseIP(value); ip != nil {
			req.IP = ip
		}
	case "REQUEST_METHOD":
		req.Method, req.MethodOther = data.ParseMethod(value)
	case "DOCUMENT_ROOT":
		req.Root = value
	case "REDIRECT_URL":
		req.URL = stripQuery(value)
	case "QUERY_STRING":
		ParseQueryInto(req.Input.Get, value)
	case "CONTENT_TYPE":
		req.ContentType = value
	case "HTTP_COOKIE":
		sessionCookie, hasSession = parseCookies(req.Input.Cookie, value, sessionCookieName)
		return sessionCookie, hasSession
	default:
		req.Input.Params[name] = value
	}
	return "", false
}

func stripQuery(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i]
	}
	return url
}

// ParseQueryInto tokenizes a query string (or an urlencoded POST body) on
// '&', splits each token on the first '=', percent-decodes both sides,
// and inserts into dst. A malformed percent-escape never rejects the
// whole request: a field whose name is malformed (or decodes to "") is
// dropped and parsing continues, and a field whose value is malformed is
// stored with the value left undecoded.
func ParseQueryInto(dst map[string]string, qs string) {
	if qs == "" {
		return
	}
	for _, pair := range strings.Split(qs, "&") {
		if pair == "" {
			continue
		}
		var k, v string
		if i := strings.IndexByte(pair, '='); i >= 0 {
			k, v = pair[:i], pair[i+1:]
		} else {
			k = pair
		}
		dk, ok1 := percentDecode(k)
		dv, ok2 := percentDecode(v)
		if !ok1 || dk == "" {
			continue
		}
		if !ok2 {
			dv = v
		}
		dst[dk] = dv
	}
}

// percentDecode decodes %XX and '+' (space) escapes. On malformed input
// it returns the best-effort partial decode and ok=false so the caller
// can decide whether to drop the field (spec §7 decoding errors).
func percentDecode(s string) (string, bool) {
	if !strings.ContainsAny(s, "%+") {
		return s, true
	}
	out := make([]byte, 0, len(s))
	ok := true
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '+':
			out = append(out, ' ')
		case '%':
			if i+3 > len(s) {
				ok = false
				out = append(out, s[i])
				continue
			}
			hi, err1 := strconv.ParseUint(s[i+1:i+2], 16, 8)
			lo, err2 := strconv.ParseUint(s[i+2:i+3], 16, 8)
			if err1 != nil || err2 != nil {
				ok = false
				out = append(out, s[i])
				continue
			}
			out = append(out, byte(hi<<4|lo))
			i += 2
		default:
			out = append(out, s[i])
		}
	}
	return string(out), ok
}

// parseCookies tokenizes an HTTP Cookie header on "; ", splits each
// token on the first '=', and routes the pair into dst unless it is the
// session cookie: a cookie named sessionCookieName whose value is
// exactly 128 lowercase hex characters is extracted as the session key
// instead of stored in dst (spec §4.B.5, §4.H, §8 invariant 6).
func parseCookies(dst map[string]string, header, sessionCookieName string) (sessionCookie string, hasSession bool) {
	for _, tok := range strings.Split(header, "; ") {
		if tok == "" {
			continue
		}
		var name, value string
		if i := strings.IndexByte(tok, '='); i >= 0 {
			name, value = tok[:i], tok[i+1:]
		} else {
			name = tok
		}
		if sessionCookieName != "" && name == sessionCookieName && IsSessionKey(value) {
			sessionCookie = value
			hasSession = true
			continue
		}
		dst[name] = value
	}
	return sessionCookie, hasSession
}

// IsSessionKey reports whether v matches ^[0-9a-f]{128}$ (spec §8
// invariant 6, §6 "Session cookie").
func IsSessionKey(v string) bool {
	if len(v) != 128 {
		return false
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		if !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
