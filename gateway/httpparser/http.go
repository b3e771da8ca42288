// Package httpparser implements a minimal HTTP/1.x request parser (spec
// §4.B.4): request-line + CRLF-terminated headers up to the blank line,
// body length taken from Content-Length (chunked transfer is explicitly
// out of scope). Grounded on original_source/src/sys/net/http.rs for
// the header-scan state machine and the request-line/X-Request-URI
// fallback, adapted to fold headers through gateway.ApplyParam instead
// of a bespoke match arm per header.
package httpparser

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/tryteex/tiny-web-sub001/data"
	"github.com/tryteex/tiny-web-sub001/gateway"
	"github.com/tryteex/tiny-web-sub001/stream"
)

// maxHeaderBytes bounds the accumulated request-line+headers block
// before CRLFCRLF is found, guarding against a peer that never
// terminates its header block.
const maxHeaderBytes = 64 * 1024

var (
	ErrProtocol       = errors.New("httpparser: malformed request line or header")
	ErrLengthRequired = errors.New("httpparser: Content-Length required for this method")
)

// ReadRequest parses one HTTP/1.x request off buf. keepAlive reports
// whether the connection should be read again for a further request:
// true for HTTP/1.1 (until the peer closes or a parse error occurs),
// false for HTTP/1.0 (spec §4.B.4).
func ReadRequest(buf *stream.Buffer, sessionCookieName string, timeout time.Duration) (result gateway.Result, keepAlive bool, err error) {
	head, bodyPrefix, err := readHeaderBlock(buf, timeout)
	if err != nil {
		return gateway.Result{}, false, err
	}

	lines := strings.Split(string(head), "\r\n")
	if len(lines) == 0 {
		return gateway.Result{}, false, ErrProtocol
	}
	method, target, version, ok := parseRequestLine(lines[0])
	if !ok {
		return gateway.Result{}, false, ErrProtocol
	}
	keepAlive = version == data.Version11

	req := data.NewRequest()
	req.Method, req.MethodOther = data.ParseMethod(method)
	req.Version = version
	req.Scheme = "http"

	target, query := splitTarget(target)
	sessionCookie, hasSession, contentLength, err := applyHeaders(lines[1:], &req, sessionCookieName, target, query)
	if err != nil {
		return gateway.Result{}, false, err
	}

	if contentLength == 0 && req.Method.RequiresBody() {
		return gateway.Result{}, false, ErrLengthRequired
	}

	body, err := readBody(buf, bodyPrefix, contentLength, timeout)
	if err != nil {
		return gateway.Result{}, false, err
	}

	return gateway.Result{
		Request:       req,
		SessionCookie: sessionCookie,
		HasSession:    hasSession,
		Body:          body,
	}, keepAlive, nil
}

// readHeaderBlock accumulates bytes from buf until it finds the
// CRLFCRLF terminator, returning the header block (request-line plus
// header lines, terminator excluded) and any body bytes that were
// already read past the terminator in the same chunk.
func readHeaderBlock(buf *stream.Buffer, timeout time.Duration) (head []byte, bodyPrefix []byte, err error) {
	var acc []byte
	for {
		if buf.Available() == 0 {
			if err := buf.Read(timeout); err != nil {
				return nil, nil, err
			}
			continue
		}
		chunk := buf.Get(buf.Available())
		acc = append(acc, chunk...)
		buf.Shift(len(chunk))

		if idx := bytes.Index(acc, []byte("\r\n\r\n")); idx >= 0 {
			return acc[:idx], acc[idx+4:], nil
		}
		if len(acc) > maxHeaderBytes {
			return nil, nil, ErrProtocol
		}
	}
}

func parseRequestLine(line string) (method, target string, version data.Version, ok bool) {
	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return "", "", data.VersionNone, false
	}
	switch parts[2] {
	case "HTTP/1.0":
		version = data.Version10
	case "HTTP/1.1":
		version = data.Version11
	default:
		return "", "", data.VersionNone, false
	}
	return parts[0], parts[1], version, true
}

func splitTarget(target string) (path, query string) {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i], target[i+1:]
	}
	return target, ""
}

// headerNameToParam translates an HTTP header field name (any case) to
// the canonical CGI-style key gateway.ApplyParam understands, e.g.
// "User-Agent" -> "HTTP_USER_AGENT", "Content-Type" -> "CONTENT_TYPE".
func headerNameToParam(name string) string {
	upper := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	switch upper {
	case "HOST":
		return "HTTP_HOST"
	case "USER_AGENT":
		return "HTTP_USER_AGENT"
	case "REFERER":
		return "HTTP_REFERER"
	case "X_REQUESTED_WITH":
		return "HTTP_X_REQUESTED_WITH"
	case "COOKIE":
		return "HTTP_COOKIE"
	case "X_FORWARDED_PROTO":
		return "REQUEST_SCHEME"
	case "X_REAL_IP":
		return "REMOTE_ADDR"
	case "X_REQUEST_URI":
		return "REDIRECT_URL"
	case "CONTENT_TYPE":
		return "CONTENT_TYPE"
	case "CONTENT_LENGTH":
		return "CONTENT_LENGTH"
	default:
		return "HTTP_" + upper
	}
}

func applyHeaders(lines []string, req *data.Request, sessionCookieName, target, query string) (sessionCookie string, hasSession bool, contentLength int, err error) {
	gateway.ApplyParam(req, "REDIRECT_URL", target, sessionCookieName)
	if query != "" {
		gateway.ApplyParam(req, "QUERY_STRING", query, sessionCookieName)
	}

	for _, line := range lines {
		if line == "" {
			continue
		}
		i := strings.IndexByte(line, ':')
		if i < 0 {
			return "", false, 0, ErrProtocol
		}
		name := strings.TrimSpace(line[:i])
		value := strings.TrimSpace(line[i+1:])
		key := headerNameToParam(name)

		if key == "CONTENT_LENGTH" {
			n, convErr := strconv.Atoi(value)
			if convErr != nil || n < 0 {
				return "", false, 0, ErrProtocol
			}
			contentLength = n
			continue
		}
		if sc, ok := gateway.ApplyParam(req, key, value, sessionCookieName); ok {
			sessionCookie, hasSession = sc, true
		}
	}
	return sessionCookie, hasSession, contentLength, nil
}

// readBody returns exactly n bytes of body, starting from whatever was
// already read past the header terminator (prefix) and pulling further
// bytes from buf as needed.
func readBody(buf *stream.Buffer, prefix []byte, n int, timeout time.Duration) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, 0, n)
	if len(prefix) >= n {
		return append(out, prefix[:n]...), nil
	}
	out = append(out, prefix...)
	for len(out) < n {
		if buf.Available() == 0 {
			if err := buf.Read(timeout); err != nil {
				return nil, err
			}
			continue
		}
		chunk := buf.Get(n - len(out))
		out = append(out, chunk...)
		buf.Shift(len(chunk))
	}
	return out, nil
}
