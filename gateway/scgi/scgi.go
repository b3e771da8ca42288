// Package scgi implements the SCGI gateway protocol (spec §4.B.2):
// netstring-framed header block of NUL-terminated NAME\0VALUE\0 pairs,
// followed by the request body. Grounded on
// original_source/src/sys/net/scgi.rs (length-prefix digit scanning,
// name/value NUL-splitting) and on gateway.ApplyParam for the header
// table, which mirrors that file's read_header match arms exactly.
package scgi

import (
	"errors"
	"strconv"
	"time"

	"github.com/tryteex/tiny-web-sub001/data"
	"github.com/tryteex/tiny-web-sub001/gateway"
	"github.com/tryteex/tiny-web-sub001/stream"
)

// maxLengthDigits bounds the ASCII-decimal netstring length prefix so a
// corrupt or hostile peer can't make us allocate an unbounded header.
const maxLengthDigits = 7

var ErrProtocol = errors.New("scgi: protocol error")

// ReadRequest parses one SCGI request off buf: the netstring length
// prefix, the NUL-terminated header pairs, the single comma terminator,
// and finally the body (whose length comes from the CONTENT_LENGTH
// header, per spec — SCGI has no keep-alive, one request per
// connection).
func ReadRequest(buf *stream.Buffer, sessionCookieName string, timeout time.Duration) (gateway.Result, error) {
	headerLen, err := readLengthPrefix(buf, timeout)
	if err != nil {
		return gateway.Result{}, err
	}

	header, err := readN(buf, headerLen, timeout)
	if err != nil {
		return gateway.Result{}, err
	}
	// Netstring terminator.
	comma, err := readN(buf, 1, timeout)
	if err != nil {
		return gateway.Result{}, err
	}
	if comma[0] != ',' {
		return gateway.Result{}, ErrProtocol
	}

	req := data.NewRequest()
	contentLength := 0
	sessionCookie, hasSession := decodePairs(header, &req, sessionCookieName, &contentLength)

	var body []byte
	if contentLength > 0 {
		body, err = readN(buf, contentLength, timeout)
		if err != nil {
			return gateway.Result{}, err
		}
	}

	return gateway.Result{
		Request:       req,
		SessionCookie: sessionCookie,
		HasSession:    hasSession,
		Body:          body,
	}, nil
}

// readLengthPrefix scans up to maxLengthDigits ASCII digits followed by
// ':' and returns the parsed length, consuming through the ':'.
func readLengthPrefix(buf *stream.Buffer, timeout time.Duration) (int, error) {
	var digits []byte
	for {
		if buf.Available() == 0 {
			if err := buf.Read(timeout); err != nil {
				return 0, err
			}
			continue
		}
		chunk := buf.Get(buf.Available())
		for i, c := range chunk {
			if c == ':' {
				buf.Shift(i + 1)
				if len(digits) == 0 {
					return 0, ErrProtocol
				}
				n, err := strconv.Atoi(string(digits))
				if err != nil {
					return 0, ErrProtocol
				}
				return n, nil
			}
			if c < '0' || c > '9' {
				return 0, ErrProtocol
			}
			digits = append(digits, c)
			if len(digits) > maxLengthDigits {
				return 0, ErrProtocol
			}
		}
		buf.Shift(len(chunk))
	}
}

func readN(buf *stream.Buffer, n int, timeout time.Duration) ([]byte, error) {
	out := make([]byte, 0, n)
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

// decodePairs splits header on NUL bytes into NAME, VALUE, NAME, VALUE...
// folding each into req via gateway.ApplyParam, and captures
// CONTENT_LENGTH separately since the body length is determined before
// the gateway.Result's Body field can be populated.
func decodePairs(header []byte, req *data.Request, sessionCookieName string, contentLength *int) (sessionCookie string, hasSession bool) {
	fields := splitNUL(header)
	for i := 0; i+1 < len(fields); i += 2 {
		name, value := fields[i], fields[i+1]
		if name == "CONTENT_LENGTH" {
			if n, err := strconv.Atoi(value); err == nil {
				*contentLength = n
			}
			continue
		}
		if sc, ok := gateway.ApplyParam(req, name, value, sessionCookieName); ok {
			sessionCookie, hasSession = sc, true
		}
	}
	return sessionCookie, hasSession
}

func splitNUL(b []byte) []string {
	var out []string
	start := 0
	for i, c := range b {
		if c == 0 {
			out = append(out, string(b[start:i]))
			start = i + 1
		}
	}
	return out
}
