// Package fastcgi implements the server (responder) side of the FastCGI
// protocol (spec §4.B.1): record framing, BEGIN_REQUEST/PARAMS/STDIN
// decoding into a gateway.Result, and STDOUT/END_REQUEST record framing
// for the response side. The record header layout and name/value size
// encoding are grounded on the teacher's FastCGI reverse-proxy client,
// read for its framing constants and then rebuilt in the opposite
// direction: that code dials out and speaks the requester role, this
// package terminates connections and speaks the responder role.
package fastcgi

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/tryteex/tiny-web-sub001/data"
	"github.com/tryteex/tiny-web-sub001/gateway"
	"github.com/tryteex/tiny-web-sub001/stream"
)

// Record types (spec §4.B.1).
const (
	typeBeginRequest uint8 = 1
	typeAbortRequest uint8 = 2
	typeEndRequest   uint8 = 3
	typeParams       uint8 = 4
	typeStdin        uint8 = 5
	typeStdout       uint8 = 6
	typeStderr       uint8 = 7
)

// Roles understood in a BEGIN_REQUEST body.
const (
	RoleResponder uint16 = 1
)

// Protocol status values for an END_REQUEST body.
const (
	StatusRequestComplete uint8 = 0
	StatusCantMultiplexConns uint8 = 1
)

const version1 uint8 = 1

const maxContentLength = 0xFFFF

// ErrProtocol is returned for any malformed or unsupported record stream:
// a bad version byte, a first record that is not BEGIN_REQUEST or whose
// content is shorter than 8 bytes, a role other than responder, or a
// PARAMS/STDIN-phase record with the wrong type or with a request ID
// other than the one BEGIN_REQUEST opened (multiplexed requests are
// rejected, see DESIGN.md).
var ErrProtocol = errors.New("fastcgi: protocol error")

type recordHeader struct {
	Version       uint8
	Type          uint8
	RequestID     uint16
	ContentLength uint16
	PaddingLength uint8
	Reserved      uint8
}

func readHeader(buf *stream.Buffer, timeout time.Duration) (recordHeader, error) {
	raw, err := readN(buf, 8, timeout)
	if err != nil {
		return recordHeader{}, err
	}
	h := recordHeader{
		Version:       raw[0],
		Type:          raw[1],
		RequestID:     binary.BigEndian.Uint16(raw[2:4]),
		ContentLength: binary.BigEndian.Uint16(raw[4:6]),
		PaddingLength: raw[6],
	}
	if h.Version != version1 {
		return recordHeader{}, ErrProtocol
	}
	return h, nil
}

// readN drains exactly n bytes out of buf, issuing further Reads on the
// underlying connection as needed, and returns an owned copy (a single
// FastCGI record's content can exceed the buffer's fixed window, so the
// result cannot simply alias it).
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

// readRecord reads one full record (header + content, discarding padding)
// from buf.
func readRecord(buf *stream.Buffer, timeout time.Duration) (recordHeader, []byte, error) {
	h, err := readHeader(buf, timeout)
	if err != nil {
		return h, nil, err
	}
	content, err := readN(buf, int(h.ContentLength), timeout)
	if err != nil {
		return h, nil, err
	}
	if h.PaddingLength > 0 {
		if _, err := readN(buf, int(h.PaddingLength), timeout); err != nil {
			return h, nil, err
		}
	}
	return h, content, nil
}

// decodeSize reads one FastCGI name/value length field from the front of
// b, returning its value and the number of bytes it occupied (1 or 4,
// spec §4.B.1). ok is false if b is too short to contain the field.
func decodeSize(b []byte) (size uint32, n int, ok bool) {
	if len(b) < 1 {
		return 0, 0, false
	}
	if b[0]&0x80 == 0 {
		return uint32(b[0]), 1, true
	}
	if len(b) < 4 {
		return 0, 0, false
	}
	return binary.BigEndian.Uint32(b[:4]) & 0x7fffffff, 4, true
}

// decodePairs parses a concatenated PARAMS content blob into name/value
// pairs, folding each into req via gateway.ApplyParam. A truncated or
// malformed trailing pair is silently dropped rather than failing the
// whole request, matching the decode-errors posture of spec §7.
func decodePairs(blob []byte, req *data.Request, sessionCookieName string) (sessionCookie string, hasSession bool) {
	i := 0
	for i < len(blob) {
		nameLen, n1, ok := decodeSize(blob[i:])
		if !ok {
			break
		}
		i += n1
		valLen, n2, ok := decodeSize(blob[i:])
		if !ok {
			break
		}
		i += n2
		if i+int(nameLen)+int(valLen) > len(blob) {
			break
		}
		name := string(blob[i : i+int(nameLen)])
		i += int(nameLen)
		value := string(blob[i : i+int(valLen)])
		i += int(valLen)

		if sc, ok := gateway.ApplyParam(req, name, value, sessionCookieName); ok {
			sessionCookie, hasSession = sc, true
		}
	}
	return sessionCookie, hasSession
}

// ReadRequest reads one complete FastCGI request (BEGIN_REQUEST, the
// PARAMS stream terminated by an empty PARAMS record, and the STDIN
// stream terminated by an empty STDIN record) off buf. It returns the
// decoded gateway.Result, the request ID to echo back in END_REQUEST,
// and whether the connection should be kept alive afterward.
//
// Multiplexed requests (a second BEGIN_REQUEST on the same connection
// before the first completes) are not supported: the caller is expected
// to call ReadRequest once, fully drain, respond, and only then read
// the next request from the same connection when keepConn is true.
func ReadRequest(buf *stream.Buffer, sessionCookieName string, timeout time.Duration) (result gateway.Result, requestID uint16, keepConn bool, err error) {
	h, content, err := readRecord(buf, timeout)
	if err != nil {
		return gateway.Result{}, 0, false, err
	}
	if h.Type != typeBeginRequest || len(content) < 8 {
		return gateway.Result{}, 0, false, ErrProtocol
	}
	requestID = h.RequestID
	role := binary.BigEndian.Uint16(content[0:2])
	keepConn = content[2]&1 == 1
	if role != RoleResponder {
		return gateway.Result{}, requestID, keepConn, ErrProtocol
	}

	req := data.NewRequest()
	var paramsBlob []byte
	for {
		ph, pc, err := readRecord(buf, timeout)
		if err != nil {
			return gateway.Result{}, requestID, keepConn, err
		}
		if ph.RequestID != requestID || ph.Type != typeParams {
			return gateway.Result{}, requestID, keepConn, ErrProtocol
		}
		if len(pc) == 0 {
			break
		}
		paramsBlob = append(paramsBlob, pc...)
	}
	sessionCookie, hasSession := decodePairs(paramsBlob, &req, sessionCookieName)

	var body []byte
	for {
		sh, sc, err := readRecord(buf, timeout)
		if err != nil {
			return gateway.Result{}, requestID, keepConn, err
		}
		if sh.RequestID != requestID || sh.Type != typeStdin {
			return gateway.Result{}, requestID, keepConn, ErrProtocol
		}
		if len(sc) == 0 {
			break
		}
		body = append(body, sc...)
	}

	return gateway.Result{
		Request:       req,
		SessionCookie: sessionCookie,
		HasSession:    hasSession,
		Body:          body,
	}, requestID, keepConn, nil
}
