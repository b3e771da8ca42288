// Package uwsgi implements the uwsgi gateway protocol (spec §4.B.3): a
// 4-byte packet header (modifier1, little-endian packet size,
// modifier2) followed by key/value pairs each prefixed with a 2-byte
// little-endian length, then CONTENT_LENGTH bytes of body. Grounded on
// original_source/src/sys/net/uwsgi.rs.
package uwsgi

import (
	"encoding/binary"
	"errors"
	"strconv"
	"time"

	"github.com/tryteex/tiny-web-sub001/data"
	"github.com/tryteex/tiny-web-sub001/gateway"
	"github.com/tryteex/tiny-web-sub001/stream"
)

const headerSize = 4

var ErrProtocol = errors.New("uwsgi: protocol error")

// ReadRequest parses one uwsgi request off buf. server.Server reads one
// request per uwsgi connection and closes the connection after
// answering it.
func ReadRequest(buf *stream.Buffer, sessionCookieName string, timeout time.Duration) (gateway.Result, error) {
	hdr, err := readN(buf, headerSize, timeout)
	if err != nil {
		return gateway.Result{}, err
	}
	if hdr[0] != 0 || hdr[3] != 0 {
		return gateway.Result{}, ErrProtocol
	}
	packetLen := int(binary.LittleEndian.Uint16(hdr[1:3]))

	packet, err := readN(buf, packetLen, timeout)
	if err != nil {
		return gateway.Result{}, err
	}

	req := data.NewRequest()
	contentLength := 0
	sessionCookie, hasSession, err := decodeVars(packet, &req, sessionCookieName, &contentLength)
	if err != nil {
		return gateway.Result{}, err
	}

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

// decodeVars walks a uwsgi var-block: repeating
// (u16 keyLen, key, u16 valLen, val) until the block is exhausted,
// folding each pair into req via gateway.ApplyParam.
func decodeVars(block []byte, req *data.Request, sessionCookieName string, contentLength *int) (sessionCookie string, hasSession bool, err error) {
	i := 0
	for i < len(block) {
		if i+2 > len(block) {
			return "", false, ErrProtocol
		}
		keyLen := int(binary.LittleEndian.Uint16(block[i : i+2]))
		i += 2
		if i+keyLen > len(block) {
			return "", false, ErrProtocol
		}
		key := string(block[i : i+keyLen])
		i += keyLen

		if i+2 > len(block) {
			return "", false, ErrProtocol
		}
		valLen := int(binary.LittleEndian.Uint16(block[i : i+2]))
		i += 2
		if i+valLen > len(block) {
			return "", false, ErrProtocol
		}
		value := string(block[i : i+valLen])
		i += valLen

		if key == "CONTENT_LENGTH" {
			if n, err := strconv.Atoi(value); err == nil {
				*contentLength = n
			}
			continue
		}
		if sc, ok := gateway.ApplyParam(req, key, value, sessionCookieName); ok {
			sessionCookie, hasSession = sc, true
		}
	}
	return sessionCookie, hasSession, nil
}
