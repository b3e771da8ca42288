package fastcgi

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/tryteex/tiny-web-sub001/stream"
)

// byteReader adapts a plain []byte into a stream.Reader (io.Reader plus
// a no-op deadline), letting tests feed a pre-built record stream
// without a real socket.
type byteReader struct {
	*bytes.Reader
}

func (byteReader) SetReadDeadline(time.Time) error { return nil }

func appendRecord(buf *bytes.Buffer, recType uint8, requestID uint16, content []byte) {
	var hdr [8]byte
	hdr[0] = version1
	hdr[1] = recType
	binary.BigEndian.PutUint16(hdr[2:4], requestID)
	binary.BigEndian.PutUint16(hdr[4:6], uint16(len(content)))
	buf.Write(hdr[:])
	buf.Write(content)
}

func encodePair(buf *bytes.Buffer, name, value string) {
	var b [4]byte
	n := encodeSize(b[:], uint32(len(name)))
	buf.Write(b[:n])
	n = encodeSize(b[:], uint32(len(value)))
	buf.Write(b[:n])
	buf.WriteString(name)
	buf.WriteString(value)
}

func encodeSize(b []byte, size uint32) int {
	if size <= 127 {
		b[0] = byte(size)
		return 1
	}
	binary.BigEndian.PutUint32(b, size|(1<<31))
	return 4
}

func buildRequest(t *testing.T, method, host string, params map[string]string, body []byte) []byte {
	t.Helper()
	var out bytes.Buffer

	begin := make([]byte, 8)
	binary.BigEndian.PutUint16(begin[0:2], RoleResponder)
	appendRecord(&out, typeBeginRequest, 1, begin)

	var paramsBuf bytes.Buffer
	encodePair(&paramsBuf, "REQUEST_METHOD", method)
	encodePair(&paramsBuf, "HTTP_HOST", host)
	for k, v := range params {
		encodePair(&paramsBuf, k, v)
	}
	appendRecord(&out, typeParams, 1, paramsBuf.Bytes())
	appendRecord(&out, typeParams, 1, nil) // terminator

	if len(body) > 0 {
		appendRecord(&out, typeStdin, 1, body)
	}
	appendRecord(&out, typeStdin, 1, nil) // terminator

	return out.Bytes()
}

func TestReadRequestRoundTrip(t *testing.T) {
	raw := buildRequest(t, "GET", "example.com", map[string]string{
		"QUERY_STRING": "a=1",
	}, nil)
	buf := stream.New(byteReader{bytes.NewReader(raw)})

	result, reqID, keepConn, err := ReadRequest(buf, "tiny_session", 0)
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if reqID != 1 {
		t.Fatalf("requestID = %d, want 1", reqID)
	}
	if keepConn {
		t.Fatal("keepConn should be false when FCGI_KEEP_CONN bit unset")
	}
	if result.Request.Host != "example.com" {
		t.Fatalf("host = %q", result.Request.Host)
	}
	if result.Request.Input.Get["a"] != "1" {
		t.Fatalf("query not parsed: %+v", result.Request.Input.Get)
	}
}

func TestReadRequestWithBody(t *testing.T) {
	raw := buildRequest(t, "POST", "example.com", map[string]string{
		"CONTENT_TYPE": "application/x-www-form-urlencoded",
	}, []byte("field=value"))
	buf := stream.New(byteReader{bytes.NewReader(raw)})

	result, _, _, err := ReadRequest(buf, "tiny_session", 0)
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if string(result.Body) != "field=value" {
		t.Fatalf("body = %q", result.Body)
	}
}

func TestReadRequestRejectsWrongVersion(t *testing.T) {
	raw := buildRequest(t, "GET", "example.com", nil, nil)
	raw[0] = 9 // corrupt version byte of the BEGIN_REQUEST header
	buf := stream.New(byteReader{bytes.NewReader(raw)})

	_, _, _, err := ReadRequest(buf, "tiny_session", 0)
	if err != ErrProtocol {
		t.Fatalf("err = %v, want ErrProtocol", err)
	}
}

func TestWriteStdoutChunksAtMaxContentLength(t *testing.T) {
	var out bytes.Buffer
	payload := make([]byte, maxContentLength+10)
	if err := WriteStdout(&out, 1, payload); err != nil {
		t.Fatal(err)
	}

	// First record's content length should be clamped to the max.
	cl1 := binary.BigEndian.Uint16(out.Bytes()[4:6])
	if cl1 != maxContentLength {
		t.Fatalf("first record content length = %d, want %d", cl1, maxContentLength)
	}
}

func TestWriteEndRequest(t *testing.T) {
	var out bytes.Buffer
	if err := WriteEndRequest(&out, 1, 0, StatusRequestComplete); err != nil {
		t.Fatal(err)
	}
	if out.Len() != 16 {
		t.Fatalf("END_REQUEST record length = %d, want 16", out.Len())
	}
	if out.Bytes()[1] != typeEndRequest {
		t.Fatalf("record type = %d, want %d", out.Bytes()[1], typeEndRequest)
	}
}
