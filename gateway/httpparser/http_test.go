package httpparser

import (
	"bytes"
	"testing"
	"time"

	"github.com/tryteex/tiny-web-sub001/stream"
)

type byteReader struct {
	*bytes.Reader
}

func (byteReader) SetReadDeadline(time.Time) error { return nil }

func TestReadRequestGetNoBody(t *testing.T) {
	raw := "GET /hello?a=1 HTTP/1.1\r\nHost: example.com\r\nUser-Agent: test\r\n\r\n"
	buf := stream.New(byteReader{bytes.NewReader([]byte(raw))})

	result, keepAlive, err := ReadRequest(buf, "tiny_session", 0)
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if !keepAlive {
		t.Fatal("HTTP/1.1 should keep the connection alive")
	}
	if result.Request.Host != "example.com" {
		t.Fatalf("host = %q", result.Request.Host)
	}
	if result.Request.URL != "/hello" {
		t.Fatalf("url = %q", result.Request.URL)
	}
	if result.Request.Input.Get["a"] != "1" {
		t.Fatalf("query = %+v", result.Request.Input.Get)
	}
}

func TestReadRequestPostWithBody(t *testing.T) {
	raw := "POST /submit HTTP/1.0\r\nHost: example.com\r\nContent-Length: 11\r\nContent-Type: application/x-www-form-urlencoded\r\n\r\nfield=value"
	buf := stream.New(byteReader{bytes.NewReader([]byte(raw))})

	result, keepAlive, err := ReadRequest(buf, "tiny_session", 0)
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if keepAlive {
		t.Fatal("HTTP/1.0 should not keep the connection alive")
	}
	if string(result.Body) != "field=value" {
		t.Fatalf("body = %q", result.Body)
	}
}

func TestReadRequestPostWithoutContentLengthRejected(t *testing.T) {
	raw := "POST /submit HTTP/1.1\r\nHost: example.com\r\n\r\n"
	buf := stream.New(byteReader{bytes.NewReader([]byte(raw))})

	_, _, err := ReadRequest(buf, "tiny_session", 0)
	if err != ErrLengthRequired {
		t.Fatalf("err = %v, want ErrLengthRequired", err)
	}
}

func TestReadRequestRejectsBadRequestLine(t *testing.T) {
	raw := "GET /only-two-tokens\r\nHost: example.com\r\n\r\n"
	buf := stream.New(byteReader{bytes.NewReader([]byte(raw))})

	_, _, err := ReadRequest(buf, "tiny_session", 0)
	if err != ErrProtocol {
		t.Fatalf("err = %v, want ErrProtocol", err)
	}
}

func TestReadRequestBodySpanningReads(t *testing.T) {
	// A body that arrives split across two underlying reads must still
	// be assembled correctly (this chunkedReader feeds it in two chunks).
	head := "POST /submit HTTP/1.1\r\nContent-Length: 10\r\n\r\n"
	r := &chunkedReader{chunks: [][]byte{[]byte(head + "01234"), []byte("56789")}}
	buf := stream.New(r)

	result, _, err := ReadRequest(buf, "tiny_session", 0)
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if string(result.Body) != "0123456789" {
		t.Fatalf("body = %q", result.Body)
	}
}

type chunkedReader struct {
	chunks [][]byte
	i      int
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.i >= len(c.chunks) {
		return 0, bytesEOF{}
	}
	n := copy(p, c.chunks[c.i])
	c.i++
	return n, nil
}

func (c *chunkedReader) SetReadDeadline(time.Time) error { return nil }

type bytesEOF struct{}

func (bytesEOF) Error() string { return "EOF" }
