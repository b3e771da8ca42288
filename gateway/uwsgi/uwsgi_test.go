package uwsgi

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/tryteex/tiny-web-sub001/stream"
)

type byteReader struct {
	*bytes.Reader
}

func (byteReader) SetReadDeadline(time.Time) error { return nil }

func writeVar(buf *bytes.Buffer, key, val string) {
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(key)))
	buf.Write(lenBuf[:])
	buf.WriteString(key)
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(val)))
	buf.Write(lenBuf[:])
	buf.WriteString(val)
}

func buildPacket(vars map[string]string) []byte {
	var body bytes.Buffer
	// deterministic ordering for test reproducibility
	order := []string{"CONTENT_LENGTH", "REQUEST_METHOD", "HTTP_HOST", "QUERY_STRING"}
	for _, k := range order {
		if v, ok := vars[k]; ok {
			writeVar(&body, k, v)
		}
	}

	var out bytes.Buffer
	out.WriteByte(0)
	var sz [2]byte
	binary.LittleEndian.PutUint16(sz[:], uint16(body.Len()))
	out.Write(sz[:])
	out.WriteByte(0)
	out.Write(body.Bytes())
	return out.Bytes()
}

func TestReadRequestBasic(t *testing.T) {
	packet := buildPacket(map[string]string{
		"CONTENT_LENGTH": "11",
		"REQUEST_METHOD": "POST",
		"HTTP_HOST":      "example.com",
		"QUERY_STRING":   "a=1",
	})
	raw := append(packet, []byte("field=value")...)
	buf := stream.New(byteReader{bytes.NewReader(raw)})

	result, err := ReadRequest(buf, "tiny_session", 0)
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if result.Request.Host != "example.com" {
		t.Fatalf("host = %q", result.Request.Host)
	}
	if string(result.Body) != "field=value" {
		t.Fatalf("body = %q", result.Body)
	}
	if result.Request.Input.Get["a"] != "1" {
		t.Fatalf("query = %+v", result.Request.Input.Get)
	}
}

func TestReadRequestRejectsBadModifiers(t *testing.T) {
	raw := []byte{1, 0, 0, 0}
	buf := stream.New(byteReader{bytes.NewReader(raw)})
	_, err := ReadRequest(buf, "tiny_session", 0)
	if err != ErrProtocol {
		t.Fatalf("err = %v, want ErrProtocol", err)
	}
}

func TestReadRequestRejectsTruncatedVar(t *testing.T) {
	var out bytes.Buffer
	out.WriteByte(0)
	sz := []byte{3, 0}
	out.Write(sz)
	out.WriteByte(0)
	out.Write([]byte{5, 0, 'a'}) // claims keyLen=5 but only 1 byte follows
	buf := stream.New(byteReader{bytes.NewReader(out.Bytes())})
	_, err := ReadRequest(buf, "tiny_session", 0)
	if err != ErrProtocol {
		t.Fatalf("err = %v, want ErrProtocol", err)
	}
}
