package decode

import (
	"bytes"
	"mime/multipart"
	"os"
	"testing"

	"github.com/tryteex/tiny-web-sub001/data"
)

func TestDecodeURLEncoded(t *testing.T) {
	post, files, raw, err := Decode([]byte("a=1&b=two+words"), "application/x-www-form-urlencoded", os.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if post["a"] != "1" || post["b"] != "two words" {
		t.Fatalf("post = %+v", post)
	}
	if len(files) != 0 || raw.Kind != data.RawNone {
		t.Fatalf("unexpected files/raw: %+v %+v", files, raw)
	}
}

func TestDecodeJSON(t *testing.T) {
	_, _, raw, err := Decode([]byte(`{"x":1}`), "application/json", os.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if raw.Kind != data.RawJSON {
		t.Fatalf("raw.Kind = %v, want RawJSON", raw.Kind)
	}
	m, ok := raw.JSON.(map[string]interface{})
	if !ok || m["x"].(float64) != 1 {
		t.Fatalf("decoded JSON = %+v", raw.JSON)
	}
}

func TestDecodePlainTextFallsBackToString(t *testing.T) {
	_, _, raw, err := Decode([]byte("hello"), "text/plain", os.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if raw.Kind != data.RawString || raw.Str != "hello" {
		t.Fatalf("raw = %+v", raw)
	}
}

func TestDecodeInvalidUTF8FallsBackToBytes(t *testing.T) {
	bad := []byte{0xff, 0xfe, 0xfd}
	_, _, raw, err := Decode(bad, "application/octet-stream", os.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if raw.Kind != data.RawBytes {
		t.Fatalf("raw.Kind = %v, want RawBytes", raw.Kind)
	}
}

func buildMultipart(t *testing.T) (body []byte, contentType string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("name", "alice"); err != nil {
		t.Fatal(err)
	}
	part, err := w.CreateFormFile("upload", "hello.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write([]byte("file contents")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes(), w.FormDataContentType()
}

func TestDecodeMultipart(t *testing.T) {
	body, contentType := buildMultipart(t)
	post, files, _, err := Decode(body, contentType, os.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if post["name"] != "alice" {
		t.Fatalf("post = %+v", post)
	}
	if len(files) != 1 || files[0].Field != "upload" || files[0].Filename != "hello.txt" {
		t.Fatalf("files = %+v", files)
	}
	defer Cleanup(files)

	contents, err := os.ReadFile(files[0].Tmp)
	if err != nil {
		t.Fatal(err)
	}
	if string(contents) != "file contents" {
		t.Fatalf("spilled file contents = %q", contents)
	}
}

func TestCleanupRemovesTempFiles(t *testing.T) {
	body, contentType := buildMultipart(t)
	_, files, _, err := Decode(body, contentType, os.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	Cleanup(files)
	if _, err := os.Stat(files[0].Tmp); !os.IsNotExist(err) {
		t.Fatalf("temp file should have been removed: %v", err)
	}
}
