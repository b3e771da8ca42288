// Package decode implements the Input Decoder (spec §4.C): turns a
// request body plus its Content-Type into POST fields, uploaded files
// spilled to temp paths, or a raw JSON/string/bytes value. Grounded on
// the original_source request/file model (src/sys/request.rs,
// src/sys/action.rs temp-file cleanup in Action::stop) for the File
// record shape and the "always remove temp files at request end"
// invariant; RFC 2046 multipart parsing itself has no analog in
// original_source (filtered out of the retrieval) so it is built on
// the standard library's mime/multipart — the idiomatic Go tool for
// this and not a concern any example repo's dependency stack covers.
package decode

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bytedance/sonic"

	"github.com/tryteex/tiny-web-sub001/data"
	"github.com/tryteex/tiny-web-sub001/gateway"
)

// maxMemory*64 (64 MiB) caps how many bytes spillToTemp writes for one
// uploaded file part; bytes past the cap are not written. Text fields
// are read into memory whole.
const maxMemory = 1 << 20

// Decode classifies body by contentType and fills post/raw accordingly.
// Uploaded file parts are written under tmpDir using the
// tiny_<secs>_<nanos>.tmp naming scheme (spec §4.C); the caller owns
// removing them at request end (see Cleanup).
func Decode(body []byte, contentType, tmpDir string) (post map[string]string, files []data.File, raw data.Raw, err error) {
	post = make(map[string]string)

	mediaType, params, _ := mime.ParseMediaType(contentType)
	switch {
	case mediaType == "application/x-www-form-urlencoded":
		gateway.ParseQueryInto(post, string(body))
		return post, nil, data.Raw{Kind: data.RawNone}, nil

	case strings.HasPrefix(mediaType, "multipart/"):
		boundary, ok := params["boundary"]
		if !ok {
			return post, nil, data.Raw{Kind: data.RawNone}, fmt.Errorf("decode: multipart request missing boundary")
		}
		files, err = decodeMultipart(body, boundary, tmpDir, post)
		return post, files, data.Raw{Kind: data.RawNone}, err

	case mediaType == "application/json":
		var v any
		if err := sonic.Unmarshal(body, &v); err != nil {
			return post, nil, data.Raw{Kind: data.RawNone}, err
		}
		return post, nil, data.Raw{Kind: data.RawJSON, JSON: v}, nil

	default:
		if utf8.Valid(body) {
			return post, nil, data.Raw{Kind: data.RawString, Str: string(body)}, nil
		}
		return post, nil, data.Raw{Kind: data.RawBytes, Bytes: body}, nil
	}
}

func decodeMultipart(body []byte, boundary, tmpDir string, post map[string]string) ([]data.File, error) {
	reader := multipart.NewReader(bytes.NewReader(body), boundary)
	var files []data.File
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return files, err
		}

		if part.FileName() == "" {
			var buf bytes.Buffer
			if _, err := io.Copy(&buf, part); err != nil {
				part.Close()
				return files, err
			}
			post[part.FormName()] = buf.String()
			part.Close()
			continue
		}

		f, n, err := spillToTemp(part, tmpDir)
		part.Close()
		if err != nil {
			return files, err
		}
		files = append(files, data.File{
			Field:    part.FormName(),
			Filename: part.FileName(),
			Size:     n,
			Tmp:      f,
		})
	}
	return files, nil
}

func spillToTemp(r io.Reader, tmpDir string) (path string, size int64, err error) {
	now := time.Now()
	name := fmt.Sprintf("tiny_%d_%d.tmp", now.Unix(), now.Nanosecond())
	path = filepath.Join(tmpDir, name)

	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", 0, err
	}
	defer out.Close()

	n, err := io.Copy(out, io.LimitReader(r, maxMemory*64))
	if err != nil {
		return "", 0, err
	}
	return path, n, nil
}

// Cleanup removes every temp file recorded in files, unconditionally
// (spec §4.C "Temp files are always removed at request end, including
// error and redirect paths").
func Cleanup(files []data.File) {
	for _, f := range files {
		_ = os.Remove(f.Tmp)
	}
}
