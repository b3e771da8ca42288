package server

import (
	"bufio"
	"context"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/tryteex/tiny-web-sub001/action"
	"github.com/tryteex/tiny-web-sub001/cache"
	"github.com/tryteex/tiny-web-sub001/data"
	"github.com/tryteex/tiny-web-sub001/lang"
	"github.com/tryteex/tiny-web-sub001/pool"
	"github.com/tryteex/tiny-web-sub001/response"
	"github.com/tryteex/tiny-web-sub001/route"
)

type fakeConn struct{}

func (fakeConn) Query(ctx context.Context, query string, args ...any) ([]pool.Row, error) {
	return nil, nil
}
func (fakeConn) Close(ctx context.Context) error { return nil }

func testDeps() action.Deps {
	c := cache.New()
	dial := func(ctx context.Context) (pool.Conn, error) { return fakeConn{}, nil }
	p := pool.New(context.Background(), 1, dial, nil)
	return action.Deps{
		Engine:    action.NewEngine(),
		Cache:     c,
		Pool:      p,
		Route:     route.New(c, p),
		Templates: &action.Templates{List: map[uint64]map[uint64]map[uint64][]byte{}},
		Lang:      &lang.Bundle{List: map[uint64]map[uint64]map[uint64]map[uint64]string{}},
	}
}

func TestServeHandlesOneHTTPRequest(t *testing.T) {
	deps := testDeps()
	deps.Engine.Register("blog", "post", "show", func(a *action.Action) action.Answer {
		return action.String("hello world")
	})

	ln, err := Bind("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	s := New(ln, AllowFrom{Mode: "any"}, response.HTTP, deps, "session", t.TempDir(), "salt", nopLogger())

	done := make(chan error, 1)
	go func() { done <- s.Serve() }()
	defer func() {
		s.Stop()
		<-done
	}()

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	req := "GET /blog/post/show HTTP/1.0\r\nHost: localhost\r\n\r\n"
	if _, err := conn.Write([]byte(req)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	reader := bufio.NewReader(conn)
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		lines = append(lines, line)
		if err != nil {
			break
		}
	}
	out := strings.Join(lines, "")
	if !strings.Contains(out, "hello world") {
		t.Fatalf("response = %q, want it to contain %q", out, "hello world")
	}
	if !strings.Contains(out, "Status: 200") {
		t.Fatalf("response = %q, want a 200 status line", out)
	}
}

func TestServeRejectsDisallowedAddress(t *testing.T) {
	deps := testDeps()
	ln, err := Bind("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	s := New(ln, AllowFrom{Mode: "ip", IP: net.ParseIP("203.0.113.1")}, response.HTTP, deps, "session", t.TempDir(), "salt", nopLogger())

	done := make(chan error, 1)
	go func() { done <- s.Serve() }()
	defer func() {
		s.Stop()
		<-done
	}()

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("expected the connection to be closed with no data for a disallowed address")
	}
	conn.Close()
}

// TestServeRedirectCleansSpilledUploads sends a multipart upload to a
// URL that resolves to a stored redirect, so action.New returns before
// an Action is ever built. The decoder still spills the file part to
// tmpDir before route resolution runs, and that spilled file must not
// survive the request (spec §4.C/§5 "Temp files are ... deleted
// unconditionally at request end", including the redirect path).
func TestServeRedirectCleansSpilledUploads(t *testing.T) {
	deps := testDeps()
	deps.Cache.Set("redirect:/up", data.NewRedirect(data.Redirect{URL: "/new-place", Permanent: true}))

	ln, err := Bind("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	tmpDir := t.TempDir()
	s := New(ln, AllowFrom{Mode: "any"}, response.HTTP, deps, "session", tmpDir, "salt", nopLogger())

	done := make(chan error, 1)
	go func() { done <- s.Serve() }()
	defer func() {
		s.Stop()
		<-done
	}()

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	const boundary = "redirectboundary"
	body := "--" + boundary + "\r\n" +
		"Content-Disposition: form-data; name=\"file\"; filename=\"x.txt\"\r\n" +
		"Content-Type: text/plain\r\n\r\n" +
		"payload\r\n" +
		"--" + boundary + "--\r\n"

	req := "POST /up HTTP/1.0\r\n" +
		"Host: localhost\r\n" +
		"Content-Type: multipart/form-data; boundary=" + boundary + "\r\n" +
		"Content-Length: " + itoa(len(body)) + "\r\n\r\n" +
		body
	if _, err := conn.Write([]byte(req)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	reader := bufio.NewReader(conn)
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		lines = append(lines, line)
		if err != nil {
			break
		}
	}
	out := strings.Join(lines, "")
	if !strings.Contains(out, "Location: /new-place") {
		t.Fatalf("response = %q, want a redirect to /new-place", out)
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("ReadDir(tmpDir): %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("tmpDir still has %d file(s) after a redirected upload: %v", len(entries), entries)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := [20]byte{}
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[i:])
}

func TestApplyWorkerCountZeroIsNoop(t *testing.T) {
	// Must not panic and must not change GOMAXPROCS when max <= 0.
	ApplyWorkerCount(0)
	ApplyWorkerCount(-1)
}
