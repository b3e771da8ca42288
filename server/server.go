// Server wires the request listener's accept loop to the gateway
// parsers, the Input Decoder, the Action Engine and the Response
// Writer (spec §4, §5). Grounded on original_source/src/sys/go.rs's
// Go::listen (the per-connection accept loop, here translated from a
// tokio::spawn-per-connection task into a plain goroutine-per-
// connection, since Go has no separate "worker threads" runtime knob —
// spec §6's max key instead sizes runtime.GOMAXPROCS, the nearest Go
// equivalent of tokio's worker_threads).
package server

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tryteex/tiny-web-sub001/action"
	"github.com/tryteex/tiny-web-sub001/data"
	"github.com/tryteex/tiny-web-sub001/decode"
	"github.com/tryteex/tiny-web-sub001/gateway"
	"github.com/tryteex/tiny-web-sub001/gateway/fastcgi"
	"github.com/tryteex/tiny-web-sub001/gateway/httpparser"
	"github.com/tryteex/tiny-web-sub001/gateway/scgi"
	"github.com/tryteex/tiny-web-sub001/gateway/uwsgi"
	"github.com/tryteex/tiny-web-sub001/response"
	"github.com/tryteex/tiny-web-sub001/session"
	"github.com/tryteex/tiny-web-sub001/stream"
)

// readTimeout bounds how long a connection's read side waits for the
// next byte before the task gives up (spec §7 "Stream errors (Closed,
// Timeout, Buffer, IO): end the connection task").
const readTimeout = 30 * time.Second

// Server runs one request listener's accept loop for one wire protocol.
// A process that must speak more than one protocol at once runs one
// Server per listener, sharing the same Deps.
type Server struct {
	Deps              action.Deps
	Protocol          response.Protocol
	SessionCookieName string
	TmpDir            string
	Salt              string
	Log               *zap.Logger

	ln      net.Listener
	allow   AllowFrom
	stopped int32 // accessed atomically
}

// New builds a Server bound to ln. allow filters accepted connections by
// source address (spec §6's bind_from/rpc_from).
func New(ln net.Listener, allow AllowFrom, protocol response.Protocol, deps action.Deps, sessionCookieName, tmpDir, salt string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		Deps:              deps,
		Protocol:          protocol,
		SessionCookieName: sessionCookieName,
		TmpDir:            tmpDir,
		Salt:              salt,
		Log:               log,
		ln:                ln,
		allow:             allow,
	}
}

// ApplyWorkerCount sets GOMAXPROCS to max when max > 0 (spec §6 "max:
// Worker count (auto = cpu count)"). Grounded on original_source's
// Builder::new_multi_thread().worker_threads(init.conf.max) — Go has no
// separate async-runtime thread pool, so the nearest equivalent knob is
// GOMAXPROCS.
func ApplyWorkerCount(max int) {
	if max > 0 {
		runtime.GOMAXPROCS(max)
	}
}

// Serve runs the accept loop until the listener is closed by Stop,
// returning nil in that case (any other Accept error is returned
// as-is).
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if atomic.LoadInt32(&s.stopped) == 1 {
				return nil
			}
			return err
		}
		if !s.allow.Allows(conn.RemoteAddr()) {
			s.Log.Warn("server: rejected connection from disallowed address", zap.Stringer("addr", conn.RemoteAddr()))
			conn.Close()
			continue
		}
		setNoDelay(conn)
		go s.handleConn(conn)
	}
}

// Stop closes the listener so a blocked Accept returns (spec §6 control
// channel "initiates shutdown").
func (s *Server) Stop() error {
	atomic.StoreInt32(&s.stopped, 1)
	return s.ln.Close()
}

// handleConn tags every log line this connection produces with a
// per-connection correlation ID, so a stream of interleaved
// goroutine-per-connection log output can be split back out by
// connection (SPEC_FULL.md §B: uuid "attached to log lines" as an
// observability aid, not part of any wire protocol). A panic raised
// while handling a request is recovered and logged here, and ends only
// this connection.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	log := s.Log.With(zap.String("conn_id", uuid.NewString()))
	defer func() {
		if r := recover(); r != nil {
			log.Error("server: request handling panicked, closing connection", zap.Any("panic", r))
		}
	}()

	buf := stream.New(conn)
	w := response.New(conn, s.Protocol, log)
	defer w.End()

	for {
		keepAlive, err := s.handleOneRequest(buf, w, log)
		if err != nil || !keepAlive {
			return
		}
	}
}

// handleOneRequest parses exactly one logical request off buf, decodes
// its body, runs it through the Action Engine, and writes the answer.
// It returns whether the connection should stay open for another
// request (SCGI and uWSGI never keep the connection alive; FastCGI/HTTP
// may).
func (s *Server) handleOneRequest(buf *stream.Buffer, w *response.Writer, log *zap.Logger) (bool, error) {
	result, requestID, keepAlive, err := s.readRequest(buf)
	if err != nil {
		return false, err
	}

	tmpDir := s.TmpDir
	post, files, raw, decErr := decode.Decode(result.Body, result.Request.ContentType, tmpDir)
	// decode.Decode may spill multipart file parts to tmpDir before
	// hitting a parse error, and a redirect below means the Action is
	// never built far enough to run its own cleanup; this defer is the
	// one place that unconditionally removes whatever it spilled (spec
	// §4.C/§5 "Temp files are ... deleted unconditionally at request
	// end").
	defer decode.Cleanup(files)
	if decErr == nil {
		for k, v := range post {
			result.Request.Input.Post[k] = v
		}
		result.Request.Input.File = files
		result.Request.Raw = raw
	} else {
		log.Warn("server: decode failed", zap.Error(decErr))
	}

	defaultLangID := uint64(0)
	if s.Deps.Lang != nil {
		defaultLangID = s.Deps.Lang.Default
	}

	var sess session.Session
	if result.HasSession && gateway.IsSessionKey(result.SessionCookie) {
		sess = session.Load(context.Background(), s.Deps.Pool, result.SessionCookie, defaultLangID)
	} else {
		sess = session.New(defaultLangID, s.Salt, result.Request.IP.String(), result.Request.Agent, result.Request.Host)
	}

	a, redirect := action.New(context.Background(), s.Deps, result.Request, sess)
	var answer []byte
	if redirect != nil {
		a2 := &action.Action{Response: data.NewResponse()}
		a2.Response.SetRedirect(redirect.URL, redirect.Permanent)
		answer = renderResponse(a2.Response, nil)
	} else {
		res := a.Run(context.Background())
		answer = renderResponse(a.Response, &res)
		if stopErr := a.Stop(context.Background()); stopErr != nil {
			log.Warn("server: failed to persist session", zap.Error(stopErr))
		}
	}

	if writeErr := w.Write(requestID, answer, true); writeErr != nil {
		return false, writeErr
	}
	return keepAlive, nil
}

func (s *Server) readRequest(buf *stream.Buffer) (gateway.Result, uint16, bool, error) {
	switch s.Protocol {
	case response.FastCGI:
		res, id, keep, err := fastcgi.ReadRequest(buf, s.SessionCookieName, readTimeout)
		return res, id, keep, err
	case response.SCGI:
		res, err := scgi.ReadRequest(buf, s.SessionCookieName, readTimeout)
		return res, 0, false, err
	case response.UWSGI:
		res, err := uwsgi.ReadRequest(buf, s.SessionCookieName, readTimeout)
		return res, 0, false, err
	default:
		res, keep, err := httpparser.ReadRequest(buf, s.SessionCookieName, readTimeout)
		return res, 0, keep, err
	}
}

// renderResponse flattens an Answer plus any accumulated Response
// headers/redirect state into the bytes that go on the wire, as a
// CGI-style header block followed by a blank line and the body. Bytes
// and None answers pass their payload through verbatim; a File answer
// reads the file from disk (spec §C.5's supplemented static-asset
// passthrough).
func renderResponse(resp data.Response, res *action.Answer) []byte {
	var body []byte
	contentType := resp.ContentType

	if resp.Redirect == nil && res != nil {
		switch res.Kind {
		case action.KindString:
			body = []byte(res.Str)
		case action.KindBytes:
			body = res.Bytes
		case action.KindFile:
			content, err := os.ReadFile(res.Path)
			if err != nil {
				resp.HasCode = true
				resp.Code = 404
				break
			}
			body = content
			if contentType == "" {
				contentType = contentTypeFor(res.Path)
			}
		}
	}

	out := make([]byte, 0, len(body)+128)
	if resp.Redirect != nil {
		code := "302"
		if resp.Redirect.Permanent {
			code = "301"
		}
		out = append(out, "Status: "+code+"\r\n"...)
		out = append(out, "Location: "+resp.Redirect.URL+"\r\n"...)
	} else if resp.HasCode {
		out = append(out, "Status: "+fmtUint(resp.Code)+"\r\n"...)
	} else {
		out = append(out, "Status: 200 OK\r\n"...)
	}
	if contentType != "" {
		out = append(out, "Content-Type: "+contentType+"\r\n"...)
	}
	for _, h := range resp.Headers {
		out = append(out, h.Name+": "+h.Value+"\r\n"...)
	}
	out = append(out, "\r\n"...)
	out = append(out, body...)
	return out
}

func fmtUint(n uint16) string {
	if n == 0 {
		return "200"
	}
	digits := [5]byte{}
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[i:])
}

func contentTypeFor(path string) string {
	switch filepath.Ext(path) {
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	case ".css":
		return "text/css"
	case ".js":
		return "application/javascript"
	case ".json":
		return "application/json"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
