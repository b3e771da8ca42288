// Package response implements the per-connection Response Writer (spec
// §4.I): a single-producer channel serializes every write against one
// connection's write half, applying FastCGI STDOUT/END_REQUEST framing
// or writing bytes verbatim for SCGI, uWSGI and HTTP. Grounded on
// original_source/src/sys/net/stream.rs's StreamWrite (an mpsc channel
// plus a spawned task draining it), translated into a buffered Go
// channel and goroutine. Write does not report I/O failures: each
// failure is logged at warning, and the first one is returned by End.
package response

import (
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/tryteex/tiny-web-sub001/gateway/fastcgi"
)

// Protocol selects how Writer frames bytes handed to Write.
type Protocol int

const (
	FastCGI Protocol = iota
	SCGI
	UWSGI
	HTTP
)

// ErrClosed is returned by Write after End has been called.
var ErrClosed = errors.New("response: writer closed")

type job struct {
	requestID uint16
	data      []byte
	end       bool
}

// Writer owns the write half of one connection. The zero value is not
// usable; construct with New. A Writer serves every request on its
// connection: FastCGI's keep-alive multiplexing and HTTP's keep-alive
// both reuse the same Writer across several Write calls before End is
// finally invoked at connection teardown.
type Writer struct {
	conn     io.Writer
	protocol Protocol
	log      *zap.Logger

	jobs chan job
	done chan struct{}

	mu     sync.Mutex
	closed bool
	err    error
}

// New starts the background writer goroutine for conn. log may be nil.
func New(conn io.Writer, protocol Protocol, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	w := &Writer{
		conn:     conn,
		protocol: protocol,
		log:      log,
		jobs:     make(chan job, 32),
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

// Write enqueues p for requestID. For FastCGI, end marks the final
// fragment of this request's answer: the record stream is closed with
// an empty STDOUT record followed by END_REQUEST (spec §4.I "a final
// end=true flush appends empty STDOUT + END_REQUEST"). SCGI, uWSGI and
// HTTP ignore end and requestID, writing p verbatim. Write never blocks
// on I/O; it only blocks if the internal queue is full.
func (w *Writer) Write(requestID uint16, p []byte, end bool) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.mu.Unlock()

	buf := append([]byte(nil), p...)
	select {
	case w.jobs <- job{requestID: requestID, data: buf, end: end}:
		return nil
	case <-w.done:
		return ErrClosed
	}
}

// End drains the queued jobs, stops the background goroutine, and
// releases the write half. It is safe to call End more than once; only
// the first call has effect. The error returned is the first write
// failure observed, if any (spec §4.I "end() drains the channel and
// releases the write half").
func (w *Writer) End() error {
	w.mu.Lock()
	if w.closed {
		err := w.err
		w.mu.Unlock()
		return err
	}
	w.closed = true
	w.mu.Unlock()

	close(w.jobs)
	<-w.done

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *Writer) run() {
	defer close(w.done)
	for j := range w.jobs {
		if err := w.writeJob(j); err != nil {
			w.log.Warn("response: write failed", zap.Error(err))
			w.mu.Lock()
			if w.err == nil {
				w.err = err
			}
			w.mu.Unlock()
		}
	}
}

func (w *Writer) writeJob(j job) error {
	if w.protocol != FastCGI {
		if len(j.data) == 0 {
			return nil
		}
		_, err := w.conn.Write(j.data)
		return err
	}

	if err := fastcgi.WriteStdout(w.conn, j.requestID, j.data); err != nil {
		return err
	}
	if !j.end {
		return nil
	}
	if err := fastcgi.WriteStdout(w.conn, j.requestID, nil); err != nil {
		return err
	}
	return fastcgi.WriteEndRequest(w.conn, j.requestID, 0, fastcgi.StatusRequestComplete)
}
