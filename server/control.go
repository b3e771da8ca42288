// Control channel: the stop-sentinel protocol, grounded directly on
// original_source/src/sys/go.rs's Go::listen_rpc (server side) and
// Go::send_stop (client side).
package server

import (
	"encoding/binary"
	"errors"
	"net"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/tryteex/tiny-web-sub001/data"
)

// controlReadTimeout bounds how long the control listener waits for the
// 8-byte sentinel after accepting a connection (original: 2 seconds).
const controlReadTimeout = 2 * time.Second

// StopSentinel computes the 8-byte big-endian signed sentinel a stop
// request must send (spec §6 "FNV1a_64(\"stop\" || salt)").
func StopSentinel(salt string) int64 {
	return int64(data.FNV1a64("stop" + salt))
}

// ErrBadSentinel is returned by SendStop when the server's behavior
// indicates the salt did not match (the connection closed without an
// ack).
var ErrBadSentinel = errors.New("server: control channel did not acknowledge the stop sentinel")

// Control listens on addr for stop requests. Serve blocks until either
// a correctly-signed stop request arrives (in which case it acks the
// caller with this process's PID and returns nil) or the listener is
// closed (returning the listener's error, typically net.ErrClosed).
type Control struct {
	ln   net.Listener
	salt string
	log  *zap.Logger
	allow AllowFrom
}

// ListenControl binds the control channel listener (spec §6 "A
// dedicated listener distinct from the request listener").
func ListenControl(addr string, allow AllowFrom, salt string, log *zap.Logger) (*Control, error) {
	ln, err := Bind(addr)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Control{ln: ln, salt: salt, log: log, allow: allow}, nil
}

// Addr returns the bound listener's address.
func (c *Control) Addr() net.Addr { return c.ln.Addr() }

// Close releases the listener.
func (c *Control) Close() error { return c.ln.Close() }

// Serve accepts control connections until the listener is closed or a
// correctly-signed stop sentinel arrives, in which case it acks the PID
// and returns nil so the caller can proceed to shut the rest of the
// process down (spec §6 "On match, the server acks with its PID ...
// sets a global stop flag, initiates shutdown").
func (c *Control) Serve() error {
	for {
		conn, err := c.ln.Accept()
		if err != nil {
			return err
		}
		if !c.allow.Allows(conn.RemoteAddr()) {
			c.log.Warn("server: rejected control connection from disallowed address", zap.Stringer("addr", conn.RemoteAddr()))
			conn.Close()
			continue
		}
		setNoDelay(conn)

		matched, err := c.readSentinel(conn)
		if err != nil {
			c.log.Warn("server: control channel read failed", zap.Error(err))
			conn.Close()
			continue
		}
		if !matched {
			c.log.Warn("server: control channel received a non-matching sentinel")
			conn.Close()
			continue
		}

		pid := uint64(os.Getpid())
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], pid)
		if _, err := conn.Write(buf[:]); err != nil {
			c.log.Warn("server: failed to ack control channel", zap.Error(err))
		}
		conn.Close()
		return nil
	}
}

func (c *Control) readSentinel(conn net.Conn) (bool, error) {
	conn.SetReadDeadline(time.Now().Add(controlReadTimeout))
	defer conn.SetReadDeadline(time.Time{})

	var buf [8]byte
	if _, err := readFull(conn, buf[:]); err != nil {
		return false, err
	}
	signal := int64(binary.BigEndian.Uint64(buf[:]))
	return signal == StopSentinel(c.salt), nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// SendStop dials addr, sends the stop sentinel for salt, and waits for
// the server's 8-byte PID ack (spec §6 CLI "stop" verb). It returns the
// acked PID on success.
func SendStop(addr string, salt string, timeout time.Duration) (uint64, error) {
	conn, err := net.DialTimeout(network(addr), addr, timeout)
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	setNoDelay(conn)

	conn.SetDeadline(time.Now().Add(timeout))

	var out [8]byte
	binary.BigEndian.PutUint64(out[:], uint64(StopSentinel(salt)))
	if _, err := conn.Write(out[:]); err != nil {
		return 0, err
	}

	var in [8]byte
	if _, err := readFull(conn, in[:]); err != nil {
		return 0, ErrBadSentinel
	}
	return binary.BigEndian.Uint64(in[:]), nil
}

// DialControl opens a plain connection to the control channel without
// sending the stop sentinel, for a caller that only wants to know
// whether something is listening (spec §6 "status (reserved)" — a
// status check must not risk being mistaken for a stop request).
func DialControl(addr string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout(network(addr), addr, timeout)
}

func network(addr string) string {
	if len(addr) > 0 && addr[0] == '/' {
		return "unix"
	}
	return "tcp"
}
