// Package server implements process lifecycle, listeners, and the
// control channel (spec §6 "Request listener", "Control channel").
// Grounded on the teacher's listeners.go (shared-listener / TCP_NODELAY
// idiom) and original_source/src/sys/go.rs's Go::listen/listen_rpc,
// simplified from Caddy's hot-swap/QUIC/interface-binding machinery
// down to spec.md's single TCP-or-UDS bind with an `any`/`ip`/`uds-only`
// allow list, since this module has no JSON-driven reconfiguration.
package server

import (
	"errors"
	"net"
	"strings"
)

// AllowFrom decides which accepted connections are let through once a
// listener is bound (spec §6 "Accepting IP is filtered by an allow list
// of any / ip / uds-only").
type AllowFrom struct {
	// Mode is "any" (accept from anywhere), "ip" (accept only from the
	// literal address in IP), or "" (no IP filtering — used for UDS
	// binds, where the listener itself is the access boundary).
	Mode string
	IP   net.IP
}

// ParseAllowFrom interprets a bind_from/rpc_from config value (spec §6's
// key table: "any, ip, or empty (UDS only)"). A bare dotted/hex address
// is treated as an "ip" filter on that address; "any" and "" are passed
// through as-is.
func ParseAllowFrom(v string) AllowFrom {
	switch {
	case strings.EqualFold(v, "any"):
		return AllowFrom{Mode: "any"}
	case v == "":
		return AllowFrom{Mode: ""}
	default:
		return AllowFrom{Mode: "ip", IP: net.ParseIP(v)}
	}
}

// Allows reports whether a connection from addr should be accepted.
func (a AllowFrom) Allows(addr net.Addr) bool {
	if a.Mode != "ip" {
		return true
	}
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return true
	}
	return a.IP != nil && tcpAddr.IP.Equal(a.IP)
}

// ErrUnsupportedNetwork is returned by Bind for an address that is
// neither a host:port pair nor an absolute filesystem path.
var ErrUnsupportedNetwork = errors.New("server: address is neither a TCP host:port nor an absolute UDS path")

// Bind opens a TCP or Unix domain socket listener for addr (spec §6
// "One of TCP (IPv4/IPv6) or Unix domain socket, depending on
// configuration"). An address starting with "/" is treated as a UDS
// path; anything else is dialed as TCP.
func Bind(addr string) (net.Listener, error) {
	if strings.HasPrefix(addr, "/") {
		return net.Listen("unix", addr)
	}
	if addr == "" {
		return nil, ErrUnsupportedNetwork
	}
	return net.Listen("tcp", addr)
}

type canSetNoDelay interface {
	SetNoDelay(bool) error
}

// setNoDelay applies TCP_NODELAY to conn when it supports it (spec §6
// "TCP_NODELAY is set on accepted streams"); UDS connections have no
// such option and are left alone.
func setNoDelay(conn net.Conn) {
	if nd, ok := conn.(canSetNoDelay); ok {
		_ = nd.SetNoDelay(true)
	}
}
