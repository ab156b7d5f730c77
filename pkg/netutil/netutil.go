// Package netutil provides node address resolution and network helpers used across sensorhub.
package netutil

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// DefaultNodePort is the port sensor nodes listen on when an address omits one.
const DefaultNodePort = 10065

// URL schemes accepted in node addresses.
const (
	SchemeHTTPS = "https"
	SchemeHTTP  = "http"
)

// NodeAddress is a resolved node address. Immutable once resolved.
// IPv6 hosts keep their brackets, e.g. "[::1]".
type NodeAddress struct {
	Scheme string `json:"scheme"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Raw    string `json:"raw"`
}

// Resolve parses a user-supplied node address into scheme, host and port.
//
// Resolve never fails: malformed input degrades to a best-effort split and
// the default port. Input is lower-cased; a leading http:// or https:// is
// stripped (https is the default) along with any path.
func Resolve(raw string) NodeAddress {
	addr := NodeAddress{Scheme: SchemeHTTPS, Port: DefaultNodePort, Raw: raw}

	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.HasPrefix(s, SchemeHTTPS+"://"):
		s = s[len(SchemeHTTPS)+3:]
	case strings.HasPrefix(s, SchemeHTTP+"://"):
		addr.Scheme = SchemeHTTP
		s = s[len(SchemeHTTP)+3:]
	}
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}

	if strings.HasPrefix(s, "[") {
		end := strings.IndexByte(s, ']')
		if end < 0 {
			addr.Host = s + "]"
			return addr
		}
		addr.Host = s[:end+1]
		if rest := s[end+1:]; strings.HasPrefix(rest, ":") {
			if p, ok := parsePort(rest[1:]); ok {
				addr.Port = p
			}
		}
		return addr
	}

	switch strings.Count(s, ":") {
	case 0:
		addr.Host = s
	case 1:
		host, port, _ := strings.Cut(s, ":")
		addr.Host = host
		if p, ok := parsePort(port); ok {
			addr.Port = p
		}
	default:
		// Bare IPv6 literal: bracket it, no port can be told apart.
		bare := strings.NewReplacer("[", "", "]", "").Replace(s)
		addr.Host = "[" + bare + "]"
	}
	return addr
}

// String returns "host:port".
func (a NodeAddress) String() string {
	return a.Host + ":" + strconv.Itoa(a.Port)
}

// Format returns the canonical "scheme://host:port" form. Resolving the
// result yields an address Equal to a.
func (a NodeAddress) Format() string {
	return a.Scheme + "://" + a.String()
}

// URL joins the canonical base with path.
func (a NodeAddress) URL(path string) string {
	return a.Format() + "/" + strings.TrimPrefix(path, "/")
}

// Equal compares two addresses ignoring the raw input they came from.
func (a NodeAddress) Equal(b NodeAddress) bool {
	return a.Scheme == b.Scheme && a.Host == b.Host && a.Port == b.Port
}

// DialAddr returns the host:port form accepted by net.Dial.
func (a NodeAddress) DialAddr() string {
	return net.JoinHostPort(strings.Trim(a.Host, "[]"), strconv.Itoa(a.Port))
}

func parsePort(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	p, err := strconv.Atoi(s)
	if err != nil || p < 1 || p > 65535 {
		return 0, false
	}
	return p, true
}

// ProbeTCP dials addr and returns the connect latency if successful within the timeout.
func ProbeTCP(ctx context.Context, addr NodeAddress, timeout time.Duration) (time.Duration, error) {
	start := time.Now()
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr.DialAddr())
	if err != nil {
		return 0, fmt.Errorf("tcp probe to %s failed: %w", addr, err)
	}
	conn.Close()
	return time.Since(start), nil
}

// IsConnRefused reports whether err looks like a refused or unroutable connection,
// as opposed to a timeout or protocol error.
func IsConnRefused(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no route to host") ||
		strings.Contains(msg, "network is unreachable") ||
		strings.Contains(msg, "no such host")
}

// FreePort finds an available TCP port on localhost.
func FreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
