// Package remotetest provides an in-process fake sensor node for tests.
package remotetest

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/f9-o/sensorhub/pkg/netutil"
)

// Credentials accepted by a fresh Node.
const (
	Username = "kootnet"
	Password = "sensors"
)

const sessionCookie = "sensorhub_session"

// Node is a fake sensor node served over TLS by httptest. Unauthenticated
// commands are CheckOnlineStatus, GetHostName, GetSensorReadings and every
// Get<Metric> registered with Set; everything else needs a login first.
type Node struct {
	srv *httptest.Server

	mu        sync.Mutex
	hostname  string
	password  string
	delay     time.Duration
	responses map[string][]byte
	status    map[string]int
	open      map[string]bool
	sessions  map[string]bool
	hits      map[string]int
}

// NewNode starts a fake node that is stopped when the test ends.
func NewNode(t testing.TB, hostname string) *Node {
	t.Helper()
	n := &Node{
		hostname:  hostname,
		password:  Password,
		responses: map[string][]byte{},
		status:    map[string]int{},
		open:      map[string]bool{"CheckOnlineStatus": true, "GetHostName": true, "GetSensorReadings": true},
		sessions:  map[string]bool{},
		hits:      map[string]int{},
	}
	n.srv = httptest.NewTLSServer(http.HandlerFunc(n.serve))
	t.Cleanup(n.srv.Close)
	return n
}

// Address returns the node's host:port.
func (n *Node) Address() string {
	return strings.TrimPrefix(n.srv.URL, "https://")
}

// Close stops the node; later calls see a refused connection.
func (n *Node) Close() { n.srv.Close() }

// Set registers the body returned for cmd.
func (n *Node) Set(cmd string, body []byte) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.responses[cmd] = body
	return n
}

// SetOpen registers an unauthenticated body for cmd.
func (n *Node) SetOpen(cmd string, body []byte) *Node {
	n.Set(cmd, body)
	n.mu.Lock()
	n.open[cmd] = true
	n.mu.Unlock()
	return n
}

// SetStatus forces an HTTP status for cmd.
func (n *Node) SetStatus(cmd string, code int) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.status[cmd] = code
	return n
}

// SetPassword changes the accepted password, e.g. to make logins fail.
func (n *Node) SetPassword(p string) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.password = p
	return n
}

// SetDelay makes every response wait d first.
func (n *Node) SetDelay(d time.Duration) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delay = d
	return n
}

// Hits returns how many times cmd was requested.
func (n *Node) Hits(cmd string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.hits[cmd]
}

func (n *Node) serve(w http.ResponseWriter, r *http.Request) {
	cmd := strings.TrimPrefix(r.URL.Path, "/")

	n.mu.Lock()
	n.hits[cmd]++
	delay := n.delay
	n.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if cmd == "atpro/login" {
		n.login(w, r)
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.open[cmd] && !n.authenticated(r) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("Login Required - Sensor Authentication Failed"))
		return
	}
	if code, ok := n.status[cmd]; ok {
		w.WriteHeader(code)
	}
	switch cmd {
	case "CheckOnlineStatus":
		_, _ = w.Write([]byte("OK"))
	case "GetHostName":
		_, _ = w.Write([]byte(n.hostname))
	case "TestLogin":
		_, _ = w.Write([]byte("OK"))
	default:
		body, ok := n.responses[cmd]
		if !ok {
			if r.Method == http.MethodPut {
				_, _ = w.Write([]byte("OK"))
				return
			}
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write(body)
	}
}

func (n *Node) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if r.PostForm.Get("login_username") != Username || r.PostForm.Get("login_password") != n.password {
		_, _ = w.Write([]byte("Login Required - Sensor Authentication Failed"))
		return
	}
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	id := hex.EncodeToString(buf)
	n.sessions[id] = true
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: id, Path: "/"})
	_, _ = w.Write([]byte("OK"))
}

func (n *Node) authenticated(r *http.Request) bool {
	c, err := r.Cookie(sessionCookie)
	return err == nil && n.sessions[c.Value]
}

// DeadAddress returns a localhost address with nothing listening on it.
func DeadAddress(t testing.TB) string {
	t.Helper()
	port, err := netutil.FreePort()
	if err != nil {
		t.Fatalf("free port: %v", err)
	}
	return "127.0.0.1:" + strconv.Itoa(port)
}
