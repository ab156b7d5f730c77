package netutil

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		raw    string
		scheme string
		host   string
		port   int
	}{
		{"192.168.1.20", SchemeHTTPS, "192.168.1.20", DefaultNodePort},
		{"192.168.1.20:9999", SchemeHTTPS, "192.168.1.20", 9999},
		{"Sensor-Kitchen.local", SchemeHTTPS, "sensor-kitchen.local", DefaultNodePort},
		{"https://sensor.local:10066/", SchemeHTTPS, "sensor.local", 10066},
		{"HTTP://10.0.0.4/", SchemeHTTP, "10.0.0.4", DefaultNodePort},
		{"http://10.0.0.4:8080/some/path", SchemeHTTP, "10.0.0.4", 8080},
		{"[::1]:9999", SchemeHTTPS, "[::1]", 9999},
		{"[fe80::1]", SchemeHTTPS, "[fe80::1]", DefaultNodePort},
		{"fe80::1", SchemeHTTPS, "[fe80::1]", DefaultNodePort},
		{"[::1", SchemeHTTPS, "[::1]", DefaultNodePort},
		{"host:notaport", SchemeHTTPS, "host", DefaultNodePort},
		{"host:70000", SchemeHTTPS, "host", DefaultNodePort},
		{"host:", SchemeHTTPS, "host", DefaultNodePort},
		{"  10.0.0.9:10065  ", SchemeHTTPS, "10.0.0.9", 10065},
		{"", SchemeHTTPS, "", DefaultNodePort},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := Resolve(tt.raw)
			assert.Equal(t, tt.scheme, got.Scheme)
			assert.Equal(t, tt.host, got.Host)
			assert.Equal(t, tt.port, got.Port)
			assert.Equal(t, tt.raw, got.Raw)
		})
	}
}

func TestResolve_FormatIsIdempotent(t *testing.T) {
	inputs := []string{
		"10.0.0.1", "10.0.0.1:80", "http://x.y/", "[::1]:9999", "::1", "[abc",
		"[[x", "a]:b:c", "a[b", "ftp://weird", "HTTPS://UPPER:123/", ":::", "]", "[]:1",
	}
	for _, raw := range inputs {
		first := Resolve(raw)
		second := Resolve(first.Format())
		assert.Truef(t, first.Equal(second), "raw=%q first=%+v second=%+v", raw, first, second)
	}
}

func FuzzResolve_FormatIsIdempotent(f *testing.F) {
	for _, seed := range []string{"10.0.0.1:10065", "[::1]:9999", "http://a/", "::"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, raw string) {
		first := Resolve(raw)
		second := Resolve(first.Format())
		if !first.Equal(second) {
			t.Fatalf("raw=%q first=%+v second=%+v", raw, first, second)
		}
	})
}

func TestNodeAddress_URLAndDialAddr(t *testing.T) {
	a := Resolve("[::1]:9999")
	assert.Equal(t, "https://[::1]:9999/GetHostName", a.URL("/GetHostName"))
	assert.Equal(t, "[::1]:9999", a.DialAddr())
	assert.Equal(t, "[::1]:9999", a.String())

	b := Resolve("http://10.1.1.1")
	assert.Equal(t, "http://10.1.1.1:10065/CheckOnlineStatus", b.URL("CheckOnlineStatus"))
}

func TestProbeTCP(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	addr := Resolve(l.Addr().String())
	latency, err := ProbeTCP(context.Background(), addr, time.Second)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, latency, time.Duration(0))

	port, err := FreePort()
	require.NoError(t, err)
	_, err = ProbeTCP(context.Background(), Resolve("127.0.0.1:"+strconv.Itoa(port)), 200*time.Millisecond)
	assert.Error(t, err)
}

func TestIsConnRefused(t *testing.T) {
	assert.False(t, IsConnRefused(nil))
	assert.True(t, IsConnRefused(&net.OpError{Op: "dial", Err: errString("connect: connection refused")}))
	assert.False(t, IsConnRefused(errString("context deadline exceeded")))
}

type errString string

func (e errString) Error() string { return string(e) }
