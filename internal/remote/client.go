package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	v1 "github.com/f9-o/sensorhub/api/v1"
	"github.com/f9-o/sensorhub/internal/core/logger"
	"github.com/f9-o/sensorhub/pkg/errs"
	"github.com/f9-o/sensorhub/pkg/netutil"
)

// Default timeouts for outbound calls.
const (
	DefaultTimeout     = 10 * time.Second
	DefaultFileTimeout = 600 * time.Second
)

// UserAgent is sent with every outbound request.
const UserAgent = "sensorhub-remote/1.0"

// markerScanLimit bounds how much of a response is searched for AuthErrorMarker.
// Login pages are small; file payloads are not worth scanning in full.
const markerScanLimit = 64 << 10

// CredentialSource supplies the credentials for authenticated calls.
type CredentialSource interface {
	Get() v1.Credentials
}

// Options configures a Client.
type Options struct {
	VerifyTLS   bool          // self-signed node certs are the norm, so default off
	Timeout     time.Duration // reads and commands
	FileTimeout time.Duration // file downloads
}

// Client issues single requests to single nodes. It holds no per-node state;
// each call opens a fresh session.
type Client struct {
	creds     CredentialSource
	opts      Options
	transport http.RoundTripper
	log       *logger.Logger
}

// NewClient constructs a Client.
func NewClient(creds CredentialSource, opts Options, log *logger.Logger) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.FileTimeout == 0 {
		opts.FileTimeout = DefaultFileTimeout
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: !opts.VerifyTLS} //nolint:gosec
	tr.MaxIdleConnsPerHost = 4
	return &Client{creds: creds, opts: opts, transport: tr, log: log}
}

// WithTransport replaces the HTTP transport. Used by tests that talk to
// httptest TLS servers.
func (c *Client) WithTransport(rt http.RoundTripper) *Client {
	c.transport = rt
	return c
}

// TimeoutFor returns the configured timeout for cmd.
func (c *Client) TimeoutFor(cmd Command) time.Duration {
	if cmd.File {
		return c.opts.FileTimeout
	}
	return c.opts.Timeout
}

// SendTo resolves raw and sends cmd to it.
func (c *Client) SendTo(ctx context.Context, raw string, cmd Command, body url.Values, timeout time.Duration) ([]byte, error) {
	return c.Send(ctx, netutil.Resolve(raw), cmd, body, timeout)
}

// Send issues cmd to addr and returns the response body.
//
// Authenticated commands log in first on a fresh session. A zero timeout
// uses TimeoutFor(cmd). Errors are *errs.SensorError with one of
// ErrNodeUnreachable, ErrNodeAuthFailed or ErrNodeUnknown. There are no
// retries at this layer.
func (c *Client) Send(ctx context.Context, addr netutil.NodeAddress, cmd Command, body url.Values, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = c.TimeoutFor(cmd)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	jar, _ := cookiejar.New(nil)
	hc := &http.Client{Transport: c.transport, Jar: jar, Timeout: timeout}

	if cmd.NeedsAuth {
		if err := c.login(ctx, hc, addr); err != nil {
			return nil, err
		}
	}

	var reqBody io.Reader
	if body != nil {
		reqBody = strings.NewReader(body.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, cmd.Method, addr.URL(cmd.Path()), reqBody)
	if err != nil {
		return nil, errs.Wrap(err, errs.ErrNodeUnknown, "remote.build_request").WithNode(addr.String())
	}
	req.Header.Set("User-Agent", UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, c.unreachable(addr, cmd.Name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.unreachable(addr, cmd.Name, err)
	}
	return data, classify(addr, cmd.Name, resp.StatusCode, data)
}

// login performs the credential handshake; the session cookie lands in hc's jar.
func (c *Client) login(ctx context.Context, hc *http.Client, addr netutil.NodeAddress) error {
	creds := c.creds.Get()
	form := url.Values{
		LoginUserField:     {creds.Username},
		LoginPasswordField: {creds.Password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, addr.URL(LoginPath), strings.NewReader(form.Encode()))
	if err != nil {
		return errs.Wrap(err, errs.ErrNodeUnknown, "remote.login").WithNode(addr.String())
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", UserAgent)

	resp, err := hc.Do(req)
	if err != nil {
		return c.unreachable(addr, "login", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, markerScanLimit))
	if err != nil {
		return c.unreachable(addr, "login", err)
	}
	if err := classify(addr, "login", resp.StatusCode, data); err != nil {
		c.log.Debug("node login rejected", "node", addr.String(), "status", resp.StatusCode)
		return err
	}
	return nil
}

// unreachable logs a transport failure and converts it to ErrNodeUnreachable.
// Refused connections are routine (node powered off) and only logged at debug.
func (c *Client) unreachable(addr netutil.NodeAddress, op string, err error) error {
	if netutil.IsConnRefused(err) {
		c.log.Debug("node connection refused", "node", addr.String(), "op", op, "err", err)
	} else {
		c.log.Warn("node request failed", "node", addr.String(), "op", op, "err", err)
	}
	return errs.Wrap(err, errs.ErrNodeUnreachable, "remote."+op).
		WithNode(addr.String()).
		WithAdvice("Check the node is powered on and reachable on its port")
}

// classify maps a completed HTTP exchange onto the node error taxonomy.
func classify(addr netutil.NodeAddress, op string, status int, body []byte) error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden || hasAuthMarker(body) {
		return errs.Newf(errs.ErrNodeAuthFailed, "remote."+op, "authentication rejected (HTTP %d)", status).
			WithNode(addr.String()).
			WithAdvice("Check remote.username and remote.password")
	}
	if status < 200 || status >= 300 {
		return errs.Wrap(&StatusError{Code: status}, errs.ErrNodeUnknown, "remote."+op).
			WithNode(addr.String())
	}
	return nil
}

// StatusError is the cause of an ErrNodeUnknown raised because a reachable
// node answered with a non-2xx status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.Code)
}

// HTTPStatus returns the status a node answered with when err came from a
// completed but rejected exchange. Transport failures report false.
func HTTPStatus(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}

func hasAuthMarker(body []byte) bool {
	if len(body) > markerScanLimit {
		body = body[:markerScanLimit]
	}
	return bytes.Contains(body, []byte(AuthErrorMarker))
}

// StatusOf maps a Send error onto a NodeResult status.
func StatusOf(err error) v1.ResultStatus {
	switch {
	case err == nil:
		return v1.ResultOK
	case errs.IsCode(err, errs.ErrNodeAuthFailed):
		return v1.ResultAuthFailed
	case errs.IsCode(err, errs.ErrNodeUnreachable):
		return v1.ResultOffline
	default:
		return v1.ResultUnknownError
	}
}

// describe is a short human string for logs and error fragments.
func describe(err error) string {
	if se := errs.AsSensor(err); se != nil && se.Cause != nil {
		return fmt.Sprintf("%s: %v", se.Code, se.Cause)
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
