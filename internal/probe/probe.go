// Package probe performs a single bounded-time HTTP GET against a URL and
// reports what happened as an Outcome instead of a bare error.
package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/olgkv/bookmarkchecker/internal/ports"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

	maxRedirects   = 10
	drainBodyBytes = 4 << 10
)

var (
	ErrRedirectLimit = errors.New("stopped after too many redirects")
	ErrInvalidHost   = errors.New("invalid host")
)

type Kind int

const (
	// KindResponse means the request completed with an HTTP status.
	KindResponse Kind = iota
	// KindProtocolRejected means the URL scheme is not http(s); no request was made.
	KindProtocolRejected
	KindTimeout
	KindConnectionFailure
	// KindFailure covers every other error that prevented a response.
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindResponse:
		return "response"
	case KindProtocolRejected:
		return "protocol_rejected"
	case KindTimeout:
		return "timeout"
	case KindConnectionFailure:
		return "connection_failure"
	case KindFailure:
		return "failure"
	}
	return "unknown"
}

// Outcome is the result of one probe. StatusCode, Reason and Header are
// only meaningful for KindResponse; Err is set for the failure kinds.
type Outcome struct {
	Kind       Kind
	StatusCode int
	Reason     string
	Header     http.Header
	Err        error
	Elapsed    time.Duration
}

// Success reports whether the probe completed with a 2xx status.
func (o Outcome) Success() bool {
	return o.Kind == KindResponse && o.StatusCode >= 200 && o.StatusCode < 300
}

type Prober struct {
	client    ports.HTTPClient
	userAgent string
	timeout   time.Duration
}

func New(client ports.HTTPClient, userAgent string, timeout time.Duration) *Prober {
	if client == nil {
		client = NewHTTPClient()
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{client: client, userAgent: userAgent, timeout: timeout}
}

// NewHTTPClient returns a client that follows redirects up to the usual
// limit. It has no client-level timeout: every probe carries its own deadline.
func NewHTTPClient() *http.Client {
	return &http.Client{CheckRedirect: checkRedirect}
}

func checkRedirect(_ *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return ErrRedirectLimit
	}
	return nil
}

// Probe issues one GET to rawURL. It never returns a nil-kind outcome and
// never panics on malformed input.
func (p *Prober) Probe(ctx context.Context, rawURL string) Outcome {
	start := time.Now()
	o := p.probe(ctx, rawURL)
	o.Elapsed = time.Since(start)
	return o
}

func (p *Prober) probe(ctx context.Context, rawURL string) Outcome {
	if !strings.HasPrefix(rawURL, "http") {
		return Outcome{Kind: KindProtocolRejected}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return Outcome{Kind: KindFailure, Err: err}
	}
	if u.Hostname() == "" {
		return Outcome{Kind: KindConnectionFailure, Err: ErrInvalidHost}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return Outcome{Kind: KindFailure, Err: err}
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return classify(err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainBodyBytes))
		_ = resp.Body.Close()
	}()

	return Outcome{
		Kind:       KindResponse,
		StatusCode: resp.StatusCode,
		Reason:     reasonPhrase(resp),
		Header:     resp.Header,
	}
}

func reasonPhrase(resp *http.Response) string {
	reason := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode))
	if reason = strings.TrimSpace(reason); reason != "" {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}

func classify(err error) Outcome {
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &dnsErr):
		// unresolvable hosts report as connection failures even when the lookup timed out
		return Outcome{Kind: KindConnectionFailure, Err: err}
	case isTimeout(err):
		return Outcome{Kind: KindTimeout, Err: err}
	case errors.Is(err, context.Canceled):
		return Outcome{Kind: KindFailure, Err: err}
	case isConnectionFailure(err):
		return Outcome{Kind: KindConnectionFailure, Err: err}
	}
	return Outcome{Kind: KindFailure, Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isConnectionFailure(err error) bool {
	if errors.Is(err, ErrRedirectLimit) || errors.Is(err, ErrInvalidHost) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var (
		opErr       *net.OpError
		addrErr     *net.AddrError
		certErr     *tls.CertificateVerificationError
		recordErr   tls.RecordHeaderError
		authErr     x509.UnknownAuthorityError
		hostnameErr x509.HostnameError
		invalidErr  x509.CertificateInvalidError
	)
	return errors.As(err, &opErr) ||
		errors.As(err, &addrErr) ||
		errors.As(err, &certErr) ||
		errors.As(err, &recordErr) ||
		errors.As(err, &authErr) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr)
}
