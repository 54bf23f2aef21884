package connectivity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/visusharma/Privacy-first-dockerised-News-browser/internal/providers/http/client"
)

var (
	ErrProxyPortUnreachable = errors.New("proxy port unreachable")
	ErrVerificationFailed   = errors.New("all verification endpoints failed")
	ErrEndpointStatus       = errors.New("verification endpoint returned non-success status")
)

// PortProber checks that something accepts TCP connections at addr
type PortProber interface {
	Probe(ctx context.Context, addr string) error
}

// PortProberFunc adapts a function to PortProber
type PortProberFunc func(ctx context.Context, addr string) error

func (f PortProberFunc) Probe(ctx context.Context, addr string) error { return f(ctx, addr) }

// Verification is a successful endpoint response
type Verification struct {
	Endpoint string
	Status   int
	ExitIP   string
	IsTor    bool
}

// Verifier fetches one verification endpoint through the proxy
type Verifier interface {
	Verify(ctx context.Context, endpoint string) (Verification, error)
}

// VerifierFunc adapts a function to Verifier
type VerifierFunc func(ctx context.Context, endpoint string) (Verification, error)

func (f VerifierFunc) Verify(ctx context.Context, endpoint string) (Verification, error) {
	return f(ctx, endpoint)
}

// TCPProber dials the proxy port directly
type TCPProber struct {
	dialer net.Dialer
}

// NewTCPProber creates a prober; the context deadline bounds each dial
func NewTCPProber() *TCPProber {
	return &TCPProber{}
}

// Probe opens and immediately closes a connection
func (p *TCPProber) Probe(ctx context.Context, addr string) error {
	conn, err := p.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProxyPortUnreachable, err)
	}
	return conn.Close()
}

// HTTPVerifier fetches endpoints with a SOCKS-routed resty client
type HTTPVerifier struct {
	client *client.Client
}

// NewHTTPVerifier wraps c, which must already dial through the proxy
func NewHTTPVerifier(c *client.Client) *HTTPVerifier {
	return &HTTPVerifier{client: c}
}

// Verify succeeds on any 2xx response
func (v *HTTPVerifier) Verify(ctx context.Context, endpoint string) (Verification, error) {
	req, err := v.client.Request(ctx)
	if err != nil {
		return Verification{}, err
	}

	resp, err := v.client.ExecuteWithBreaker(func() (*resty.Response, error) {
		resp, err := req.Get(endpoint)
		if err != nil {
			return nil, err
		}
		if !resp.IsSuccess() {
			return resp, fmt.Errorf("%w: %s returned %d", ErrEndpointStatus, endpoint, resp.StatusCode())
		}
		return resp, nil
	})
	if err != nil {
		return Verification{}, err
	}

	result := Verification{Endpoint: endpoint, Status: resp.StatusCode()}
	parseExit(resp.Body(), &result)
	return result, nil
}

// exitInfo covers the torproject ({"IsTor","IP"}) and mullvad ({"ip"}) shapes
type exitInfo struct {
	IsTor   bool   `json:"IsTor"`
	IP      string `json:"IP"`
	LowerIP string `json:"ip"`
}

// parseExit fills the exit address when the body carries one; plain-text
// bodies (ident.me) are accepted when they are a bare IP
func parseExit(body []byte, v *Verification) {
	var info exitInfo
	if err := sonic.Unmarshal(body, &info); err == nil {
		v.IsTor = info.IsTor
		v.ExitIP = info.IP
		if v.ExitIP == "" {
			v.ExitIP = info.LowerIP
		}
		return
	}

	text := strings.TrimSpace(string(body))
	if net.ParseIP(text) != nil {
		v.ExitIP = text
	}
}
