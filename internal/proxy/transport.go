package proxy

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/danmuck/durable/internal/auth"
	"github.com/danmuck/durable/internal/host"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
)

var ErrTransport = errors.New("proxy: transport failed")

// Transport carries one request frame to binding/id and returns the reply
// frame. Dispatch failures arrive inside the reply frame, not as errors.
type Transport interface {
	RoundTrip(ctx context.Context, binding, id string, raw []byte) ([]byte, error)
	Alarm(ctx context.Context, binding, id string) ([]byte, error)
}

// HTTPTransport posts frames to a host server.
type HTTPTransport struct {
	BaseURL string
	Client  *http.Client
	Token   string
}

type HTTPOption func(*HTTPTransport)

// WithClient replaces the default client.
func WithClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) { t.Client = c }
}

// WithToken sends token as a bearer credential.
func WithToken(token string) HTTPOption {
	return func(t *HTTPTransport) { t.Token = token }
}

// WithH2C speaks cleartext HTTP/2 to the host.
func WithH2C() HTTPOption {
	return func(t *HTTPTransport) {
		t.Client = &http.Client{
			Timeout: t.Client.Timeout,
			Transport: &http2.Transport{
				AllowHTTP: true,
				DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, network, addr)
				},
			},
		}
	}
}

func NewHTTPTransport(baseURL string, opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *HTTPTransport) RoundTrip(ctx context.Context, binding, id string, raw []byte) ([]byte, error) {
	return t.post(ctx, t.objectURL(binding, id), raw)
}

func (t *HTTPTransport) Alarm(ctx context.Context, binding, id string) ([]byte, error) {
	return t.post(ctx, t.objectURL(binding, id)+"/alarm", nil)
}

func (t *HTTPTransport) objectURL(binding, id string) string {
	return t.BaseURL + "/objects/" + url.PathEscape(binding) + "/" + url.PathEscape(id)
}

func (t *HTTPTransport) post(ctx context.Context, target string, raw []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", host.ContentType)
	if t.Token != "" {
		req.Header.Set("Authorization", auth.Authorization(t.Token))
	}

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}
	if resp.Header.Get("Content-Type") != host.ContentType {
		log.Debug().Msgf("proxy.HTTPTransport.post url=%s status=%d non-frame reply", target, resp.StatusCode)
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrTransport, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// NewTLSClient builds an HTTP/2 client that trusts the CA in caFile.
func NewTLSClient(caFile string) (*http.Client, error) {
	if caFile == "" {
		return nil, fmt.Errorf("proxy: caFile required")
	}
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("proxy: read CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("proxy: parse CA certificate %s", caFile)
	}
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http2.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs:    pool,
				MinVersion: tls.VersionTLS12,
			},
		},
	}, nil
}

// LocalTransport calls a Host in process.
type LocalTransport struct {
	Host *host.Host
}

func (t LocalTransport) RoundTrip(ctx context.Context, binding, id string, raw []byte) ([]byte, error) {
	reply, err := t.Host.Serve(ctx, binding, id, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return reply.Frame, nil
}

func (t LocalTransport) Alarm(ctx context.Context, binding, id string) ([]byte, error) {
	reply, err := t.Host.Alarm(ctx, binding, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return reply.Frame, nil
}
