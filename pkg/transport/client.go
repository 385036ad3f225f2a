// Package transport implements the outbound HTTPS client used to
// deliver asynchronous AS4 replies, with TLS 1.2/1.3 per the eDelivery
// AS4 profile.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TLS version constants
const (
	TLS12 = tls.VersionTLS12
	TLS13 = tls.VersionTLS13
)

// RecommendedTLS12CipherSuites are the TLS 1.2 suites the eDelivery
// profile recommends.
var RecommendedTLS12CipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
}

// Config contains outbound client configuration.
type Config struct {
	MinTLSVersion   uint16
	MaxTLSVersion   uint16
	CipherSuites    []uint16
	Certificates    []tls.Certificate
	RootCAs         *x509.CertPool
	Timeout         time.Duration
	IdleConnTimeout time.Duration
	UserAgent       string
}

// DefaultConfig returns the profile defaults: TLS 1.2 minimum, TLS 1.3
// preferred, 30 second timeout.
func DefaultConfig() *Config {
	return &Config{
		MinTLSVersion:   TLS12,
		MaxTLSVersion:   TLS13,
		CipherSuites:    RecommendedTLS12CipherSuites,
		Timeout:         30 * time.Second,
		IdleConnTimeout: 90 * time.Second,
		UserAgent:       "go-as4-msh/1.0",
	}
}

// Client delivers AS4 messages to remote MSH endpoints.
type Client struct {
	http      *http.Client
	userAgent string
}

// NewClient creates an outbound client. A nil config uses
// DefaultConfig.
func NewClient(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion:   config.MinTLSVersion,
			MaxVersion:   config.MaxTLSVersion,
			CipherSuites: config.CipherSuites,
			Certificates: config.Certificates,
			RootCAs:      config.RootCAs,
		},
		IdleConnTimeout: config.IdleConnTimeout,
	}

	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
		userAgent: config.UserAgent,
	}
}

// Reply is what the remote endpoint answered, when it answered with
// content.
type Reply struct {
	Body        []byte
	ContentType string
}

// Send POSTs a packaged message to endpoint. A 204 answer returns a
// nil Reply.
func (c *Client) Send(ctx context.Context, endpoint string, body []byte, contentType string) (*Reply, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("SOAPAction", "")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil, nil
	case http.StatusOK:
		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}
		return &Reply{Body: respBody, ContentType: resp.Header.Get("Content-Type")}, nil
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("endpoint %s answered %d: %s", endpoint, resp.StatusCode, snippet)
	}
}
