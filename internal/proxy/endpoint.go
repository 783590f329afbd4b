package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// Supported proxy schemes.
const (
	SchemeHTTP   = "http"
	SchemeSOCKS5 = "socks5"
)

// Endpoint is a proxy the crawler can route traffic through.
type Endpoint struct {
	// Address is "host:port".
	Address string

	// Scheme is SchemeHTTP or SchemeSOCKS5.
	Scheme string

	// Username and Password authenticate against the proxy. Both may be empty.
	Username string
	Password string
}

// NewEndpoint validates address and returns an Endpoint for it.
// An empty scheme means SchemeHTTP.
func NewEndpoint(address, scheme, username, password string) (*Endpoint, error) {
	address = strings.TrimSpace(address)
	address = strings.TrimPrefix(address, "http://")
	address = strings.TrimPrefix(address, "socks5://")
	if !isValidProxyAddress(address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProxyAddress, address)
	}
	if scheme == "" {
		scheme = SchemeHTTP
	}
	return &Endpoint{
		Address:  address,
		Scheme:   scheme,
		Username: username,
		Password: password,
	}, nil
}

// URL returns the proxy URL including credentials.
func (e *Endpoint) URL() *url.URL {
	u := &url.URL{Scheme: e.Scheme, Host: e.Address}
	if e.Username != "" {
		u.User = url.UserPassword(e.Username, e.Password)
	}
	return u
}

// ServerArg returns the proxy URL without credentials, the form Chrome's
// --proxy-server flag expects. Credentials are answered on auth challenges.
func (e *Endpoint) ServerArg() string {
	return e.Scheme + "://" + e.Address
}

// HasCredentials reports whether the proxy requires authentication.
func (e *Endpoint) HasCredentials() bool {
	return e.Username != ""
}

// Transport returns an *http.Transport that routes through the endpoint.
// A nil endpoint returns a direct transport.
func (e *Endpoint) Transport() (*http.Transport, error) {
	transport := &http.Transport{
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	if e == nil {
		transport.Proxy = http.ProxyFromEnvironment
		return transport, nil
	}

	switch e.Scheme {
	case SchemeHTTP:
		transport.Proxy = http.ProxyURL(e.URL())
	case SchemeSOCKS5:
		var auth *proxy.Auth
		if e.Username != "" {
			auth = &proxy.Auth{User: e.Username, Password: e.Password}
		}
		dialer, err := proxy.SOCKS5("tcp", e.Address, auth, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		}
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", e.Scheme)
	}
	return transport, nil
}

// isValidProxyAddress checks if the address is in valid "host:port" format.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" || port == "" {
		return false
	}

	portNum := 0
	for _, c := range port {
		if c < '0' || c > '9' {
			return false
		}
		portNum = portNum*10 + int(c-'0')
		if portNum > 65535 {
			return false
		}
	}
	return portNum >= 1
}
