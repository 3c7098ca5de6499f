package gemini

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http/httpproxy"
)

func newHTTPClient(opts Options) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = proxyFunc(opts)
	transport.MaxIdleConns = 4
	transport.IdleConnTimeout = 90 * time.Second
	// The deadline is carried by the request context so that timeouts can be told apart
	// from other transport failures.
	return &http.Client{Transport: transport}
}

func proxyFunc(opts Options) func(*http.Request) (*url.URL, error) {
	if strings.TrimSpace(opts.HTTPProxy) == "" &&
		strings.TrimSpace(opts.HTTPSProxy) == "" &&
		strings.TrimSpace(opts.NoProxy) == "" {
		return http.ProxyFromEnvironment
	}
	pc := &httpproxy.Config{
		HTTPProxy:  strings.TrimSpace(opts.HTTPProxy),
		HTTPSProxy: strings.TrimSpace(opts.HTTPSProxy),
		NoProxy:    strings.TrimSpace(opts.NoProxy),
	}
	fn := pc.ProxyFunc()
	return func(req *http.Request) (*url.URL, error) {
		return fn(req.URL)
	}
}
