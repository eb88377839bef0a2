package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Endpoint names an upstream aggregator operation
type Endpoint string

const (
	EndpointQuote  Endpoint = "quote"
	EndpointSwap   Endpoint = "swap"
	EndpointPrice  Endpoint = "price"
	EndpointHealth Endpoint = "healthcheck"
)

// Request is the logical request; each Strategy turns it into one concrete URL.
// All requests are read-only GETs.
type Request struct {
	Endpoint Endpoint
	ChainID  int64
	Params   url.Values
}

// Strategy is one way of reaching the upstream aggregation API
type Strategy interface {
	Name() string
	NewRequest(ctx context.Context, req Request) (*http.Request, error)
}

// UpstreamURL renders {base}/{chainId}/{endpoint}?{params}
func UpstreamURL(base string, req Request) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	u := fmt.Sprintf("%s/%d/%s", base, req.ChainID, req.Endpoint)
	if q := req.Params.Encode(); q != "" {
		u += "?" + q
	}
	return u
}

// LocalRelay calls the same-origin relay, which attaches the credential server-side
type LocalRelay struct {
	BaseURL string
}

func (s LocalRelay) Name() string { return "local-relay" }

func (s LocalRelay) NewRequest(ctx context.Context, req Request) (*http.Request, error) {
	q := url.Values{}
	q.Set("chain", strconv.FormatInt(req.ChainID, 10))
	for k, vs := range req.Params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u := fmt.Sprintf("%s/api/%s?%s", strings.TrimRight(s.BaseURL, "/"), req.Endpoint, q.Encode())
	return newGet(ctx, u)
}

// CORSRelay goes through a public pass-through relay. The credential is never
// sent to the third party.
type CORSRelay struct {
	RelayURL    string // e.g. https://api.allorigins.win/raw
	UpstreamURL string
}

func (s CORSRelay) Name() string { return "cors-relay" }

func (s CORSRelay) NewRequest(ctx context.Context, req Request) (*http.Request, error) {
	relay, err := url.Parse(strings.TrimSpace(s.RelayURL))
	if err != nil {
		return nil, fmt.Errorf("invalid cors relay url: %w", err)
	}
	q := relay.Query()
	q.Set("url", UpstreamURL(s.UpstreamURL, req))
	relay.RawQuery = q.Encode()
	return newGet(ctx, relay.String())
}

// Direct calls the upstream API with the bearer credential
type Direct struct {
	UpstreamURL string
	APIKey      string
}

func (s Direct) Name() string { return "direct" }

func (s Direct) NewRequest(ctx context.Context, req Request) (*http.Request, error) {
	httpReq, err := newGet(ctx, UpstreamURL(s.UpstreamURL, req))
	if err != nil {
		return nil, err
	}
	if key := strings.TrimSpace(s.APIKey); key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+key)
	}
	return httpReq, nil
}

func newGet(ctx context.Context, u string) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	return httpReq, nil
}
