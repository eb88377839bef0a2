// Package transport resolves a logical aggregator request by trying an ordered
// list of transport strategies until one answers with a 2xx status.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultBudget bounds one Resolve call across all strategies
	DefaultBudget = 8 * time.Second

	maxBodyBytes = 4 << 20
)

var (
	ErrAllTransportsFailed = errors.New("all transports failed")
	ErrBodyTooLarge        = fmt.Errorf("response body exceeds %d bytes", maxBodyBytes)
)

// TransportError describes one failed attempt
type TransportError struct {
	Strategy   string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 && e.Err != nil {
		return fmt.Sprintf("%s: http %d: %v", e.Strategy, e.StatusCode, e.Err)
	}
	if e.StatusCode != 0 {
		b := strings.TrimSpace(string(e.Body))
		if b == "" {
			return fmt.Sprintf("%s: http %d", e.Strategy, e.StatusCode)
		}
		if len(b) > 256 {
			b = b[:256] + "..."
		}
		return fmt.Sprintf("%s: http %d: %s", e.Strategy, e.StatusCode, b)
	}
	return fmt.Sprintf("%s: %v", e.Strategy, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Payload is a successful response body
type Payload struct {
	Strategy   string
	StatusCode int
	Body       []byte
	JSON       json.RawMessage // nil when the body is not valid JSON
}

// IsJSON reports whether the body parsed as JSON
func (p *Payload) IsJSON() bool { return p.JSON != nil }

// Text returns the raw body
func (p *Payload) Text() string { return string(p.Body) }

// Resolver walks the strategy list in order
type Resolver struct {
	strategies []Strategy
	client     *http.Client
	logger     logrus.FieldLogger
	budget     time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger installs a custom logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// WithHTTPClient overrides the HTTP client. Per-attempt timeouts come from the
// context, so the client needs no Timeout of its own.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) {
		r.client = c
	}
}

// WithBudget sets the overall deadline shared by all attempts.
func WithBudget(d time.Duration) Option {
	return func(r *Resolver) {
		r.budget = d
	}
}

// NewResolver constructs a resolver over the given strategies, tried in order.
func NewResolver(strategies []Strategy, opts ...Option) (*Resolver, error) {
	list := make([]Strategy, 0, len(strategies))
	for _, s := range strategies {
		if s != nil {
			list = append(list, s)
		}
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("at least one transport strategy required")
	}

	r := &Resolver{
		strategies: list,
		client:     &http.Client{},
		logger:     logrus.StandardLogger(),
		budget:     DefaultBudget,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.client == nil {
		r.client = &http.Client{}
	}
	if r.logger == nil {
		r.logger = logrus.StandardLogger()
	}
	if r.budget <= 0 {
		r.budget = DefaultBudget
	}
	return r, nil
}

// Strategies returns the configured strategy names in order
func (r *Resolver) Strategies() []string {
	names := make([]string, len(r.strategies))
	for i, s := range r.strategies {
		names[i] = s.Name()
	}
	return names
}

// Resolve returns the first 2xx payload. When every strategy fails the error
// wraps ErrAllTransportsFailed and the last *TransportError.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Payload, error) {
	deadline := time.Now().Add(r.budget)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	var lastErr error
	for i, s := range r.strategies {
		log := r.logger.WithFields(logrus.Fields{
			"strategy": s.Name(),
			"endpoint": req.Endpoint,
			"chain":    req.ChainID,
			"attempt":  i + 1,
		})

		remaining := time.Until(deadline)
		if remaining <= 0 {
			lastErr = &TransportError{Strategy: s.Name(), Err: context.DeadlineExceeded}
			log.Warn("transport budget exhausted, skipping remaining strategies")
			break
		}

		// fair share of what is left; fast failures donate time to later strategies
		timeout := remaining / time.Duration(len(r.strategies)-i)

		payload, err := r.attempt(ctx, s, req, timeout)
		if err == nil {
			log.WithField("status", payload.StatusCode).Debug("transport attempt succeeded")
			return payload, nil
		}

		log.WithError(err).Warn("transport attempt failed")
		lastErr = err
	}

	return nil, fmt.Errorf("%w: %w", ErrAllTransportsFailed, lastErr)
}

func (r *Resolver) attempt(ctx context.Context, s Strategy, req Request, timeout time.Duration) (*Payload, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := s.NewRequest(actx, req)
	if err != nil {
		return nil, &TransportError{Strategy: s.Name(), Err: err}
	}

	res, err := r.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Strategy: s.Name(), Err: err}
	}
	defer res.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes+1))
	if len(body) > maxBodyBytes {
		return nil, &TransportError{Strategy: s.Name(), StatusCode: res.StatusCode, Err: ErrBodyTooLarge}
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &TransportError{Strategy: s.Name(), StatusCode: res.StatusCode, Body: body}
	}
	if readErr != nil {
		return nil, &TransportError{Strategy: s.Name(), StatusCode: res.StatusCode, Err: fmt.Errorf("read body: %w", readErr)}
	}

	payload := &Payload{
		Strategy:   s.Name(),
		StatusCode: res.StatusCode,
		Body:       body,
	}
	if json.Valid(body) {
		payload.JSON = json.RawMessage(body)
	}
	return payload, nil
}
