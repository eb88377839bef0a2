// Package quote is the public surface of the quote-acquisition layer. It
// validates a swap request, fetches a quote or swap transaction through the
// transport chain and degrades to a synthetic estimate when the aggregator
// cannot be reached. Callers only ever see input-validation errors.
package quote

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"enswap/pkg/synthetic"
	"enswap/pkg/tokens"
	"enswap/pkg/transport"
	"enswap/pkg/types"
	"enswap/pkg/units"
)

const (
	DefaultUpstreamURL = "https://api.1inch.dev/swap/v6.1"
	DefaultChainID     = 1

	// MaxSlippageBps caps accepted slippage at 50%
	MaxSlippageBps = 5000
)

var (
	ErrInvalidRequest = errors.New("invalid swap request")

	// ErrMalformedResponse never leaves this package; it routes to the synthetic path
	ErrMalformedResponse = errors.New("malformed aggregator response")
)

// Resolver fetches a logical request over some transport chain
type Resolver interface {
	Resolve(ctx context.Context, req transport.Request) (*transport.Payload, error)
}

// Config is everything the service needs; there is no package-level default instance
type Config struct {
	ChainID       int64
	APIKey        string
	UpstreamURL   string
	LocalRelayURL string // optional, tried first
	CORSRelayURL  string // optional, tried second
	Budget        time.Duration
}

// Service is safe for concurrent use; it keeps no state between calls
type Service struct {
	chainID    int64
	resolver   Resolver
	logger     logrus.FieldLogger
	httpClient *http.Client
}

// Option configures a Service.
type Option func(*Service)

// WithLogger installs a custom logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithHTTPClient overrides the client used by the default transport chain.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) {
		s.httpClient = c
	}
}

// WithResolver replaces the transport chain entirely.
func WithResolver(r Resolver) Option {
	return func(s *Service) {
		s.resolver = r
	}
}

// New builds a service. Strategies are ordered local relay, public CORS relay,
// direct credentialed call; relays without a URL are left out.
func New(cfg Config, opts ...Option) (*Service, error) {
	s := &Service{
		chainID: cfg.ChainID,
		logger:  logrus.StandardLogger(),
	}
	if s.chainID <= 0 {
		s.chainID = DefaultChainID
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}

	if s.resolver == nil {
		upstream := strings.TrimSpace(cfg.UpstreamURL)
		if upstream == "" {
			upstream = DefaultUpstreamURL
		}

		var strategies []transport.Strategy
		if u := strings.TrimSpace(cfg.LocalRelayURL); u != "" {
			strategies = append(strategies, transport.LocalRelay{BaseURL: u})
		}
		if u := strings.TrimSpace(cfg.CORSRelayURL); u != "" {
			strategies = append(strategies, transport.CORSRelay{RelayURL: u, UpstreamURL: upstream})
		}
		strategies = append(strategies, transport.Direct{UpstreamURL: upstream, APIKey: cfg.APIKey})

		resolver, err := transport.NewResolver(strategies,
			transport.WithLogger(s.logger),
			transport.WithHTTPClient(s.httpClient),
			transport.WithBudget(cfg.Budget),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create transport chain: %w", err)
		}
		s.logger.WithFields(logrus.Fields{
			"strategies": strings.Join(resolver.Strategies(), ","),
			"chain":      s.chainID,
		}).Debug("transport chain configured")
		s.resolver = resolver
	}

	return s, nil
}

// GetQuote prices a swap. Network failures yield a synthetic quote, never an error.
func (s *Service) GetQuote(ctx context.Context, req types.SwapRequest) (*types.Quote, error) {
	return s.fetch(ctx, transport.EndpointQuote, req)
}

// GetSwapTransaction prices a swap and returns its executable transaction.
// A synthetic result carries no transaction payload.
func (s *Service) GetSwapTransaction(ctx context.Context, req types.SwapRequest) (*types.Quote, error) {
	return s.fetch(ctx, transport.EndpointSwap, req)
}

func (s *Service) fetch(ctx context.Context, endpoint transport.Endpoint, req types.SwapRequest) (*types.Quote, error) {
	fromBase, err := s.validate(endpoint, &req)
	if err != nil {
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"pair":     req.Pair(),
		"endpoint": endpoint,
		"chain":    req.ChainID,
	})

	if strings.EqualFold(req.From.Symbol, req.To.Symbol) {
		log.Info("same-token request, returning unit-rate estimate without network calls")
		return synthetic.Synthesize(req)
	}

	payload, err := s.resolver.Resolve(ctx, buildRequest(endpoint, req, fromBase))
	if err != nil {
		log.WithError(err).Warn("aggregator unreachable, using synthetic quote")
		return synthetic.Synthesize(req)
	}

	q, err := normalize(endpoint, req, fromBase, payload)
	if err != nil {
		log.WithError(err).WithField("strategy", payload.Strategy).Warn("aggregator response rejected, using synthetic quote")
		return synthetic.Synthesize(req)
	}

	log.WithField("strategy", payload.Strategy).Debug("live quote received")
	return q, nil
}

func (s *Service) validate(endpoint transport.Endpoint, req *types.SwapRequest) (*big.Int, error) {
	if err := tokens.Validate(req.From); err != nil {
		return nil, fmt.Errorf("source token: %w", err)
	}
	if err := tokens.Validate(req.To); err != nil {
		return nil, fmt.Errorf("destination token: %w", err)
	}

	fromBase, err := units.ToBaseUnitsInt(req.Amount, req.From.Decimals)
	if err != nil {
		return nil, err
	}
	if fromBase.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s amount must be greater than 0", units.ErrInvalidAmount, req.From.Symbol)
	}

	wallet := strings.TrimSpace(req.Wallet)
	if wallet == "" && endpoint == transport.EndpointSwap {
		return nil, fmt.Errorf("%w: wallet address is required to build a swap", ErrInvalidRequest)
	}
	if wallet != "" && !common.IsHexAddress(wallet) {
		return nil, fmt.Errorf("%w: malformed wallet address %q", ErrInvalidRequest, wallet)
	}
	req.Wallet = wallet

	if req.SlippageBps < 0 || req.SlippageBps > MaxSlippageBps {
		return nil, fmt.Errorf("%w: slippage must be between 0 and %d bps", ErrInvalidRequest, MaxSlippageBps)
	}
	if req.ChainID <= 0 {
		req.ChainID = s.chainID
	}

	return fromBase, nil
}

func buildRequest(endpoint transport.Endpoint, req types.SwapRequest, fromBase *big.Int) transport.Request {
	q := url.Values{}
	q.Set("src", req.From.Address)
	q.Set("dst", req.To.Address)
	q.Set("amount", fromBase.String())
	if req.Wallet != "" {
		q.Set("from", req.Wallet)
	}
	// upstream takes slippage in percent
	q.Set("slippage", decimal.New(int64(req.SlippageBps), -2).String())
	q.Set("includeTokensInfo", strconv.FormatBool(true))
	q.Set("includeProtocols", strconv.FormatBool(true))
	q.Set("includeGas", strconv.FormatBool(true))

	return transport.Request{Endpoint: endpoint, ChainID: req.ChainID, Params: q}
}
