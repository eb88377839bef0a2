package quote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"enswap/pkg/synthetic"
	"enswap/pkg/tokens"
	"enswap/pkg/transport"
	"enswap/pkg/types"
	"enswap/pkg/units"
)

const healthOK = "OK"

// GetTokenPrice prices one whole token in units of quoteToken. When the
// aggregator cannot be reached, or its answer is rejected, the price comes
// from the static rate table and is marked synthetic.
func (s *Service) GetTokenPrice(ctx context.Context, token, quoteToken types.TokenDescriptor) (*types.TokenPrice, error) {
	if err := tokens.Validate(token); err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}
	if err := tokens.Validate(quoteToken); err != nil {
		return nil, fmt.Errorf("quote token: %w", err)
	}

	log := s.logger.WithFields(logrus.Fields{
		"token":    token.Symbol,
		"quote":    quoteToken.Symbol,
		"endpoint": transport.EndpointPrice,
		"chain":    s.chainID,
	})

	if strings.EqualFold(token.Symbol, quoteToken.Symbol) {
		return syntheticPrice(token, quoteToken), nil
	}

	req := types.SwapRequest{From: token, To: quoteToken, Amount: "1", ChainID: s.chainID}
	oneToken, err := units.ToBaseUnitsInt(req.Amount, token.Decimals)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("src", token.Address)
	params.Set("dst", quoteToken.Address)
	params.Set("amount", oneToken.String())

	payload, err := s.resolver.Resolve(ctx, transport.Request{Endpoint: transport.EndpointPrice, ChainID: s.chainID, Params: params})
	if err != nil {
		log.WithError(err).Warn("aggregator unreachable, using table price")
		return syntheticPrice(token, quoteToken), nil
	}

	q, err := normalize(transport.EndpointPrice, req, oneToken, payload)
	if err != nil {
		log.WithError(err).WithField("strategy", payload.Strategy).Warn("price response rejected, using table price")
		return syntheticPrice(token, quoteToken), nil
	}

	price, err := units.ToHumanUnits(q.ToAmount, quoteToken.Decimals)
	if err != nil {
		log.WithError(err).Warn("price out of range, using table price")
		return syntheticPrice(token, quoteToken), nil
	}

	log.WithField("strategy", payload.Strategy).Debug("live price received")
	return &types.TokenPrice{
		Provenance: types.ProvenanceLive,
		Token:      token,
		Quote:      quoteToken,
		Price:      price,
	}, nil
}

func syntheticPrice(token, quoteToken types.TokenDescriptor) *types.TokenPrice {
	return &types.TokenPrice{
		Provenance: types.ProvenanceSynthetic,
		Token:      token,
		Quote:      quoteToken,
		Price:      synthetic.Price(token.Symbol, quoteToken.Symbol).StringFixed(units.DisplayPlaces),
	}
}

// HealthCheck asks the aggregator whether it is serving. It never returns an
// error; an unreachable aggregator is reported as unhealthy.
func (s *Service) HealthCheck(ctx context.Context) *types.UpstreamHealth {
	log := s.logger.WithFields(logrus.Fields{
		"endpoint": transport.EndpointHealth,
		"chain":    s.chainID,
	})

	payload, err := s.resolver.Resolve(ctx, transport.Request{Endpoint: transport.EndpointHealth, ChainID: s.chainID})
	if err != nil {
		log.WithError(err).Warn("aggregator health check failed")
		return &types.UpstreamHealth{Provenance: types.ProvenanceSynthetic, Status: "unreachable"}
	}

	health := &types.UpstreamHealth{Provenance: types.ProvenanceLive, Strategy: payload.Strategy}

	var body struct {
		Status string `json:"status"`
	}
	if !payload.IsJSON() || json.NewDecoder(bytes.NewReader(payload.JSON)).Decode(&body) != nil || body.Status == "" {
		log.WithField("strategy", payload.Strategy).Warn("health response has no status")
		health.Status = "malformed"
		return health
	}

	health.Status = body.Status
	health.Healthy = strings.EqualFold(body.Status, healthOK)
	return health
}
