package relay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"enswap/pkg/transport"
)

const maxUpstreamBody = 4 << 20

// Handlers forwards aggregator calls with the server-side credential
type Handlers struct {
	cfg    Config
	client *http.Client
	logger *logrus.Logger
}

// err returns a standardized JSON error response
func (h *Handlers) err(c echo.Context, code int, msg string, details any) error {
	resp := ErrorResponse{Error: msg, Code: code}
	if h.cfg.DevMode && details != nil {
		resp.Details = details
	}
	return c.JSON(code, resp)
}

// withTimeout defaults to 10 seconds when d <= 0
func (h *Handlers) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Upstream:  h.cfg.UpstreamURL,
		Timestamp: time.Now().UTC(),
	})
}

var pairParams = []string{"src", "dst", "amount"}

func (h *Handlers) Quote(c echo.Context) error {
	return h.forward(c, transport.EndpointQuote, pairParams...)
}

func (h *Handlers) Swap(c echo.Context) error {
	return h.forward(c, transport.EndpointSwap, pairParams...)
}

func (h *Handlers) Price(c echo.Context) error {
	return h.forward(c, transport.EndpointPrice, pairParams...)
}

// UpstreamHealth forwards to the aggregator's own health check, unlike Health
// which only reports that the relay is up.
func (h *Handlers) UpstreamHealth(c echo.Context) error {
	return h.forward(c, transport.EndpointHealth)
}

func (h *Handlers) forward(c echo.Context, endpoint transport.Endpoint, required ...string) error {
	chainID := h.cfg.DefaultChainID
	if v := strings.TrimSpace(c.QueryParam("chain")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return h.err(c, http.StatusBadRequest, "invalid chain", map[string]any{"chain": "must be a positive integer"})
		}
		chainID = n
	}

	params := url.Values{}
	for k, vs := range c.QueryParams() {
		if k == "chain" {
			continue
		}
		params[k] = vs
	}
	for _, k := range required {
		if params.Get(k) == "" {
			return h.err(c, http.StatusBadRequest, strings.Join(required, ", ")+" are required", map[string]any{"missing": k})
		}
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), h.cfg.UpstreamTimeout)
	defer cancel()

	direct := transport.Direct{UpstreamURL: h.cfg.UpstreamURL, APIKey: h.cfg.APIKey}
	req, err := direct.NewRequest(ctx, transport.Request{Endpoint: endpoint, ChainID: chainID, Params: params})
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to build upstream request", map[string]any{"err": err.Error()})
	}

	log := h.logger.WithFields(logrus.Fields{
		"endpoint": endpoint,
		"chain":    chainID,
	})

	resp, err := h.client.Do(req)
	if err != nil {
		log.WithError(err).Warn("upstream unreachable")
		return h.err(c, http.StatusBadGateway, "upstream request failed", map[string]any{"err": err.Error()})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody+1))
	if err != nil {
		log.WithError(err).Warn("failed to read upstream response")
		return h.err(c, http.StatusBadGateway, "upstream response unreadable", map[string]any{"err": err.Error()})
	}
	if len(body) > maxUpstreamBody {
		log.WithField("limit", maxUpstreamBody).Warn("upstream response too large")
		return h.err(c, http.StatusBadGateway, "upstream response too large", map[string]any{"limit": maxUpstreamBody})
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.WithField("status", resp.StatusCode).Warn("upstream rejected request")
		return h.err(c, http.StatusBadGateway, fmt.Sprintf("upstream error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)), map[string]any{
			"status": resp.StatusCode,
			"body":   string(body),
		})
	}

	contentType := resp.Header.Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = echo.MIMEApplicationJSON
	}
	return c.Blob(http.StatusOK, contentType, body)
}
