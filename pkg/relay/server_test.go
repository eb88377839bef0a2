package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enswap/pkg/quote"
	"enswap/pkg/tokens"
	"enswap/pkg/types"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newRelay(t *testing.T, cfg Config) *Server {
	t.Helper()
	srv, err := NewServer(cfg, quietLogger())
	require.NoError(t, err)
	return srv
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestForwardsCredentialAndChain(t *testing.T) {
	var gotPath, gotAuth, gotChain, gotAmount string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotChain = r.URL.Query().Get("chain")
		gotAmount = r.URL.Query().Get("amount")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"toAmount":"7"}`))
	}))
	defer upstream.Close()

	srv := newRelay(t, Config{UpstreamURL: upstream.URL, APIKey: "secret"})
	rec := get(t, srv.Handler(), "/api/quote?chain=56&src=0xa&dst=0xb&amount=100")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"toAmount":"7"}`, rec.Body.String())
	assert.Equal(t, "/56/quote", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Empty(t, gotChain)
	assert.Equal(t, "100", gotAmount)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestDefaultsChainAndSwapEndpoint(t *testing.T) {
	var gotPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	srv := newRelay(t, Config{UpstreamURL: upstream.URL})
	rec := get(t, srv.Handler(), "/api/swap?src=0xa&dst=0xb&amount=1")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/1/swap", gotPath)
}

func TestForwardsPriceAndHealthcheck(t *testing.T) {
	var paths []string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if strings.HasSuffix(r.URL.Path, "/healthcheck") {
			_, _ = w.Write([]byte(`{"status":"OK"}`))
			return
		}
		_, _ = w.Write([]byte(`{"dstAmount":"2500000000"}`))
	}))
	defer upstream.Close()

	srv := newRelay(t, Config{UpstreamURL: upstream.URL})

	rec := get(t, srv.Handler(), "/api/price?chain=10&src=0xa&dst=0xb&amount=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"dstAmount":"2500000000"}`, rec.Body.String())

	rec = get(t, srv.Handler(), "/api/healthcheck")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"OK"}`, rec.Body.String())

	assert.Equal(t, []string{"/10/price", "/1/healthcheck"}, paths)

	rec = get(t, srv.Handler(), "/api/price?src=0xa&dst=0xb")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOversizedUpstreamBodyIsBadGateway(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", maxUpstreamBody+1)))
	}))
	defer upstream.Close()

	srv := newRelay(t, Config{UpstreamURL: upstream.URL})
	rec := get(t, srv.Handler(), "/api/quote?src=0xa&dst=0xb&amount=1")

	require.Equal(t, http.StatusBadGateway, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "upstream response too large", resp.Error)
}

func TestUpstreamFailureIsBadGateway(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"description":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer upstream.Close()

	srv := newRelay(t, Config{UpstreamURL: upstream.URL, DevMode: true})
	rec := get(t, srv.Handler(), "/api/quote?src=0xa&dst=0xb&amount=1")

	require.Equal(t, http.StatusBadGateway, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusBadGateway, resp.Code)
	assert.Contains(t, resp.Error, "401")
	assert.NotNil(t, resp.Details)
}

func TestUnreachableUpstreamIsBadGateway(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	url := upstream.URL
	upstream.Close()

	srv := newRelay(t, Config{UpstreamURL: url})
	rec := get(t, srv.Handler(), "/api/quote?src=0xa&dst=0xb&amount=1")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestRejectsBadInput(t *testing.T) {
	srv := newRelay(t, Config{UpstreamURL: "http://127.0.0.1:1"})

	rec := get(t, srv.Handler(), "/api/quote?chain=abc&src=0xa&dst=0xb&amount=1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, srv.Handler(), "/api/quote?src=0xa")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, srv.Handler(), "/api/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	srv := newRelay(t, Config{UpstreamURL: "http://upstream.test"})
	rec := get(t, srv.Handler(), "/health")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "http://upstream.test", resp.Upstream)
}

func TestRateLimited(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	srv := newRelay(t, Config{UpstreamURL: upstream.URL, RateLimit: 0.001, Burst: 1})

	rec := get(t, srv.Handler(), "/api/quote?src=0xa&dst=0xb&amount=1")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, srv.Handler(), "/api/quote?src=0xa&dst=0xb&amount=1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// health is not rate limited
	rec = get(t, srv.Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestShutdownTwiceAndWaitClosed(t *testing.T) {
	srv := newRelay(t, Config{UpstreamURL: "http://upstream.test", Addr: "127.0.0.1:0"})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	require.Eventually(t, func() bool { return srv.e.ListenerAddr() != nil }, 2*time.Second, 10*time.Millisecond)

	// not closed yet
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, srv.WaitClosed(ctx), context.DeadlineExceeded)

	require.NoError(t, srv.Shutdown(context.Background()))
	assert.NotPanics(t, func() {
		_ = srv.Shutdown(context.Background())
	})

	require.NoError(t, srv.WaitClosed(context.Background()))
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Shutdown")
	}
}

func TestNewServerRequiresUpstream(t *testing.T) {
	_, err := NewServer(Config{}, nil)
	assert.Error(t, err)
}

func TestServesLocalRelayStrategy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"dstAmount":"2501000000","protocols":[[[{"name":"CURVE"}]]]}`))
	}))
	defer upstream.Close()

	relaySrv := httptest.NewServer(newRelay(t, Config{UpstreamURL: upstream.URL, APIKey: "secret"}).Handler())
	defer relaySrv.Close()

	// the direct fallback has no credential, so only the relay can answer
	svc, err := quote.New(quote.Config{UpstreamURL: upstream.URL, LocalRelayURL: relaySrv.URL}, quote.WithLogger(quietLogger()))
	require.NoError(t, err)

	eth, _ := tokens.Lookup("ETH")
	usdc, _ := tokens.Lookup("USDC")
	q, err := svc.GetQuote(context.Background(), types.SwapRequest{From: eth, To: usdc, Amount: "1", SlippageBps: 50})
	require.NoError(t, err)

	assert.Equal(t, types.ProvenanceLive, q.Provenance)
	assert.Equal(t, "2501000000", q.ToAmount)
	assert.Equal(t, []string{"CURVE"}, q.Protocols)
}
