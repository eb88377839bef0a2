package quote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enswap/pkg/synthetic"
	"enswap/pkg/tokens"
	"enswap/pkg/transport"
	"enswap/pkg/types"
	"enswap/pkg/units"
)

const wallet = "0x1111111111111111111111111111111111111111"

const liveQuoteBody = `{
  "srcToken": {"symbol": "ETH", "name": "Ethereum", "address": "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee", "decimals": 18},
  "dstToken": {"symbol": "USDC", "name": "USD Coin", "address": "0xA0b86a33E6441b8c4C8C0E4a5cF4c4a5cF4c4a5c", "decimals": 6},
  "dstAmount": "2512345678",
  "gas": 182000,
  "protocols": [[[{"name": "UNISWAP_V3", "part": 60}, {"name": "SUSHI", "part": 40}]], [[{"name": "UNISWAP_V3", "part": 100}]]]
}`

const liveSwapBody = `{
  "fromToken": {"symbol": "ETH", "address": "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee", "decimals": 18},
  "toToken": {"symbol": "USDC", "address": "0xA0b86a33E6441b8c4C8C0E4a5cF4c4a5cF4c4a5c", "decimals": 6},
  "fromAmount": "1000000000000000000",
  "toAmount": "2500000000",
  "protocols": [],
  "tx": {
    "from": "0x1111111111111111111111111111111111111111",
    "to": "0x111111125421ca6dc452d289314280a0f8842a65",
    "data": "0x12aa3caf",
    "value": "1000000000000000000",
    "gasPrice": "30000000000",
    "gas": 210000
  }
}`

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func swapRequest(t *testing.T, from, to, amount string) types.SwapRequest {
	t.Helper()
	f, err := tokens.Lookup(from)
	require.NoError(t, err)
	d, err := tokens.Lookup(to)
	require.NoError(t, err)
	return types.SwapRequest{From: f, To: d, Amount: amount, Wallet: wallet, SlippageBps: 100}
}

func newService(t *testing.T, upstream string) *Service {
	t.Helper()
	svc, err := New(Config{ChainID: 1, APIKey: "test-key", UpstreamURL: upstream}, WithLogger(quietLogger()))
	require.NoError(t, err)
	return svc
}

func TestGetQuote_Live(t *testing.T) {
	var gotPath, gotAuth, gotSrc, gotAmount, gotSlippage string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotSrc = r.URL.Query().Get("src")
		gotAmount = r.URL.Query().Get("amount")
		gotSlippage = r.URL.Query().Get("slippage")
		_, _ = w.Write([]byte(liveQuoteBody))
	}))
	defer srv.Close()

	q, err := newService(t, srv.URL).GetQuote(context.Background(), swapRequest(t, "ETH", "USDC", "1.0"))
	require.NoError(t, err)

	assert.Equal(t, "/1/quote", gotPath)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, tokens.NativeAddress, gotSrc)
	assert.Equal(t, "1000000000000000000", gotAmount)
	assert.Equal(t, "1", gotSlippage)

	assert.Equal(t, types.ProvenanceLive, q.Provenance)
	assert.False(t, q.IsSynthetic())
	assert.Equal(t, "1000000000000000000", q.FromAmount)
	assert.Equal(t, "2512345678", q.ToAmount)
	assert.Equal(t, "182000", q.EstimatedGas)
	assert.Equal(t, []string{"UNISWAP_V3", "SUSHI"}, q.Protocols)
	assert.Equal(t, "USDC", q.To.Symbol)
	assert.Nil(t, q.Tx)
}

func TestGetQuote_AllTransportsFailYieldsSynthetic(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	q, err := newService(t, srv.URL).GetQuote(context.Background(), swapRequest(t, "ETH", "USDC", "1.0"))
	require.NoError(t, err)

	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
	assert.Equal(t, types.ProvenanceSynthetic, q.Provenance)
	assert.Equal(t, "2492500000", q.ToAmount)
	assert.Equal(t, []string{synthetic.ProtocolPlaceholder}, q.Protocols)
}

func TestGetQuote_FallsBackThroughRelays(t *testing.T) {
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "relay offline", http.StatusBadGateway)
	}))
	defer relay.Close()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"toAmount":"42"}`))
	}))
	defer upstream.Close()

	svc, err := New(Config{UpstreamURL: upstream.URL, LocalRelayURL: relay.URL}, WithLogger(quietLogger()))
	require.NoError(t, err)

	q, err := svc.GetQuote(context.Background(), swapRequest(t, "USDC", "USDT", "5"))
	require.NoError(t, err)
	assert.Equal(t, types.ProvenanceLive, q.Provenance)
	assert.Equal(t, "42", q.ToAmount)
	assert.Equal(t, "5000000", q.FromAmount)
	assert.Equal(t, "0", q.EstimatedGas)
	assert.Empty(t, q.Protocols)
}

func TestGetQuote_MalformedResponseYieldsSynthetic(t *testing.T) {
	bodies := []string{
		`{"toAmount":"12.5"}`,
		`{"toAmount":1e21}`,
		`{}`,
		`plain text`,
		`{"toAmount":"1","dstToken":{"address":"0x0000000000000000000000000000000000000001"}}`,
		`{"toAmount":"1","toToken":{"decimals":18}}`,
		`{"toAmount":"1","protocols":[[{"part":100}]]}`,
	}
	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			q, err := newService(t, srv.URL).GetQuote(context.Background(), swapRequest(t, "ETH", "USDC", "1.0"))
			require.NoError(t, err)
			assert.True(t, q.IsSynthetic())
			assert.Equal(t, "2492500000", q.ToAmount)
		})
	}
}

func TestGetSwapTransaction_Live(t *testing.T) {
	var gotPath, gotFrom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFrom = r.URL.Query().Get("from")
		_, _ = w.Write([]byte(liveSwapBody))
	}))
	defer srv.Close()

	q, err := newService(t, srv.URL).GetSwapTransaction(context.Background(), swapRequest(t, "ETH", "USDC", "1"))
	require.NoError(t, err)

	assert.Equal(t, "/1/swap", gotPath)
	assert.Equal(t, wallet, gotFrom)
	require.NotNil(t, q.Tx)
	assert.Equal(t, types.ProvenanceLive, q.Provenance)
	assert.Equal(t, "0x111111125421ca6dc452d289314280a0f8842a65", q.Tx.To)
	assert.Equal(t, "0x12aa3caf", q.Tx.Data)
	assert.Equal(t, "210000", q.Tx.Gas)
	assert.Equal(t, "210000", q.EstimatedGas)
	assert.Equal(t, "30000000000", q.Tx.GasPrice)
}

func TestGetSwapTransaction_MissingTxYieldsSynthetic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"toAmount":"2500000000"}`))
	}))
	defer srv.Close()

	q, err := newService(t, srv.URL).GetSwapTransaction(context.Background(), swapRequest(t, "ETH", "USDC", "1"))
	require.NoError(t, err)
	assert.True(t, q.IsSynthetic())
	assert.Nil(t, q.Tx)
}

func TestGetSwapTransaction_BadTxYieldsSynthetic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"toAmount":"1","tx":{"to":"nowhere","data":"0x"}}`))
	}))
	defer srv.Close()

	q, err := newService(t, srv.URL).GetSwapTransaction(context.Background(), swapRequest(t, "ETH", "USDC", "1"))
	require.NoError(t, err)
	assert.True(t, q.IsSynthetic())
}

func TestValidation(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()
	svc := newService(t, srv.URL)
	ctx := context.Background()

	_, err := svc.GetQuote(ctx, swapRequest(t, "ETH", "USDC", "0"))
	assert.ErrorIs(t, err, units.ErrInvalidAmount)

	_, err = svc.GetQuote(ctx, swapRequest(t, "USDC", "ETH", "0.0000001"))
	assert.ErrorIs(t, err, units.ErrInvalidAmount)

	_, err = svc.GetQuote(ctx, swapRequest(t, "ETH", "USDC", "lots"))
	assert.ErrorIs(t, err, units.ErrInvalidAmount)

	req := swapRequest(t, "ETH", "USDC", "1")
	req.To = types.TokenDescriptor{Symbol: "DOGE", Address: "0x0000000000000000000000000000000000000002", Decimals: 8}
	_, err = svc.GetQuote(ctx, req)
	assert.ErrorIs(t, err, tokens.ErrInvalidToken)

	req = swapRequest(t, "ETH", "USDC", "1")
	req.Wallet = ""
	_, err = svc.GetSwapTransaction(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	req = swapRequest(t, "ETH", "USDC", "1")
	req.Wallet = "vitalik.eth"
	_, err = svc.GetQuote(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	req = swapRequest(t, "ETH", "USDC", "1")
	req.SlippageBps = MaxSlippageBps + 1
	_, err = svc.GetQuote(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	assert.EqualValues(t, 0, atomic.LoadInt32(&hits))
}

func TestGetQuote_SameTokenShortCircuits(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	q, err := newService(t, srv.URL).GetQuote(context.Background(), swapRequest(t, "USDC", "USDC", "10"))
	require.NoError(t, err)
	assert.True(t, q.IsSynthetic())
	assert.Equal(t, "9970000", q.ToAmount)
	assert.EqualValues(t, 0, atomic.LoadInt32(&hits))
}

type failingResolver struct{}

func (failingResolver) Resolve(context.Context, transport.Request) (*transport.Payload, error) {
	return nil, errors.New("context canceled")
}

func TestGetQuote_AnyResolverErrorIsAbsorbed(t *testing.T) {
	svc, err := New(Config{}, WithResolver(failingResolver{}), WithLogger(quietLogger()))
	require.NoError(t, err)

	q, err := svc.GetQuote(context.Background(), swapRequest(t, "ETH", "USDT", "2"))
	require.NoError(t, err)
	assert.True(t, q.IsSynthetic())
	assert.Equal(t, "4985000000", q.ToAmount)
}

func TestGetQuote_ConcurrentPairsDoNotInterleave(t *testing.T) {
	usdt, _ := tokens.Lookup("USDT")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// echo the amount back so every response is tied to its request
		amount := r.URL.Query().Get("amount")
		if r.URL.Query().Get("dst") == usdt.Address {
			_, _ = fmt.Fprintf(w, `{"toAmount":"%s1"}`, amount)
			return
		}
		_, _ = fmt.Fprintf(w, `{"toAmount":"%s2"}`, amount)
	}))
	defer srv.Close()
	svc := newService(t, srv.URL)

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 1; i <= 20; i++ {
		for _, dst := range []string{"USDT", "USDC"} {
			wg.Add(1)
			go func(amount int, dst string) {
				defer wg.Done()
				from := "USDC"
				suffix := "1"
				if dst == "USDC" {
					from = "USDT"
					suffix = "2"
				}
				q, err := svc.GetQuote(context.Background(), swapRequest(t, from, dst, fmt.Sprint(amount)))
				if err != nil {
					errs <- err
					return
				}
				want := fmt.Sprintf("%d000000%s", amount, suffix)
				if q.ToAmount != want || q.To.Symbol != dst || q.IsSynthetic() {
					errs <- fmt.Errorf("%s->%s amount %d: got %s (%s)", from, dst, amount, q.ToAmount, q.Provenance)
				}
			}(i, dst)
		}
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}
