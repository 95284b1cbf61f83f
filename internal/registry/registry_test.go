package registry

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/msubot/internal/engine"
	"github.com/betbot/msubot/internal/journal"
	"github.com/betbot/msubot/msu/client"
	"github.com/betbot/msubot/msu/types"
	"github.com/betbot/msubot/pkg/transport"
)

const testKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// fakeVenue 模拟交易所
type fakeVenue struct {
	loginStatus int
	buyStatus   int
	buyBody     map[string]interface{}
	item        map[string]interface{}
}

func newFakeVenue() *fakeVenue {
	return &fakeVenue{
		loginStatus: http.StatusOK,
		buyStatus:   http.StatusOK,
		buyBody:     map[string]interface{}{"orderId": "ord-1"},
		item: map[string]interface{}{
			"name": "Salmon Sushi",
			"salesInfo": map[string]interface{}{
				"tokenId":   "777",
				"priceWei":  "2500000000000000000",
				"createdAt": "2024-05-01T12:00:00Z",
			},
		},
	}
}

func (v *fakeVenue) respond(ctx context.Context, method, path string, payload interface{}, opt *transport.Options) (*transport.Response, error) {
	switch {
	case path == client.EndpointLoginMessage:
		if v.loginStatus != http.StatusOK {
			return transport.JSONResponse(v.loginStatus, nil), nil
		}
		return transport.JSONResponse(http.StatusOK, map[string]string{"message": "Welcome"}), nil
	case path == client.EndpointSignIn:
		return transport.JSONResponse(http.StatusOK, map[string]string{"wat": "wat", "wrt": "wrt"}), nil
	case method == http.MethodGet && strings.HasPrefix(path, "/marketplace/api/marketplace/items/"):
		return transport.JSONResponse(http.StatusOK, v.item), nil
	case strings.HasSuffix(path, "/buy"), strings.HasSuffix(path, "/offer"), strings.HasSuffix(path, "/register"):
		return transport.JSONResponse(v.buyStatus, v.buyBody), nil
	}
	return transport.JSONResponse(http.StatusNotFound, nil), nil
}

type memJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (m *memJournal) Record(ctx context.Context, e journal.Entry) (journal.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return e, nil
}

func (m *memJournal) all() []journal.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]journal.Entry(nil), m.entries...)
}

type harness struct {
	reg     *Registry
	venue   *fakeVenue
	journal *memJournal
	created atomic.Int32
	mocks   []*transport.Mock
	mu      sync.Mutex
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{venue: newFakeVenue(), journal: &memJournal{}}
	h.reg = New(Options{
		BaseURL: "https://msu.test",
		Race:    engine.RaceOptions{Concurrency: 3, Stagger: time.Millisecond, Cooldown: 30 * time.Second},
		Journal: h.journal,
		NewTransport: func() (transport.Transport, error) {
			h.created.Add(1)
			m := transport.NewMock(h.venue.respond)
			h.mu.Lock()
			h.mocks = append(h.mocks, m)
			h.mu.Unlock()
			return m, nil
		},
	})
	t.Cleanup(h.reg.Cleanup)
	return h
}

func TestIdentity(t *testing.T) {
	id := Identity(testKey)
	assert.Len(t, id, 16)
	assert.Equal(t, id, Identity(testKey))
	assert.NotEqual(t, id, Identity(testKey+"0"))
}

func TestGetOrCreateCollapsesConcurrentCallers(t *testing.T) {
	h := newHarness(t)

	var wg sync.WaitGroup
	engines := make([]*engine.Engine, 20)
	for i := range engines {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := h.reg.GetOrCreate(context.Background(), testKey)
			assert.NoError(t, err)
			engines[i] = e
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), h.created.Load())
	for _, e := range engines {
		assert.Same(t, engines[0], e)
	}
	assert.True(t, engines[0].IsAuthenticated())
	assert.Equal(t, Identity(testKey), engines[0].Identity())
	assert.Equal(t, 1, h.reg.Len())
}

func TestGetOrCreateKeepsEngineWhenLoginFails(t *testing.T) {
	h := newHarness(t)
	h.venue.loginStatus = http.StatusInternalServerError

	e, err := h.reg.GetOrCreate(context.Background(), testKey)
	require.NoError(t, err)
	assert.False(t, e.IsAuthenticated())

	again, err := h.reg.GetOrCreate(context.Background(), testKey)
	require.NoError(t, err)
	assert.Same(t, e, again)
	assert.Equal(t, int32(1), h.created.Load())
}

func TestGetOrCreateRejectsMissingKey(t *testing.T) {
	h := newHarness(t)
	_, err := h.reg.GetOrCreate(context.Background(), "  ")
	assert.True(t, types.IsCode(err, types.CodeMissingPrivateKey))

	_, err = h.reg.GetOrCreate(context.Background(), "0xzz")
	assert.True(t, types.IsCode(err, types.CodeInvalidParameters))
	assert.Zero(t, h.reg.Len())
}

func TestCleanupClosesEngines(t *testing.T) {
	h := newHarness(t)
	_, err := h.reg.GetOrCreate(context.Background(), testKey)
	require.NoError(t, err)

	h.reg.Cleanup()
	assert.Zero(t, h.reg.Len())
	require.Len(t, h.mocks, 1)
	assert.True(t, h.mocks[0].Closed())
}

func TestPlaceMarketOrderLooksUpItem(t *testing.T) {
	h := newHarness(t)

	res := h.reg.PlaceOrder(context.Background(), testKey, types.OrderRequest{
		NFTTokenID:       "777",
		ConfirmRealOrder: true,
	})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "ord-1", res.OrderID)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	m := h.mocks[0]
	assert.Equal(t, 1, m.CallCount("/marketplace/api/marketplace/items/777"))
	var signed *types.SignedOrder
	for _, r := range m.RequestLog() {
		if strings.HasSuffix(r.Path, "/buy") {
			signed = r.Payload.(*types.SignedOrder)
			break
		}
	}
	require.NotNil(t, signed)
	assert.Equal(t, "2500000000000000000", signed.Order.TokenAmount)

	entries := h.journal.all()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Success)
	assert.Equal(t, "market", entries[0].OrderType)
	assert.NotEmpty(t, entries[0].RaceID)
	assert.Equal(t, 3, entries[0].Attempts)
}

func TestPlaceMarketOrderSkipsLookupWhenPriceGiven(t *testing.T) {
	h := newHarness(t)
	res := h.reg.PlaceOrder(context.Background(), testKey, types.OrderRequest{
		NFTTokenID:       "777",
		PriceWei:         "1000",
		CreatedAtTs:      time.Now().Add(-time.Hour).Unix(),
		ConfirmRealOrder: true,
	})
	require.True(t, res.Success, res.Message)
	assert.Zero(t, h.mocks[0].CallCount("/marketplace/api/marketplace/items/777"))
}

func TestPlaceOrderErrorCodes(t *testing.T) {
	tests := []struct {
		name  string
		setup func(v *fakeVenue)
		req   types.OrderRequest
		code  types.Code
	}{
		{"missing token", nil, types.OrderRequest{ConfirmRealOrder: true}, types.CodeInvalidParameters},
		{"not confirmed", nil, types.OrderRequest{NFTTokenID: "777", OrderType: types.OrderTypeLimit, Amount: "1"}, types.CodeSecurityCheckFailed},
		{"not for sale", func(v *fakeVenue) {
			v.item = map[string]interface{}{"salesInfo": map[string]interface{}{"tokenId": "777"}}
		}, types.OrderRequest{NFTTokenID: "777", ConfirmRealOrder: true}, types.CodeItemNotForSale},
		{"limit without amount", nil, types.OrderRequest{NFTTokenID: "777", OrderType: types.OrderTypeLimit, ConfirmRealOrder: true}, types.CodeMissingAmount},
		{"sell without amount", nil, types.OrderRequest{NFTTokenID: "777", OrderType: types.OrderTypeSell, ConfirmRealOrder: true}, types.CodeMissingTokenAmount},
		{"unsupported", nil, types.OrderRequest{NFTTokenID: "777", OrderType: "swap", ConfirmRealOrder: true}, types.CodeUnsupportedOrderType},
		{"rate limited", func(v *fakeVenue) { v.buyStatus = http.StatusTooManyRequests },
			types.OrderRequest{NFTTokenID: "777", OrderType: types.OrderTypeLimit, Amount: "1", ConfirmRealOrder: true}, types.CodeRateLimited},
		{"blocked", func(v *fakeVenue) { v.buyStatus = http.StatusForbidden },
			types.OrderRequest{NFTTokenID: "777", OrderType: types.OrderTypeSell, PriceWei: "5", ConfirmRealOrder: true}, types.CodeRequestBlocked},
		{"venue rejects", func(v *fakeVenue) {
			v.buyStatus = http.StatusBadRequest
			v.buyBody = map[string]interface{}{"message": "insufficient balance"}
		}, types.OrderRequest{NFTTokenID: "777", OrderType: types.OrderTypeLimit, Amount: "1", ConfirmRealOrder: true}, types.CodeOrderCreationFailed},
		{"login fails", func(v *fakeVenue) { v.loginStatus = http.StatusInternalServerError },
			types.OrderRequest{NFTTokenID: "777", OrderType: types.OrderTypeLimit, Amount: "1", ConfirmRealOrder: true}, types.CodeAuthenticationRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.setup != nil {
				tt.setup(h.venue)
			}
			res := h.reg.PlaceOrder(context.Background(), testKey, tt.req)
			assert.False(t, res.Success)
			assert.Equal(t, tt.code, res.Code, res.Message)
			assert.Len(t, h.journal.all(), 1)
		})
	}
}

func TestPlaceOrderUnconfirmedMakesNoRequests(t *testing.T) {
	h := newHarness(t)
	for _, kind := range []types.OrderType{types.OrderTypeMarket, types.OrderTypeLimit, types.OrderTypeSell} {
		res := h.reg.PlaceOrder(context.Background(), testKey, types.OrderRequest{
			NFTTokenID: "777", OrderType: kind, Amount: "1", TokenAmount: "10",
		})
		assert.Equal(t, types.CodeSecurityCheckFailed, res.Code)
	}
	assert.Zero(t, h.created.Load())
	assert.Zero(t, h.reg.Len())

	entries := h.journal.all()
	require.Len(t, entries, 3)
	assert.Equal(t, Identity(testKey), entries[0].Identity)
}

func TestPlaceOrderVenueRejectMessage(t *testing.T) {
	h := newHarness(t)
	h.venue.buyStatus = http.StatusBadRequest
	h.venue.buyBody = map[string]interface{}{"message": "insufficient balance"}

	res := h.reg.PlaceOrder(context.Background(), testKey, types.OrderRequest{
		NFTTokenID: "777", OrderType: types.OrderTypeLimit, Amount: "1", ConfirmRealOrder: true,
	})
	assert.Equal(t, "订单创建失败: insufficient balance", res.Message)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestPlaceOrderLogsInWhenUnauthenticated(t *testing.T) {
	h := newHarness(t)
	h.venue.loginStatus = http.StatusInternalServerError
	e, err := h.reg.GetOrCreate(context.Background(), testKey)
	require.NoError(t, err)
	require.False(t, e.IsAuthenticated())

	h.venue.loginStatus = http.StatusOK
	res := h.reg.PlaceOrder(context.Background(), testKey, types.OrderRequest{
		NFTTokenID: "777", OrderType: types.OrderTypeSell, TokenAmount: "10", ConfirmRealOrder: true,
	})
	assert.True(t, res.Success, res.Message)
	assert.True(t, e.IsAuthenticated())
}

func TestMarkets(t *testing.T) {
	h := newHarness(t)
	_, err := h.reg.Markets(context.Background(), "", nil)
	assert.True(t, types.IsCode(err, types.CodeMissingPrivateKey))
}
