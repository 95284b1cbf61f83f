package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/msubot/msu/types"
	"github.com/betbot/msubot/pkg/transport"
)

const addr = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(transport.NewResty(transport.Config{Timeout: 2 * time.Second}), srv.URL+"/", addr)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestItemDetails(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/marketplace/api/marketplace/items/777", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Contains(t, r.Header.Get("Referer"), "/marketplace")
		writeJSON(w, 200, map[string]interface{}{
			"name": "Salmon Sushi",
			"salesInfo": map[string]interface{}{
				"tokenId":   777,
				"priceWei":  "2500000000000000000",
				"createdAt": "2024-05-01T12:00:00Z",
			},
		})
	})

	d, err := c.ItemDetails(context.Background(), "777")
	require.NoError(t, err)
	assert.Equal(t, "Salmon Sushi", d.Name)
	assert.Equal(t, "777", d.SalesInfo.TokenID)
	assert.Equal(t, "2500000000000000000", d.SalesInfo.PriceWei)
	assert.Equal(t, int64(1714564800), d.CreatedAtTs)
}

func TestItemDetailsStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		code   types.Code
	}{
		{429, types.CodeRateLimited},
		{403, types.CodeRequestBlocked},
		{500, types.CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := c.ItemDetails(context.Background(), "1")
			require.Error(t, err)
			assert.Equal(t, tt.code, types.CodeOf(err))
		})
	}
}

func TestExplore(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, EndpointExplore, r.URL.Path)
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, SortingRecentlyListed, body["sorting"])
		assert.Equal(t, addr, body["walletAddr"])
		assert.Equal(t, float64(1000401001), body["filter"].(map[string]interface{})["categoryNo"])

		writeJSON(w, 200, map[string]interface{}{
			"items": []interface{}{
				map[string]interface{}{
					"data":       map[string]interface{}{"itemId": "it-1"},
					"name":       "Pet",
					"categoryNo": 1000401001,
					"salesInfo": map[string]interface{}{
						"tokenId":   "11",
						"priceWei":  "1000",
						"createdAt": "2024-05-01T12:00:00Z",
					},
				},
				map[string]interface{}{
					"name":      "Broken",
					"salesInfo": map[string]interface{}{"tokenId": "12", "createdAt": "soon"},
				},
			},
		})
	})

	listings, err := c.Explore(context.Background(), map[string]interface{}{"categoryNo": 1000401001})
	require.NoError(t, err)
	require.Len(t, listings, 1)
	l := listings[0]
	assert.Equal(t, "it-1", l.ID)
	assert.Equal(t, "11", l.TokenID)
	assert.Equal(t, int64(1000401001), l.CategoryNo)
	assert.Equal(t, int64(1714564800), l.CreatedAtTs)
}

func TestLoginFlowEndpoints(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch r.URL.Path {
		case EndpointLoginMessage:
			assert.Equal(t, addr, body["address"])
			writeJSON(w, 200, map[string]string{"message": "sign me"})
		case EndpointSignIn:
			assert.Equal(t, addr, r.Header.Get("X-Msu-Address"))
			assert.Equal(t, types.WalletTypeMetamask, body["walletType"])
			assert.Equal(t, "0xsig", body["signature"])
			writeJSON(w, 200, map[string]interface{}{"wat": "A", "wrt": "R", "watExpireAt": 123})
		default:
			w.WriteHeader(404)
		}
	})

	msg, err := c.LoginMessage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sign me", msg)

	res, err := c.SignIn(context.Background(), "0xsig")
	require.NoError(t, err)
	assert.Equal(t, "A", res.Wat)
	assert.Equal(t, "R", res.Wrt)
	assert.EqualValues(t, 123, res.WatExpireAt)
}

func TestSignInMissingTokens(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]string{"wat": "only"})
	})
	_, err := c.SignIn(context.Background(), "0xsig")
	require.Error(t, err)
}

func TestSubmit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/marketplace/api/marketplace/items/55/register", r.URL.Path)
		assert.Equal(t, "Bearer W", r.Header.Get("Authorization"))
		var body struct {
			Order     types.Order `json:"order"`
			OrderSign string      `json:"orderSign"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.Order.IsSeller)
		assert.Equal(t, "0xabc", body.OrderSign)
		writeJSON(w, 400, map[string]string{"message": "nope"})
	})

	signed := &types.SignedOrder{
		Order:     &types.Order{IsSeller: true, NFTTokenID: "55"},
		OrderSign: "0xabc",
	}
	resp, err := c.Submit(context.Background(), ActionRegister, signed, map[string]string{"Authorization": "Bearer W"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "nope", resp.Message())

	_, err = c.Submit(context.Background(), ActionBuy, nil, nil)
	assert.Equal(t, types.CodeInvalidOrder, types.CodeOf(err))
}
