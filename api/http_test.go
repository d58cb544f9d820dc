package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/beautystore/beautypos/config"
	posErrors "github.com/beautystore/beautypos/errors"
	"github.com/beautystore/beautypos/gateway"
	"github.com/beautystore/beautypos/localstore"
	"github.com/beautystore/beautypos/repository"
	"github.com/beautystore/beautypos/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type unreachableRemote struct{}

func (unreachableRemote) Call(ctx context.Context, action gateway.Action, payload interface{}) (*gateway.Response, error) {
	return nil, posErrors.NewNetworkError(posErrors.OpCall, fmt.Errorf("%s: no route to host", action))
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := localstore.NewMemoryStore()
	engine := sync.New(store, store, unreachableRemote{}, sync.Options{RemoteTimeout: time.Second})
	t.Cleanup(func() { engine.Close() })

	cfg := config.Default()
	products := repository.NewProducts(store, store, engine, cfg)
	sales := repository.NewSales(store, store, engine, cfg)
	return NewServer(engine, products, sales, cfg)
}

func doJSON(t *testing.T, server *Server, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, req)

	var resp envelope
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp),
		"response is always the JSON envelope, got %q", recorder.Body.String())
	return recorder, resp
}

func decodeData(t *testing.T, resp envelope, out interface{}) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func TestProductLifecycle(t *testing.T) {
	server := newTestServer(t)

	recorder, resp := doJSON(t, server, http.MethodPost, "/api/products", map[string]interface{}{
		"name":          "Pó Compacto",
		"category":      "maquiagem",
		"cost":          "10.50",
		"stockQuantity": 3,
	})
	require.Equal(t, http.StatusCreated, recorder.Code)
	require.True(t, resp.Success)

	var created struct {
		ID   string `json:"id"`
		Code string `json:"code"`
	}
	decodeData(t, resp, &created)
	assert.Regexp(t, `^MQ-PC-\d{4}$`, created.Code)

	recorder, resp = doJSON(t, server, http.MethodGet, "/api/products/"+created.ID, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder, resp = doJSON(t, server, http.MethodPut, "/api/products/"+created.ID, map[string]interface{}{
		"brand": "Ruby Rose",
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var updated struct {
		Brand string `json:"brand"`
		Stock int    `json:"stockQuantity"`
	}
	decodeData(t, resp, &updated)
	assert.Equal(t, "Ruby Rose", updated.Brand)
	assert.Equal(t, 3, updated.Stock, "a patch without stock leaves it alone")

	recorder, _ = doJSON(t, server, http.MethodDelete, "/api/products/"+created.ID, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder, resp = doJSON(t, server, http.MethodGet, "/api/products/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}

func TestCreateProductValidationMapsTo400(t *testing.T) {
	server := newTestServer(t)

	recorder, resp := doJSON(t, server, http.MethodPost, "/api/products", map[string]interface{}{
		"category": "skincare",
	})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.False(t, resp.Success)
}

func TestSaleEndpointsPairStockWithSale(t *testing.T) {
	server := newTestServer(t)

	_, resp := doJSON(t, server, http.MethodPost, "/api/products", map[string]interface{}{
		"name":           "Batom Matte",
		"category":       "maquiagem",
		"suggestedPrice": "25",
		"stockQuantity":  10,
	})
	var product struct {
		ID string `json:"id"`
	}
	decodeData(t, resp, &product)

	recorder, resp := doJSON(t, server, http.MethodPost, "/api/sales", map[string]interface{}{
		"items":         []map[string]interface{}{{"productId": product.ID, "quantity": 4}},
		"paymentMethod": "cartao_credito",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	var sale struct {
		ID          string `json:"id"`
		TotalAmount string `json:"totalAmount"`
		Fees        string `json:"fees"`
	}
	decodeData(t, resp, &sale)
	assert.Equal(t, "3.5", sale.Fees, "3.5%% card fee on 100")
	assert.Equal(t, "103.5", sale.TotalAmount)

	_, resp = doJSON(t, server, http.MethodGet, "/api/products/"+product.ID, nil)
	var reloaded struct {
		Stock int `json:"stockQuantity"`
	}
	decodeData(t, resp, &reloaded)
	assert.Equal(t, 6, reloaded.Stock)

	recorder, _ = doJSON(t, server, http.MethodPost, "/api/sales/"+sale.ID+"/cancel", map[string]interface{}{
		"reason": "cliente desistiu",
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	_, resp = doJSON(t, server, http.MethodGet, "/api/products/"+product.ID, nil)
	decodeData(t, resp, &reloaded)
	assert.Equal(t, 10, reloaded.Stock, "cancellation restores the stock")

	_, resp = doJSON(t, server, http.MethodGet, "/api/stock/movements", nil)
	var movements []struct {
		Type     string `json:"type"`
		Quantity int    `json:"quantity"`
	}
	decodeData(t, resp, &movements)
	require.NotEmpty(t, movements)
	assert.Equal(t, "entrada", movements[0].Type)
	assert.Equal(t, 4, movements[0].Quantity)
}

func TestSaleInsufficientStockMapsTo400(t *testing.T) {
	server := newTestServer(t)

	_, resp := doJSON(t, server, http.MethodPost, "/api/products", map[string]interface{}{
		"name":          "Delineador",
		"category":      "maquiagem",
		"stockQuantity": 1,
	})
	var product struct {
		ID string `json:"id"`
	}
	decodeData(t, resp, &product)

	recorder, resp := doJSON(t, server, http.MethodPost, "/api/sales", map[string]interface{}{
		"items":         []map[string]interface{}{{"productId": product.ID, "quantity": 5}},
		"paymentMethod": "pix",
	})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Contains(t, resp.Error, "insufficient stock")
}

func TestSyncStatusEndpoint(t *testing.T) {
	server := newTestServer(t)

	doJSON(t, server, http.MethodPost, "/api/products", map[string]interface{}{
		"name":     "Base Líquida",
		"category": "maquiagem",
	})

	recorder, resp := doJSON(t, server, http.MethodGet, "/api/sync/status", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var status struct {
		Online       bool   `json:"online"`
		State        string `json:"state"`
		PendingCount int    `json:"pendingCount"`
	}
	decodeData(t, resp, &status)
	assert.False(t, status.Online)
	assert.Equal(t, "offline", status.State)
	assert.Equal(t, 1, status.PendingCount)
}

func TestSyncPullWhileOfflineMapsTo503(t *testing.T) {
	server := newTestServer(t)

	recorder, resp := doJSON(t, server, http.MethodPost, "/api/sync/pull", nil)
	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	assert.False(t, resp.Success)
}

func TestPriceQuoteEndpoint(t *testing.T) {
	server := newTestServer(t)

	recorder, resp := doJSON(t, server, http.MethodGet, "/api/pricing/quote?cost=10", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var quote struct {
		SuggestedPrice string `json:"suggestedPrice"`
	}
	decodeData(t, resp, &quote)
	assert.Equal(t, "19.8", quote.SuggestedPrice)

	recorder, _ = doJSON(t, server, http.MethodGet, "/api/pricing/quote?cost=abc", nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}
