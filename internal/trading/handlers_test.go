package trading

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/aiecon/banking-api/pkg/response"
)

func newTestRouter(env *testEnv, tokenAccount string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	// Stand-in for the JWT middleware: inject the token's account scope
	router.Use(func(c *gin.Context) {
		c.Set("account_number", tokenAccount)
	})

	handlers := NewGinHandlers(env.svc)
	router.POST("/orders/buy", handlers.BuyHandler())
	router.POST("/orders/sell", handlers.SellHandler())
	router.GET("/orders/:account_number", handlers.GetOrdersHandler())
	router.GET("/portfolio/:account_number", handlers.GetPortfolioHandler())
	router.GET("/portfolio/:account_number/summary", handlers.PortfolioSummaryHandler())
	return router
}

func postOrder(t *testing.T, router *gin.Engine, path string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewBuffer(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestBuyHandlerSuccess(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(env, testAccount)

	w := postOrder(t, router, "/orders/buy", map[string]any{
		"account_number": testAccount,
		"symbol":         "PETR4",
		"quantity":       100,
		"price":          20.00,
	})

	require.Equal(t, http.StatusCreated, w.Code)
	resp := decodeResponse(t, w)
	require.True(t, resp.Success)

	data := resp.Data.(map[string]any)
	require.Equal(t, StatusExecuted, data["status"])
	require.Equal(t, 2000.00, data["total_amount"])
	require.Equal(t, "Successfully purchased 100 shares of PETR4", data["message"])
}

func TestBuyHandlerRejectsForeignAccount(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(env, "ACC002")

	w := postOrder(t, router, "/orders/buy", map[string]any{
		"account_number": testAccount,
		"symbol":         "PETR4",
		"quantity":       10,
		"price":          20.00,
	})

	require.Equal(t, http.StatusForbidden, w.Code)
	resp := decodeResponse(t, w)
	require.Equal(t, response.ErrCodeForbidden, resp.Error.Code)

	// The rejected request must not reach the coordinator
	orders, err := env.svc.GetOrders(context.Background(), testAccount, 50)
	require.NoError(t, err)
	require.Empty(t, orders)
}

func TestBuyHandlerInvalidBody(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(env, testAccount)

	w := postOrder(t, router, "/orders/buy", map[string]any{
		"account_number": testAccount,
		"symbol":         "PETR4",
		"quantity":       -5,
		"price":          20.00,
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	require.Equal(t, response.ErrCodeBadRequest, resp.Error.Code)
}

func TestBuyHandlerInsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(env, testAccount)

	w := postOrder(t, router, "/orders/buy", map[string]any{
		"account_number": testAccount,
		"symbol":         "PETR4",
		"quantity":       3000,
		"price":          20.00,
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	require.Equal(t, response.ErrCodeInsufficientFunds, resp.Error.Code)
}

func TestSellHandlerInsufficientShares(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(env, testAccount)

	w := postOrder(t, router, "/orders/sell", map[string]any{
		"account_number": testAccount,
		"symbol":         "PETR4",
		"quantity":       10,
		"price":          20.00,
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	require.Equal(t, response.ErrCodeInsufficientShares, resp.Error.Code)
}

func TestBuyHandlerDependencyFailure(t *testing.T) {
	env := newTestEnv(t)
	env.ledgerS.withdrawErr = context.DeadlineExceeded
	router := newTestRouter(env, testAccount)

	w := postOrder(t, router, "/orders/buy", map[string]any{
		"account_number": testAccount,
		"symbol":         "PETR4",
		"quantity":       10,
		"price":          20.00,
	})

	require.Equal(t, http.StatusBadGateway, w.Code)
	resp := decodeResponse(t, w)
	require.Equal(t, response.ErrCodeDependencyFailure, resp.Error.Code)
}

func TestPortfolioSummaryHandler(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(env, testAccount)

	w := postOrder(t, router, "/orders/buy", map[string]any{
		"account_number": testAccount,
		"symbol":         "PETR4",
		"quantity":       100,
		"price":          20.00,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	req := httptest.NewRequest("GET", "/portfolio/"+testAccount+"/summary", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	require.True(t, resp.Success)

	data := resp.Data.(map[string]any)
	require.Equal(t, testAccount, data["account_number"])
	require.Equal(t, 2000.00, data["total_invested"])
}

func TestGetOrdersHandlerScope(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(env, "ACC002")

	req := httptest.NewRequest("GET", "/orders/"+testAccount, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}
