package trading

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aiecon/banking-api/internal/holdings"
	"github.com/aiecon/banking-api/internal/ledger"
	"github.com/aiecon/banking-api/pkg/response"
)

// OrderRequest is the request body for buy and sell
type OrderRequest struct {
	AccountNumber string  `json:"account_number" binding:"required"`
	Symbol        string  `json:"symbol" binding:"required"`
	Quantity      int64   `json:"quantity" binding:"required,gt=0"`
	Price         float64 `json:"price" binding:"required,gt=0"`
}

// OrderResponse is the response body for buy and sell
type OrderResponse struct {
	OrderID     string  `json:"order_id"`
	Status      string  `json:"status"`
	Symbol      string  `json:"symbol"`
	Side        string  `json:"side"`
	Quantity    int64   `json:"quantity"`
	Price       float64 `json:"price"`
	TotalAmount float64 `json:"total_amount"`
	Message     string  `json:"message"`
}

// GinHandlers contains HTTP handlers for trading endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for trading endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// BuyHandler handles POST requests to execute a buy order
// An optional Idempotency-Key header makes retries safe
func (h *GinHandlers) BuyHandler() gin.HandlerFunc {
	return h.orderHandler(SideBuy)
}

// SellHandler handles POST requests to execute a sell order
// An optional Idempotency-Key header makes retries safe
func (h *GinHandlers) SellHandler() gin.HandlerFunc {
	return h.orderHandler(SideSell)
}

func (h *GinHandlers) orderHandler(side string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req OrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid quantity or price")
			return
		}

		if req.AccountNumber != c.GetString("account_number") {
			response.Forbidden(c, "Token is not scoped to this account")
			return
		}

		idempotencyKey := c.GetHeader("Idempotency-Key")

		var (
			order *Order
			err   error
		)
		if side == SideBuy {
			order, err = h.service.Buy(c.Request.Context(), req.AccountNumber, req.Symbol, req.Quantity, req.Price, idempotencyKey)
		} else {
			order, err = h.service.Sell(c.Request.Context(), req.AccountNumber, req.Symbol, req.Quantity, req.Price, idempotencyKey)
		}

		if err != nil {
			switch {
			case errors.Is(err, ErrInvalidOrder):
				response.BadRequest(c, "Invalid quantity or price")
			case errors.Is(err, ledger.ErrInsufficientFunds):
				response.InsufficientFunds(c, "Insufficient funds")
			case errors.Is(err, holdings.ErrInsufficientShares):
				response.InsufficientShares(c, "Insufficient shares")
			case errors.Is(err, ledger.ErrAccountNotFound):
				response.NotFound(c, "Account not found")
			case errors.Is(err, ErrDependencyFailure):
				response.DependencyFailure(c, "Order could not be completed, no funds were lost")
			default:
				response.InternalError(c, "An unexpected error occurred")
			}
			return
		}

		verb := "purchased"
		if order.Side == SideSell {
			verb = "sold"
		}

		response.Success(c, OrderResponse{
			OrderID:     order.OrderID,
			Status:      order.Status,
			Symbol:      order.Symbol,
			Side:        order.Side,
			Quantity:    order.Quantity,
			Price:       order.Price,
			TotalAmount: order.TotalAmount,
			Message:     fmt.Sprintf("Successfully %s %d shares of %s", verb, order.Quantity, order.Symbol),
		})
	}
}

// GetPortfolioHandler handles GET requests for an account's positions
// URL parameter: account_number
func (h *GinHandlers) GetPortfolioHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountNumber := c.Param("account_number")
		if accountNumber != c.GetString("account_number") {
			response.Forbidden(c, "Token is not scoped to this account")
			return
		}

		portfolio, err := h.service.GetPortfolio(c.Request.Context(), accountNumber)
		if err != nil {
			if errors.Is(err, ErrDependencyFailure) {
				response.DependencyFailure(c, "Holdings store unavailable")
				return
			}
			response.InternalError(c, "An unexpected error occurred")
			return
		}

		response.Success(c, gin.H{"portfolio": portfolio})
	}
}

// PortfolioSummaryHandler handles GET requests for the aggregated account
// view: balance, positions and recent orders
func (h *GinHandlers) PortfolioSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountNumber := c.Param("account_number")
		if accountNumber != c.GetString("account_number") {
			response.Forbidden(c, "Token is not scoped to this account")
			return
		}

		summary, err := h.service.GetPortfolioSummary(c.Request.Context(), accountNumber)
		if err != nil {
			switch {
			case errors.Is(err, ledger.ErrAccountNotFound):
				response.NotFound(c, "Account not found")
			case errors.Is(err, ErrDependencyFailure):
				response.DependencyFailure(c, "A backing store is unavailable")
			default:
				response.InternalError(c, "An unexpected error occurred")
			}
			return
		}

		response.Success(c, summary)
	}
}

// GetOrdersHandler handles GET requests for an account's order history,
// newest first. Query parameter: limit (default 20)
func (h *GinHandlers) GetOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountNumber := c.Param("account_number")
		if accountNumber != c.GetString("account_number") {
			response.Forbidden(c, "Token is not scoped to this account")
			return
		}

		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

		orders, err := h.service.GetOrders(c.Request.Context(), accountNumber, limit)
		if err != nil {
			response.InternalError(c, "An unexpected error occurred")
			return
		}

		response.Success(c, gin.H{"orders": orders})
	}
}
