// Package ledger owns account balances and the append-only transaction log.
// Every balance mutation is paired with exactly one ledger entry, and the
// available balance never goes negative.
package ledger

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/aiecon/banking-api/pkg/accountlock"
	"github.com/aiecon/banking-api/pkg/response"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

const defaultTransactionLimit = 10

// Service handles balance queries and movements. Movements on the same
// account are serialized through a per-account mutex so concurrent
// withdrawals cannot interleave between the funds check and the update.
type Service struct {
	db    *Database
	locks *accountlock.Arena
}

// NewService creates a new ledger service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db:    NewDatabase(gormDB),
		locks: accountlock.New(),
	}
}

// GetBalance returns the current balance for an account
func (s *Service) GetBalance(ctx context.Context, accountNumber string) (*Balance, error) {
	return s.db.GetBalance(ctx, accountNumber)
}

// FindTransaction returns the ledger entry recorded under the given
// reference id, or nil when none exists
func (s *Service) FindTransaction(ctx context.Context, accountNumber, referenceID string) (*Transaction, error) {
	if txn, err := s.db.FindTransactionByReference(ctx, accountNumber, referenceID, TypeWithdrawal); err != nil || txn != nil {
		return txn, err
	}
	return s.db.FindTransactionByReference(ctx, accountNumber, referenceID, TypeDeposit)
}

// Withdraw debits amount from the account and appends a withdrawal entry.
// When referenceID is set the call is idempotent: a replay under the same
// reference returns the recorded entry without debiting again.
func (s *Service) Withdraw(ctx context.Context, accountNumber string, amount float64, description, referenceID string) (*Balance, *Transaction, error) {
	return s.move(ctx, accountNumber, -amount, TypeWithdrawal, description, referenceID)
}

// Deposit credits amount to the account and appends a deposit entry.
// Idempotent by referenceID like Withdraw.
func (s *Service) Deposit(ctx context.Context, accountNumber string, amount float64, description, referenceID string) (*Balance, *Transaction, error) {
	return s.move(ctx, accountNumber, amount, TypeDeposit, description, referenceID)
}

func (s *Service) move(ctx context.Context, accountNumber string, delta float64, txType, description, referenceID string) (*Balance, *Transaction, error) {
	if delta == 0 || (txType == TypeWithdrawal && delta > 0) || (txType == TypeDeposit && delta < 0) {
		return nil, nil, ErrInvalidAmount
	}

	s.locks.Lock(accountNumber)
	defer s.locks.Unlock(accountNumber)

	if referenceID != "" {
		existing, err := s.db.FindTransactionByReference(ctx, accountNumber, referenceID, txType)
		if err != nil {
			return nil, nil, err
		}
		if existing != nil {
			balance, err := s.db.GetBalance(ctx, accountNumber)
			if err != nil {
				return nil, nil, err
			}
			log.Debug().
				Str("account_number", accountNumber).
				Str("reference_id", referenceID).
				Str("transaction_id", existing.TransactionID).
				Msg("replayed ledger movement, returning recorded entry")
			return balance, existing, nil
		}
	}

	amount := delta
	if amount < 0 {
		amount = -amount
	}

	txn := &Transaction{
		TransactionID: uuid.New().String(),
		AccountNumber: accountNumber,
		Type:          txType,
		Amount:        amount,
		Description:   description,
		ReferenceID:   referenceID,
		Status:        "completed",
		CreatedAt:     time.Now(),
	}

	balance, err := s.db.ApplyMovement(ctx, accountNumber, delta, txn)
	if err != nil {
		return nil, nil, err
	}

	return balance, txn, nil
}

// ListTransactions returns the most recent ledger entries for an account,
// newest first
func (s *Service) ListTransactions(ctx context.Context, accountNumber string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = defaultTransactionLimit
	}
	return s.db.ListTransactions(ctx, accountNumber, limit)
}

// SeedDefaultBalances provisions the demo account balances on first run
func (s *Service) SeedDefaultBalances(ctx context.Context) error {
	balances := make([]Balance, 0, len(DefaultBalances))
	for _, sb := range DefaultBalances {
		balances = append(balances, Balance{
			AccountNumber:    sb.AccountNumber,
			Balance:          sb.Balance,
			AvailableBalance: sb.Balance,
			Currency:         "BRL",
			LastUpdated:      time.Now(),
		})
	}

	if err := s.db.SeedBalances(ctx, balances); err != nil {
		return err
	}

	log.Info().Int("accounts", len(balances)).Msg("ledger seeded")
	return nil
}

// MovementRequest is the request body for withdraw and deposit
type MovementRequest struct {
	AccountNumber string  `json:"account_number" binding:"required"`
	Amount        float64 `json:"amount" binding:"required,gt=0"`
	Description   string  `json:"description"`
	ReferenceID   string  `json:"reference_id"`
}

// MovementResponse is the response body for withdraw and deposit
type MovementResponse struct {
	TransactionID    string  `json:"transaction_id"`
	AccountNumber    string  `json:"account_number"`
	Amount           float64 `json:"amount"`
	NewBalance       float64 `json:"new_balance"`
	AvailableBalance float64 `json:"available_balance"`
	Status           string  `json:"status"`
	Description      string  `json:"description"`
}

// GinHandlers contains HTTP handlers for ledger endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for ledger endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// GetBalanceHandler handles GET requests for an account balance
// URL parameter: account_number
func (h *GinHandlers) GetBalanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountNumber := c.Param("account_number")
		if accountNumber != c.GetString("account_number") {
			response.Forbidden(c, "Token is not scoped to this account")
			return
		}

		balance, err := h.service.GetBalance(c.Request.Context(), accountNumber)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				response.NotFound(c, "Account not found")
				return
			}
			response.InternalError(c, "An unexpected error occurred")
			return
		}

		response.Success(c, balance)
	}
}

// WithdrawHandler handles POST requests to debit an account
func (h *GinHandlers) WithdrawHandler() gin.HandlerFunc {
	return h.movementHandler(TypeWithdrawal, "Investment withdrawal")
}

// DepositHandler handles POST requests to credit an account
func (h *GinHandlers) DepositHandler() gin.HandlerFunc {
	return h.movementHandler(TypeDeposit, "Investment return")
}

func (h *GinHandlers) movementHandler(txType, defaultDescription string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req MovementRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid amount")
			return
		}

		if req.AccountNumber != c.GetString("account_number") {
			response.Forbidden(c, "Token is not scoped to this account")
			return
		}

		if req.Description == "" {
			req.Description = defaultDescription
		}

		var (
			balance *Balance
			txn     *Transaction
			err     error
		)
		if txType == TypeWithdrawal {
			balance, txn, err = h.service.Withdraw(c.Request.Context(), req.AccountNumber, req.Amount, req.Description, req.ReferenceID)
		} else {
			balance, txn, err = h.service.Deposit(c.Request.Context(), req.AccountNumber, req.Amount, req.Description, req.ReferenceID)
		}

		if err != nil {
			switch {
			case errors.Is(err, ErrInsufficientFunds):
				response.InsufficientFunds(c, "Insufficient funds")
			case errors.Is(err, ErrAccountNotFound):
				response.NotFound(c, "Account not found")
			case errors.Is(err, ErrInvalidAmount):
				response.BadRequest(c, "Invalid amount")
			default:
				response.InternalError(c, "An unexpected error occurred")
			}
			return
		}

		response.Success(c, MovementResponse{
			TransactionID:    txn.TransactionID,
			AccountNumber:    balance.AccountNumber,
			Amount:           txn.Amount,
			NewBalance:       balance.Balance,
			AvailableBalance: balance.AvailableBalance,
			Status:           txn.Status,
			Description:      txn.Description,
		})
	}
}

// ListTransactionsHandler handles GET requests for an account's ledger
// entries, newest first. Query parameter: limit (default 10)
func (h *GinHandlers) ListTransactionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountNumber := c.Param("account_number")
		if accountNumber != c.GetString("account_number") {
			response.Forbidden(c, "Token is not scoped to this account")
			return
		}

		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

		transactions, err := h.service.ListTransactions(c.Request.Context(), accountNumber, limit)
		if err != nil {
			response.InternalError(c, "An unexpected error occurred")
			return
		}

		response.Success(c, gin.H{"transactions": transactions})
	}
}
