// Package directory maps login credentials to account identities. It owns
// the user database and is the only component that sees password hashes.
package directory

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/aiecon/banking-api/pkg/response"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
)

// Service handles account directory operations
type Service struct {
	db *Database
	// Compared against when the username is unknown so that both failure
	// paths cost one bcrypt verification.
	dummyHash []byte
}

// NewService creates a new directory service with the given database connection
func NewService(gormDB *gorm.DB) (*Service, error) {
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &Service{
		db:        NewDatabase(gormDB),
		dummyHash: dummy,
	}, nil
}

// Authenticate verifies a username/password pair and returns the matching
// user. Unknown usernames and wrong passwords both return
// ErrInvalidCredentials; the error does not reveal which check failed.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	user, err := s.db.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// GetUser retrieves a user profile by account number
func (s *Service) GetUser(ctx context.Context, accountNumber string) (*User, error) {
	return s.db.GetUserByAccountNumber(ctx, accountNumber)
}

// SeedDefaultUsers provisions the demo users on first run. Existing rows are
// left untouched, so restarting the server never resets passwords.
func (s *Service) SeedDefaultUsers(ctx context.Context) error {
	users := make([]User, 0, len(DefaultUsers))
	for _, su := range DefaultUsers {
		hash, err := bcrypt.GenerateFromPassword([]byte(su.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		users = append(users, User{
			Username:      su.Username,
			Email:         su.Email,
			PasswordHash:  string(hash),
			FullName:      su.FullName,
			AccountNumber: su.AccountNumber,
			Currency:      "BRL",
			CreatedAt:     time.Now(),
		})
	}

	if err := s.db.SeedUsers(ctx, users); err != nil {
		return err
	}

	log.Info().Int("users", len(users)).Msg("directory seeded")
	return nil
}

// GinHandlers contains HTTP handlers for directory endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for directory endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// GetUserHandler handles GET requests for a user profile
// URL parameter: account_number; the token must be scoped to the same account
func (h *GinHandlers) GetUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountNumber := c.Param("account_number")
		if accountNumber != c.GetString("account_number") {
			response.Forbidden(c, "Token is not scoped to this account")
			return
		}

		user, err := h.service.GetUser(c.Request.Context(), accountNumber)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				response.NotFound(c, "User not found")
				return
			}
			response.InternalError(c, "An unexpected error occurred")
			return
		}

		response.Success(c, user)
	}
}
