package auth

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/aiecon/banking-api/internal/directory"
	"github.com/aiecon/banking-api/pkg/response"
)

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrTokenGeneration = errors.New("failed to generate token")
)

// Credentials represents a login request
type Credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse represents a successful login response
type TokenResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	User      *directory.User `json:"user"`
}

// Claims represents the JWT claims structure
type Claims struct {
	jwt.RegisteredClaims
	UserID        uint   `json:"user_id"`
	Username      string `json:"username"`
	AccountNumber string `json:"account_number"`
}

// CredentialVerifier checks a username/password pair against the account
// directory.
type CredentialVerifier interface {
	Authenticate(ctx context.Context, username, password string) (*directory.User, error)
}

// Service issues and verifies bearer tokens. The signing key and token
// lifetime are injected rather than read from the environment, so every
// verifier in the process shares one configuration.
type Service struct {
	jwtSecret     []byte
	tokenDuration time.Duration
}

// NewService creates a new authentication service with the given signing
// secret and token lifetime
func NewService(jwtSecret string, tokenDuration time.Duration) *Service {
	return &Service{
		jwtSecret:     []byte(jwtSecret),
		tokenDuration: tokenDuration,
	}
}

// IssueToken generates a signed token scoped to the given user's account
func (s *Service) IssueToken(user *directory.User) (string, time.Time, error) {
	expiration := time.Now().Add(s.tokenDuration)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
		UserID:        user.ID,
		Username:      user.Username,
		AccountNumber: user.AccountNumber,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, ErrTokenGeneration
	}

	return tokenString, expiration, nil
}

// ValidateToken validates a bearer token and returns its claims.
// Verifies the signing method, signature and expiration.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.AccountNumber != "" {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// GinHandlers contains HTTP handlers for authentication endpoints
type GinHandlers struct {
	service   *Service
	directory CredentialVerifier
}

// NewGinHandlers creates a new set of HTTP handlers for authentication endpoints
func NewGinHandlers(service *Service, directory CredentialVerifier) *GinHandlers {
	return &GinHandlers{
		service:   service,
		directory: directory,
	}
}

// LoginHandler handles POST requests to authenticate a user
// Request body should contain a username and password
func (h *GinHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var creds Credentials
		if err := c.ShouldBindJSON(&creds); err != nil {
			response.BadRequest(c, "Username and password required")
			return
		}

		user, err := h.directory.Authenticate(c.Request.Context(), creds.Username, creds.Password)
		if err != nil {
			if errors.Is(err, directory.ErrInvalidCredentials) {
				response.Unauthorized(c, "Invalid credentials")
				return
			}
			response.InternalError(c, "An unexpected error occurred")
			return
		}

		token, expiresAt, err := h.service.IssueToken(user)
		if err != nil {
			response.InternalError(c, "An unexpected error occurred")
			return
		}

		response.Success(c, TokenResponse{
			Token:     token,
			ExpiresAt: expiresAt,
			User:      user,
		})
	}
}
