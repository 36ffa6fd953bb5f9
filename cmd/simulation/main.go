package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/aiecon/banking-api/internal/auth"
	"github.com/aiecon/banking-api/internal/config"
	"github.com/aiecon/banking-api/internal/database"
	"github.com/aiecon/banking-api/internal/directory"
	"github.com/aiecon/banking-api/internal/holdings"
	"github.com/aiecon/banking-api/internal/ledger"
	"github.com/aiecon/banking-api/internal/trading"
	"github.com/aiecon/banking-api/pkg/middleware"
)

const (
	minOrders     = 15
	maxOrders     = 150
	serverAddress = "http://localhost:8080"
)

var (
	symbols = []string{"PETR4", "VALE3", "ITUB4", "BBDC4", "ABEV3"}

	// The demo accounts seeded at startup
	accounts = []struct {
		username string
		password string
		account  string
	}{
		{"admin", "admin123", "ACC001"},
		{"investor", "investor123", "ACC002"},
		{"trader", "trader123", "ACC003"},
	}
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	// Configure pretty logging
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	mu         sync.Mutex
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// addFailure records a failed call for the route
func (rs *routeStats) addFailure() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.failures++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	// Sort durations for percentile calculations
	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	// Calculate mean
	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))

	// Calculate median
	median = rs.durations[len(rs.durations)/2]

	// Calculate percentiles
	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the investment API on
// behalf of one demo account
type simulationClient struct {
	baseURL   string
	account   string
	authToken string
	client    *http.Client
	stats     map[string]*routeStats
}

// newSimulationClient creates a client for the given demo account and
// authenticates it against the API
func newSimulationClient(username, password, account string, stats map[string]*routeStats) (*simulationClient, error) {
	sc := &simulationClient{
		baseURL: serverAddress,
		account: account,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		stats: stats,
	}

	token, err := sc.login(username, password)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate %s: %w", username, err)
	}
	sc.authToken = token

	return sc, nil
}

// login authenticates against the API and returns a JWT token
func (sc *simulationClient) login(username, password string) (string, error) {
	start := time.Now()
	defer func() {
		sc.stats["auth"].addDuration(time.Since(start))
	}()

	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/login", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	if result.Data.Token == "" {
		return "", fmt.Errorf("no token in login response")
	}

	return result.Data.Token, nil
}

// do executes an authenticated request and decodes the response envelope
// into out. Non-2xx statuses are returned as errors with the response body.
func (sc *simulationClient) do(method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", uuid.New().String())
	}

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("path", path).Str("response", string(respBody)).Msg("API response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%s %s failed with status %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
		}
	}

	return nil
}

// orderResult is the data portion of a successful order response
type orderResult struct {
	OrderID     string  `json:"order_id"`
	Status      string  `json:"status"`
	Symbol      string  `json:"symbol"`
	Side        string  `json:"side"`
	Quantity    int64   `json:"quantity"`
	Price       float64 `json:"price"`
	TotalAmount float64 `json:"total_amount"`
}

// placeOrder submits a buy or sell order and returns the execution result
func (sc *simulationClient) placeOrder(side, symbol string, quantity int64, price float64) (*orderResult, error) {
	start := time.Now()
	defer func() {
		sc.stats[side].addDuration(time.Since(start))
	}()

	payload := map[string]any{
		"account_number": sc.account,
		"symbol":         symbol,
		"quantity":       quantity,
		"price":          price,
	}

	var result struct {
		Success bool        `json:"success"`
		Data    orderResult `json:"data"`
	}
	if err := sc.do("POST", "/api/v1/orders/"+side, payload, &result); err != nil {
		sc.stats[side].addFailure()
		return nil, err
	}

	if result.Data.OrderID == "" {
		sc.stats[side].addFailure()
		return nil, fmt.Errorf("no order ID in response")
	}

	return &result.Data, nil
}

// deposit credits the account with investment funds
func (sc *simulationClient) deposit(amount float64) error {
	start := time.Now()
	defer func() {
		sc.stats["deposit"].addDuration(time.Since(start))
	}()

	payload := map[string]any{
		"account_number": sc.account,
		"amount":         amount,
		"description":    "Simulation top-up",
	}

	if err := sc.do("POST", "/api/v1/balance/deposit", payload, nil); err != nil {
		sc.stats["deposit"].addFailure()
		return err
	}

	return nil
}

// getBalance fetches the current account balance
func (sc *simulationClient) getBalance() (float64, error) {
	start := time.Now()
	defer func() {
		sc.stats["balance"].addDuration(time.Since(start))
	}()

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			AvailableBalance float64 `json:"available_balance"`
		} `json:"data"`
	}
	if err := sc.do("GET", "/api/v1/balance/"+sc.account, nil, &result); err != nil {
		sc.stats["balance"].addFailure()
		return 0, err
	}

	return result.Data.AvailableBalance, nil
}

// getPortfolioSummary fetches the consolidated account view
func (sc *simulationClient) getPortfolioSummary() (json.RawMessage, error) {
	start := time.Now()
	defer func() {
		sc.stats["summary"].addDuration(time.Since(start))
	}()

	var result struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := sc.do("GET", fmt.Sprintf("/api/v1/portfolio/%s/summary", sc.account), nil, &result); err != nil {
		sc.stats["summary"].addFailure()
		return nil, err
	}

	return result.Data, nil
}

// simStats aggregates outcomes across all workers
type simStats struct {
	mu           sync.Mutex
	TotalOrders  int
	Executed     int
	Rejected     int
	TotalValue   float64
	Symbols      map[string]int
	Sides        map[string]int
}

func (s *simStats) record(order *orderResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalOrders++
	if err != nil {
		s.Rejected++
		return
	}
	s.Executed++
	s.TotalValue += order.TotalAmount
	s.Symbols[order.Symbol]++
	s.Sides[order.Side]++
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func printPerformanceStats(stats map[string]*routeStats) {
	fmt.Println("\n📊 API Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, rs := range stats {
		min, max, mean, median, p95, p99 := rs.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			rs.name,
			rs.totalCalls,
			rs.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// main runs the investment simulation
// It starts a local API server and drives the three demo accounts through
// deposits and random buy/sell orders concurrently
func main() {
	// Start the server in a goroutine
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	stats := map[string]*routeStats{
		"auth":    {name: "Login"},
		"deposit": {name: "Deposit"},
		"buy":     {name: "Buy Order"},
		"sell":    {name: "Sell Order"},
		"balance": {name: "Get Balance"},
		"summary": {name: "Portfolio Summary"},
	}

	// One authenticated client per demo account
	var clients []*simulationClient
	for _, acc := range accounts {
		client, err := newSimulationClient(acc.username, acc.password, acc.account, stats)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize simulation client")
		}
		clients = append(clients, client)
	}

	targetOrders := rand.Intn(maxOrders-minOrders) + minOrders
	log.Info().Int("target_orders", targetOrders).Msg("Starting simulation")

	results := &simStats{
		Symbols: make(map[string]int),
		Sides:   make(map[string]int),
	}
	startTime := time.Now()

	var wg sync.WaitGroup
	for i, client := range clients {
		wg.Add(1)
		go func(workerID int, sc *simulationClient) {
			defer wg.Done()
			runAccount(workerID, targetOrders/len(clients), sc, results)
		}(i, client)
	}
	wg.Wait()

	// Final consolidated views
	for _, sc := range clients {
		balance, err := sc.getBalance()
		if err != nil {
			log.Error().Err(err).Str("account", sc.account).Msg("Failed to fetch final balance")
			continue
		}
		summary, err := sc.getPortfolioSummary()
		if err != nil {
			log.Error().Err(err).Str("account", sc.account).Msg("Failed to fetch portfolio summary")
			continue
		}
		log.Info().
			Str("account", sc.account).
			Float64("available_balance", balance).
			RawJSON("summary", summary).
			Msg("Final account state")
	}

	// Print summary
	duration := time.Since(startTime)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("🚀 INVESTMENT SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Printf(`
📊 Order Statistics
------------------
Total Orders:     %d
Executed:         %d
Rejected:         %d
Total Value:      R$%.2f
Duration:         %v

📈 Symbol Distribution
--------------------
`, results.TotalOrders, results.Executed, results.Rejected,
		results.TotalValue, duration.Round(time.Millisecond))

	// Print symbol distribution with simple ASCII bar chart
	maxSymbolCount := 0
	for _, count := range results.Symbols {
		if count > maxSymbolCount {
			maxSymbolCount = count
		}
	}

	for symbol, count := range results.Symbols {
		barLength := int(float64(count) / float64(maxSymbolCount) * 20)
		bar := strings.Repeat("█", barLength)
		fmt.Printf("%-6s: %s (%d)\n", symbol, bar, count)
	}

	fmt.Println("\n📉 Side Distribution")
	fmt.Println("------------------")
	for side, count := range results.Sides {
		barLength := int(float64(count) / float64(results.TotalOrders) * 20)
		bar := strings.Repeat("█", barLength)
		fmt.Printf("%-4s: %s (%d)\n", side, bar, count)
	}

	fmt.Println("\n" + strings.Repeat("=", 80))

	successRate := float64(results.Executed) / float64(results.TotalOrders) * 100
	log.Info().
		Float64("success_rate", successRate).
		Int("total_orders", results.TotalOrders).
		Int("executed", results.Executed).
		Float64("total_value", results.TotalValue).
		Dur("duration", duration).
		Msg("Simulation completed")

	printPerformanceStats(stats)
}

// runAccount drives one demo account through random deposits and orders.
// Sells are attempted against symbols bought earlier so a share of them
// succeed; rejected orders (insufficient funds or shares) are expected.
func runAccount(workerID, numOrders int, sc *simulationClient, results *simStats) {
	bought := make(map[string]int64)

	for i := 0; i < numOrders; i++ {
		// Occasional top-up keeps the buys flowing
		if rand.Intn(10) == 0 {
			if err := sc.deposit(float64(rand.Intn(5000) + 1000)); err != nil {
				log.Error().Err(err).Int("worker_id", workerID).Msg("Failed to deposit")
			}
		}

		side := trading.SideBuy
		symbol := symbols[rand.Intn(len(symbols))]
		quantity := int64(rand.Intn(50) + 1)

		// Sell something we hold about a third of the time
		if len(bought) > 0 && rand.Intn(3) == 0 {
			side = trading.SideSell
			for s, q := range bought {
				symbol = s
				if q < quantity {
					quantity = q
				}
				break
			}
		}

		price := float64(rand.Intn(90)+10) + rand.Float64()

		order, err := sc.placeOrder(side, symbol, quantity, price)
		results.record(order, err)
		if err != nil {
			log.Warn().
				Int("worker_id", workerID).
				Str("side", side).
				Str("symbol", symbol).
				Msg("Order rejected")
			continue
		}

		if side == trading.SideBuy {
			bought[symbol] += quantity
		} else {
			bought[symbol] -= quantity
			if bought[symbol] <= 0 {
				delete(bought, symbol)
			}
		}

		log.Info().
			Int("worker_id", workerID).
			Str("order_id", order.OrderID).
			Str("symbol", order.Symbol).
			Str("side", order.Side).
			Int64("quantity", order.Quantity).
			Float64("price", order.Price).
			Msg("Order executed")

		// Random sleep between orders
		time.Sleep(time.Duration(rand.Intn(200)) * time.Millisecond)
	}
}

// startServer initializes and starts the investment API server
// Sets up the three store databases, all services and routes
func startServer() error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	usersDB, err := database.NewUsersDatabase(cfg.UsersDB)
	if err != nil {
		return fmt.Errorf("failed to initialize users database: %w", err)
	}
	balancesDB, err := database.NewBalancesDatabase(cfg.BalancesDB)
	if err != nil {
		return fmt.Errorf("failed to initialize balances database: %w", err)
	}
	transactionsDB, err := database.NewTransactionsDatabase(cfg.TransactionsDB)
	if err != nil {
		return fmt.Errorf("failed to initialize transactions database: %w", err)
	}

	// Initialize services
	directoryService, err := directory.NewService(usersDB)
	if err != nil {
		return fmt.Errorf("failed to initialize directory service: %w", err)
	}
	authService := auth.NewService(cfg.JWTSecret, cfg.TokenDuration)
	ledgerService := ledger.NewService(balancesDB)
	holdingsService := holdings.NewService(transactionsDB)
	tradingService := trading.NewService(transactionsDB, ledgerService, holdingsService)

	// Seed demo accounts
	ctx := context.Background()
	if err := directoryService.SeedDefaultUsers(ctx); err != nil {
		return fmt.Errorf("failed to seed directory: %w", err)
	}
	if err := ledgerService.SeedDefaultBalances(ctx); err != nil {
		return fmt.Errorf("failed to seed ledger: %w", err)
	}

	// Initialize router
	router := gin.Default()

	authHandlers := auth.NewGinHandlers(authService, directoryService)
	ledgerHandlers := ledger.NewGinHandlers(ledgerService)
	tradingHandlers := trading.NewGinHandlers(tradingService)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/auth/login", authHandlers.LoginHandler())

		protected := v1.Group("")
		protected.Use(middleware.JWTAuth(authService))
		{
			protected.GET("/balance/:account_number", ledgerHandlers.GetBalanceHandler())
			protected.POST("/balance/deposit", ledgerHandlers.DepositHandler())
			protected.POST("/orders/buy", tradingHandlers.BuyHandler())
			protected.POST("/orders/sell", tradingHandlers.SellHandler())
			protected.GET("/portfolio/:account_number/summary", tradingHandlers.PortfolioSummaryHandler())
		}
	}

	// Start the server
	return router.Run(":8080")
}
