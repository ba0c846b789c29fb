package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"ledger-core/internal/config"
	"ledger-core/internal/server"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

type IntegrationTestSuite struct {
	suite.Suite
	postgresContainer *tcpostgres.PostgresContainer
	serverInstance    *server.Server
	baseURL           string
	client            *http.Client

	checking string
	savings  string
	euro     string
}

func (suite *IntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	postgresContainer, err := tcpostgres.Run(
		ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("ledger"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		suite.T().Fatalf("Failed to start postgres container: %s", err)
	}
	suite.postgresContainer = postgresContainer

	host, err := postgresContainer.Host(ctx)
	if err != nil {
		suite.T().Fatalf("Failed to get container host: %s", err)
	}
	port, err := postgresContainer.MappedPort(ctx, "5432")
	if err != nil {
		suite.T().Fatalf("Failed to get mapped port: %s", err)
	}

	// Schema is applied by the server itself through RUN_MIGRATIONS.
	cfg := &config.Config{
		DBHost:           host,
		DBPort:           port.Port(),
		DBUser:           "postgres",
		DBPassword:       "password",
		DBName:           "ledger",
		ServerPort:       "0", // Let OS choose a free port
		OperationTimeout: 5 * time.Second,
		DBLockTimeout:    3 * time.Second,
		LockBackend:      config.LockBackendLocal,
		RunMigrations:    true,
	}

	serverInstance, serverPort, err := server.StartServer(cfg)
	if err != nil {
		suite.T().Fatalf("Failed to start application server: %s", err)
	}
	suite.serverInstance = serverInstance
	suite.baseURL = "http://localhost:" + serverPort
	suite.client = &http.Client{Timeout: 30 * time.Second}

	if err := suite.waitForServerReady(); err != nil {
		suite.T().Fatalf("%s", err)
	}
}

func (suite *IntegrationTestSuite) waitForServerReady() error {
	timeout := 30 * time.Second
	start := time.Now()

	for time.Since(start) < timeout {
		resp, err := http.Get(suite.baseURL + "/health")
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return nil
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server not ready after %v", timeout)
}

func (suite *IntegrationTestSuite) TearDownSuite() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if suite.serverInstance != nil {
		suite.serverInstance.Stop(ctx)
	}
	if suite.postgresContainer != nil {
		suite.postgresContainer.Terminate(ctx)
	}
}

// call sends body as JSON and returns the status code and raw response body.
func (suite *IntegrationTestSuite) call(method, path string, body interface{}) (int, string) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		suite.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, suite.baseURL+path, reader)
	suite.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := suite.client.Do(req)
	suite.Require().NoError(err)
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(respBody)
}

// Helper to parse response and log errors
func (suite *IntegrationTestSuite) parseResponse(body string) map[string]interface{} {
	var response map[string]interface{}
	if err := json.Unmarshal([]byte(body), &response); err != nil {
		suite.T().Fatalf("Failed to parse response: %s", body)
	}
	return response
}

func (suite *IntegrationTestSuite) data(body string) map[string]interface{} {
	data, ok := suite.parseResponse(body)["data"].(map[string]interface{})
	suite.Require().True(ok, "Response should have 'data' object: %s", body)
	return data
}

func (suite *IntegrationTestSuite) errorCode(body string) string {
	errorInfo, ok := suite.parseResponse(body)["error"].(map[string]interface{})
	suite.Require().True(ok, "Response should have 'error' field: %s", body)
	return errorInfo["code"].(string)
}

// Helper to compare decimal values properly
func (suite *IntegrationTestSuite) assertDecimalEqual(expected, actual string) {
	expectedDec, err := decimal.NewFromString(expected)
	if err != nil {
		suite.T().Fatalf("Invalid expected decimal: %s", expected)
	}
	actualDec, err := decimal.NewFromString(actual)
	if err != nil {
		suite.T().Fatalf("Invalid actual decimal: %s", actual)
	}

	assert.True(suite.T(), expectedDec.Equal(actualDec),
		"Decimal values not equal: expected %s, got %s", expected, actual)
}

func (suite *IntegrationTestSuite) assertBalance(accountNumber, expected string) {
	status, body := suite.call(http.MethodGet, "/accounts/"+accountNumber, nil)
	suite.Require().Equal(http.StatusOK, status, body)
	suite.assertDecimalEqual(expected, suite.data(body)["balance"].(string))
}

func (suite *IntegrationTestSuite) createAccount(accountType, currency, initialBalance string) string {
	status, body := suite.call(http.MethodPost, "/accounts", map[string]string{
		"customer_id":     "cust-integration",
		"account_type":    accountType,
		"currency":        currency,
		"initial_balance": initialBalance,
	})
	suite.T().Logf("Create Account Response: %s", body)
	suite.Require().Equal(http.StatusCreated, status)
	return suite.data(body)["account_number"].(string)
}

func (suite *IntegrationTestSuite) transfer(from, to, amount, idempotencyKey string) (int, string) {
	reqBody := map[string]string{
		"from_account_number": from,
		"to_account_number":   to,
		"amount":              amount,
	}
	if idempotencyKey != "" {
		reqBody["idempotency_key"] = idempotencyKey
	}
	return suite.call(http.MethodPost, "/transfers", reqBody)
}

// ------------------------------------------------------------------
// Steps below are helpers (non-test methods). They will be executed
// in the order invoked by TestFlow. This allows deterministic ordering
// without relying on test function name prefixes.
// ------------------------------------------------------------------

func (suite *IntegrationTestSuite) stepHealthCheck() {
	status, body := suite.call(http.MethodGet, "/health", nil)
	assert.Equal(suite.T(), http.StatusOK, status)
	assert.Equal(suite.T(), "healthy", suite.parseResponse(body)["status"])
}

func (suite *IntegrationTestSuite) stepCreateAccounts() {
	suite.checking = suite.createAccount("CHECKING", "USD", "1000.50")
	suite.savings = suite.createAccount("SAVINGS", "USD", "500.25")
	suite.euro = suite.createAccount("CREDIT", "EUR", "")

	assert.Regexp(suite.T(), `^1\d{7}$`, suite.checking)
	assert.Regexp(suite.T(), `^2\d{7}$`, suite.savings)
	assert.Regexp(suite.T(), `^3\d{7}$`, suite.euro)

	suite.assertBalance(suite.checking, "1000.50")

	status, body := suite.call(http.MethodGet, "/accounts/"+suite.checking+"/transactions", nil)
	suite.Require().Equal(http.StatusOK, status)
	var history struct {
		Data []map[string]interface{} `json:"data"`
	}
	suite.Require().NoError(json.Unmarshal([]byte(body), &history))
	suite.Require().Len(history.Data, 1)
	assert.Equal(suite.T(), "Initial deposit", history.Data[0]["description"])
}

func (suite *IntegrationTestSuite) stepDepositAndWithdraw() {
	status, body := suite.call(http.MethodPost, "/accounts/"+suite.checking+"/deposit",
		map[string]string{"amount": "0.10"})
	suite.Require().Equal(http.StatusCreated, status, body)

	status, body = suite.call(http.MethodPost, "/accounts/"+suite.checking+"/withdraw",
		map[string]string{"amount": "0.10"})
	suite.Require().Equal(http.StatusCreated, status, body)

	suite.assertBalance(suite.checking, "1000.50")
}

func (suite *IntegrationTestSuite) stepSuccessfulTransfer() {
	status, body := suite.transfer(suite.checking, suite.savings, "200.50", "")
	suite.T().Logf("Transfer Response: %s", body)
	suite.Require().Equal(http.StatusCreated, status)

	transferData := suite.data(body)
	assert.Equal(suite.T(), "COMPLETED", transferData["status"])
	assert.Equal(suite.T(), "TRANSFER", transferData["type"])
	assert.NotEmpty(suite.T(), transferData["transaction_id"])

	// 1000.50 - 200.50 = 800.00, 500.25 + 200.50 = 700.75
	suite.assertBalance(suite.checking, "800.00")
	suite.assertBalance(suite.savings, "700.75")

	status, body = suite.call(http.MethodGet, "/transactions/"+transferData["transaction_id"].(string), nil)
	assert.Equal(suite.T(), http.StatusOK, status)
}

func (suite *IntegrationTestSuite) stepIdempotentTransfer() {
	idempotencyKey := uuid.New().String()

	status, body := suite.transfer(suite.checking, suite.savings, "100.00", idempotencyKey)
	suite.Require().Equal(http.StatusCreated, status, body)
	firstTransactionID := suite.data(body)["transaction_id"]

	status, body = suite.transfer(suite.checking, suite.savings, "100.00", idempotencyKey)
	suite.Require().Equal(http.StatusCreated, status, body)
	assert.Equal(suite.T(), firstTransactionID, suite.data(body)["transaction_id"])

	// 800.00 - 100.00 = 700.00 (only once)
	suite.assertBalance(suite.checking, "700.00")
}

func (suite *IntegrationTestSuite) stepConcurrentWithdrawals() {
	account := suite.createAccount("CHECKING", "USD", "100")

	var (
		wg       sync.WaitGroup
		statuses = make([]int, 2)
	)
	for i := range statuses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			statuses[i], _ = suite.call(http.MethodPost, "/accounts/"+account+"/withdraw",
				map[string]string{"amount": "60"})
		}(i)
	}
	wg.Wait()

	assert.ElementsMatch(suite.T(), []int{http.StatusCreated, http.StatusUnprocessableEntity}, statuses)
	suite.assertBalance(account, "40")
}

func (suite *IntegrationTestSuite) stepInsufficientBalance() {
	status, body := suite.transfer(suite.checking, suite.savings, "10000.00", "")
	assert.Equal(suite.T(), http.StatusUnprocessableEntity, status)
	assert.Equal(suite.T(), "insufficient_funds", suite.errorCode(body))

	suite.assertBalance(suite.checking, "700.00")
}

func (suite *IntegrationTestSuite) stepCurrencyMismatch() {
	status, body := suite.transfer(suite.checking, suite.euro, "1.00", "")
	assert.Equal(suite.T(), http.StatusUnprocessableEntity, status)
	assert.Equal(suite.T(), "currency_mismatch", suite.errorCode(body))

	suite.assertBalance(suite.checking, "700.00")
	suite.assertBalance(suite.euro, "0")
}

func (suite *IntegrationTestSuite) stepSameAccountTransfer() {
	status, body := suite.transfer(suite.checking, suite.checking, "100.00", "")
	assert.Equal(suite.T(), http.StatusBadRequest, status)
	assert.Equal(suite.T(), "same_account_transfer", suite.errorCode(body))
}

func (suite *IntegrationTestSuite) stepInvalidAmount() {
	for _, amount := range []string{"-100.00", "0.00", "1.001"} {
		status, body := suite.transfer(suite.checking, suite.savings, amount, "")
		assert.Equal(suite.T(), http.StatusBadRequest, status, amount)
		assert.Equal(suite.T(), "invalid_amount", suite.errorCode(body), amount)
	}
}

func (suite *IntegrationTestSuite) stepAccountNotFound() {
	status, body := suite.call(http.MethodGet, "/accounts/99999999", nil)
	assert.Equal(suite.T(), http.StatusNotFound, status)
	assert.Equal(suite.T(), "account_not_found", suite.errorCode(body))
}

func (suite *IntegrationTestSuite) stepCloseAccount() {
	status, body := suite.call(http.MethodPatch, "/accounts/"+suite.euro+"/status",
		map[string]string{"status": "CLOSED"})
	suite.Require().Equal(http.StatusOK, status, body)

	status, body = suite.call(http.MethodPost, "/accounts/"+suite.euro+"/deposit",
		map[string]string{"amount": "5"})
	assert.Equal(suite.T(), http.StatusUnprocessableEntity, status)
	assert.Equal(suite.T(), "inactive_account", suite.errorCode(body))
}

func (suite *IntegrationTestSuite) TestFlow() {
	if testing.Short() {
		suite.T().Skip("Skipping integration test in short mode")
	}

	suite.stepHealthCheck()
	suite.stepCreateAccounts()
	suite.stepDepositAndWithdraw()
	suite.stepSuccessfulTransfer()
	suite.stepIdempotentTransfer()
	suite.stepConcurrentWithdrawals()
	suite.stepInsufficientBalance()
	suite.stepCurrencyMismatch()
	suite.stepSameAccountTransfer()
	suite.stepInvalidAmount()
	suite.stepAccountNotFound()
	suite.stepCloseAccount()
}

func TestIntegrationTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	suite.Run(t, new(IntegrationTestSuite))
}
