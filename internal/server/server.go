package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"ledger-core/internal/config"
	"ledger-core/internal/handler"
	"ledger-core/internal/lock"
	"ledger-core/internal/repository"
	"ledger-core/internal/service"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Server represents the HTTP server
type Server struct {
	router *mux.Router
	server *http.Server
	db     *sql.DB
	redis  *redis.Client
	logger *slog.Logger
	port   string
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	// Initialize database connection
	db, err := sql.Open("postgres", cfg.GetDBConnectionString())
	if err != nil {
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Test database connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("Successfully connected to database")

	if cfg.RunMigrations {
		if err := repository.Migrate(db, logger); err != nil {
			db.Close()
			return nil, err
		}
	}

	locker, redisClient, err := newLocker(cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	store := repository.NewStore(db, logger, repository.WithLockTimeout(cfg.DBLockTimeout))
	ledger := service.New(store, logger, ledgerOptions(cfg, locker)...)

	checks := map[string]HealthCheck{"database": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	return &Server{
		router: NewRouter(ledger, logger, checks),
		db:     db,
		redis:  redisClient,
		logger: logger,
	}, nil
}

func newLocker(cfg *config.Config, logger *slog.Logger) (lock.Locker, *redis.Client, error) {
	if cfg.LockBackend != config.LockBackendRedis {
		return lock.NewLocal(), nil, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("Using redis account locks", "addr", opts.Addr)

	lockOpts := lock.DefaultRedisOptions()
	if cfg.LockExpiry > 0 {
		lockOpts.Expiry = cfg.LockExpiry
	}
	return lock.NewRedis(client, lockOpts, logger), client, nil
}

func ledgerOptions(cfg *config.Config, locker lock.Locker) []service.Option {
	opts := []service.Option{service.WithLocker(locker)}
	if cfg.OperationTimeout > 0 {
		opts = append(opts, service.WithOperationTimeout(cfg.OperationTimeout))
	}
	if cfg.AccountNumberAttempts > 0 {
		opts = append(opts, service.WithAccountNumberAttempts(cfg.AccountNumberAttempts))
	}
	return opts
}

// NewRouter wires the ledger's HTTP routes.
func NewRouter(ledger *service.Ledger, logger *slog.Logger, checks map[string]HealthCheck) *mux.Router {
	accountHandler := handler.NewAccountHandler(ledger.AccountService)
	transactionHandler := handler.NewTransactionHandler(ledger.TransactionService)

	router := mux.NewRouter()
	router.Use(loggingMiddleware(logger))

	// Account routes
	router.HandleFunc("/accounts", accountHandler.CreateAccount).Methods("POST")
	router.HandleFunc("/accounts/{account_number}", accountHandler.GetAccount).Methods("GET")
	router.HandleFunc("/accounts/{account_number}/status", accountHandler.UpdateStatus).Methods("PATCH")
	router.HandleFunc("/customers/{customer_id}/accounts", accountHandler.ListCustomerAccounts).Methods("GET")

	// Transaction routes
	router.HandleFunc("/accounts/{account_number}/deposit", transactionHandler.Deposit).Methods("POST")
	router.HandleFunc("/accounts/{account_number}/withdraw", transactionHandler.Withdraw).Methods("POST")
	router.HandleFunc("/accounts/{account_number}/transactions", transactionHandler.ListAccountTransactions).Methods("GET")
	router.HandleFunc("/transfers", transactionHandler.Transfer).Methods("POST")
	router.HandleFunc("/transactions/status/{status}", transactionHandler.ListByStatus).Methods("GET")
	router.HandleFunc("/transactions/{transaction_id}", transactionHandler.GetTransaction).Methods("GET")

	router.HandleFunc("/health", healthHandler(checks)).Methods("GET")

	return router
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		for name, check := range checks {
			if err := check(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": name + " unavailable"})
				return
			}
		}

		json.NewEncoder(w).Encode(map[string]string{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// loggingMiddleware adds request logging
func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Create response wrapper to capture status code
			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.statusCode,
				"duration", time.Since(start),
				"user_agent", r.UserAgent(),
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server on the specified port
func (s *Server) Start(port string) (string, error) {
	// Create listener first to get actual port
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return "", err
	}

	// Get the actual port being used
	addr := listener.Addr().(*net.TCPAddr)
	s.port = strconv.Itoa(addr.Port)

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting server", "port", s.port)

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server failed to start", "error", err)
		}
	}()

	return s.port, nil
}

// Stop gracefully shuts down the server, then releases the database and
// redis connections.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	if s.redis != nil {
		s.redis.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return err
}

// GetPort returns the port the server is listening on
func (s *Server) GetPort() string {
	return s.port
}

// GetRouter returns the router for testing purposes
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// NewLogger builds the process logger from cfg. Port "0" means the server
// runs inside tests, where output is discarded.
func NewLogger(cfg *config.Config) *slog.Logger {
	if cfg.ServerPort == "0" {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	level, err := cfg.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// StartServer starts the server with the given configuration
func StartServer(cfg *config.Config) (*Server, string, error) {
	logger := NewLogger(cfg)

	server, err := NewServer(cfg, logger)
	if err != nil {
		return nil, "", err
	}

	// Start the server and get the actual port
	port, err := server.Start(cfg.ServerPort)
	if err != nil {
		server.Stop(context.Background())
		return nil, "", err
	}

	return server, port, nil
}
