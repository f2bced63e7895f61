package main

import (
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	"rentledger/internal/audit"
	"rentledger/internal/auth"
	meteringapp "rentledger/internal/metering/application"
	meteringrepo "rentledger/internal/metering/infrastructure/postgres"
	meteringhttp "rentledger/internal/metering/interfaces/http"
	"rentledger/internal/observability/metrics"
	settlementapp "rentledger/internal/settlement/application"
	settlementrepo "rentledger/internal/settlement/infrastructure/postgres"
	settlementpricing "rentledger/internal/settlement/infrastructure/pricing"
	settlementhttp "rentledger/internal/settlement/interfaces/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)
	propertyChecker := auth.NewPropertyChecker(db)
	auditRepo := audit.NewRepository(db)

	meterRepo := meteringrepo.NewMeterRepository(db)
	exchangeService, err := meteringapp.NewExchangeService(meterRepo, meteringapp.SystemClock{})
	if err != nil {
		logger.Fatalf("exchange service error: %v", err)
	}

	settlementPolicy, err := settlementapp.LoadPolicy()
	if err != nil {
		logger.Fatalf("settlement policy error: %v", err)
	}

	stlRepo := settlementrepo.NewSettlementRepository(db)
	readModel := settlementrepo.NewReadModel(db)
	rateProvider := settlementpricing.NewRateProvider(db)

	calculator, err := settlementapp.NewCalculator(
		readModel,
		meterRepo,
		readModel,
		rateProvider,
		readModel,
		settlementPolicy,
		settlementapp.SystemClock{},
	)
	if err != nil {
		logger.Fatalf("calculator error: %v", err)
	}
	finalizer, err := settlementapp.NewFinalizer(stlRepo, settlementapp.SystemClock{})
	if err != nil {
		logger.Fatalf("finalizer error: %v", err)
	}

	settlementHandler, err := settlementhttp.NewHandler(calculator, finalizer, stlRepo, stlRepo, propertyChecker, auditRepo, logger)
	if err != nil {
		logger.Fatalf("settlement handler error: %v", err)
	}
	ledgerHandler, err := settlementhttp.NewLedgerHandler(stlRepo, propertyChecker, logger)
	if err != nil {
		logger.Fatalf("ledger handler error: %v", err)
	}
	meterHandler, err := meteringhttp.NewHandler(exchangeService, auditRepo, logger)
	if err != nil {
		logger.Fatalf("metering handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/settlements", settlementHandler)
	mux.Handle("/api/v1/settlements/", settlementHandler)
	mux.Handle("/api/v1/meters/", meterHandler)
	mux.Handle("/api/v1/ledger", ledgerHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL string
	HTTPAddr    string
	JWTSecret   string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL: getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:    getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:   getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
