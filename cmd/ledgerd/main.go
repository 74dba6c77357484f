package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/slhventures/investorledger/internal/accrualjob"
	"github.com/slhventures/investorledger/internal/httpapi"
	"github.com/slhventures/investorledger/internal/oplog"
	"github.com/slhventures/investorledger/internal/store/gormstore"
	"github.com/slhventures/investorledger/pkg/ledger"
)

const (
	flagDatabaseURL     = "database-url"
	flagListenAddr      = "listen-addr"
	flagRedisAddr       = "redis-addr"
	flagSigningKey      = "signing-key"
	flagIssuer          = "issuer"
	flagAllowedOrigins  = "allowed-origins"
	flagAccrualAPR      = "accrual-apr"
	flagAccrualCurrency = "accrual-currency"
	flagAccrualBucket   = "accrual-bucket"
	flagAccrualHour     = "accrual-hour"
	flagAccrualDay      = "day"

	configKeyDatabaseURL     = "database_url"
	configKeyListenAddr      = "listen_addr"
	configKeyRedisAddr       = "redis_addr"
	configKeySigningKey      = "signing_key"
	configKeyIssuer          = "issuer"
	configKeyAllowedOrigins  = "allowed_origins"
	configKeyAccrualAPR      = "accrual_apr"
	configKeyAccrualCurrency = "accrual_currency"
	configKeyAccrualBucket   = "accrual_bucket"
	configKeyAccrualHour     = "accrual_hour"

	defaultDatabaseURL     = "sqlite:///tmp/investorledger.db"
	defaultListenAddr      = ":8080"
	defaultIssuer          = "investorledger"
	defaultAccrualAPR      = "0.18"
	defaultAccrualCurrency = "SLHA"
	defaultAccrualBucket   = "investor"
	defaultAccrualHour     = 0
)

type runtimeConfig struct {
	DatabaseURL     string
	ListenAddr      string
	RedisAddr       string
	SigningKey      string
	Issuer          string
	AllowedOrigins  []string
	AccrualAPR      string
	AccrualCurrency string
	AccrualBucket   string
	AccrualHour     int
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ledgerd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	root := &cobra.Command{
		Use:           "ledgerd",
		Short:         "Investor ledger service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
	}

	flags := root.PersistentFlags()
	flags.String(flagDatabaseURL, defaultDatabaseURL, "database connection string (postgres:// or sqlite path)")
	flags.String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	flags.String(flagRedisAddr, "", "redis address for the accrual run lock (empty disables)")
	flags.String(flagSigningKey, "", "HMAC key for bearer token verification")
	flags.String(flagIssuer, defaultIssuer, "expected token issuer")
	flags.String(flagAllowedOrigins, "", "comma separated CORS origins")
	flags.String(flagAccrualAPR, defaultAccrualAPR, "annual interest rate, e.g. 0.18")
	flags.String(flagAccrualCurrency, defaultAccrualCurrency, "currency the accrual runs over")
	flags.String(flagAccrualBucket, defaultAccrualBucket, "bucket the accrual runs over")
	flags.Int(flagAccrualHour, defaultAccrualHour, "UTC hour after which the daily accrual fires")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the daily accrual scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	accrue := &cobra.Command{
		Use:   "accrue",
		Short: "Run a single accrual pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			day, err := cmd.Flags().GetString(flagAccrualDay)
			if err != nil {
				return err
			}
			return runAccrue(ctx, cfg, day)
		},
	}
	accrue.Flags().String(flagAccrualDay, "", "day to accrue in YYYY-MM-DD, defaults to today UTC")

	root.AddCommand(serve, accrue)
	return root
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		configKeyDatabaseURL:     "DATABASE_URL",
		configKeyListenAddr:      "LISTEN_ADDR",
		configKeyRedisAddr:       "REDIS_ADDR",
		configKeySigningKey:      "AUTH_SIGNING_KEY",
		configKeyIssuer:          "AUTH_ISSUER",
		configKeyAllowedOrigins:  "ALLOWED_ORIGINS",
		configKeyAccrualAPR:      "ACCRUAL_APR",
		configKeyAccrualCurrency: "ACCRUAL_CURRENCY",
		configKeyAccrualBucket:   "ACCRUAL_BUCKET",
		configKeyAccrualHour:     "ACCRUAL_HOUR",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			return err
		}
	}

	flagNames := map[string]string{
		configKeyDatabaseURL:     flagDatabaseURL,
		configKeyListenAddr:      flagListenAddr,
		configKeyRedisAddr:       flagRedisAddr,
		configKeySigningKey:      flagSigningKey,
		configKeyIssuer:          flagIssuer,
		configKeyAllowedOrigins:  flagAllowedOrigins,
		configKeyAccrualAPR:      flagAccrualAPR,
		configKeyAccrualCurrency: flagAccrualCurrency,
		configKeyAccrualBucket:   flagAccrualBucket,
		configKeyAccrualHour:     flagAccrualHour,
	}
	for key, name := range flagNames {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.ListenAddr = viper.GetString(configKeyListenAddr)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	cfg.RedisAddr = viper.GetString(configKeyRedisAddr)
	cfg.SigningKey = viper.GetString(configKeySigningKey)
	cfg.Issuer = viper.GetString(configKeyIssuer)
	if origins := viper.GetString(configKeyAllowedOrigins); origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
			}
		}
	}
	cfg.AccrualAPR = viper.GetString(configKeyAccrualAPR)
	cfg.AccrualCurrency = viper.GetString(configKeyAccrualCurrency)
	cfg.AccrualBucket = viper.GetString(configKeyAccrualBucket)
	cfg.AccrualHour = viper.GetInt(configKeyAccrualHour)

	if cfg.SigningKey == "" {
		return fmt.Errorf("signing key is required")
	}
	return nil
}

func runServe(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	service, store, cleanup, err := buildService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = cleanup() }()

	jobConfig, err := accrualJobConfig(cfg)
	if err != nil {
		return err
	}
	runLock := accrualjob.NoopRunLock()
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = redisClient.Close() }()
		runLock = accrualjob.NewRedisRunLock(redisClient, 10*time.Minute)
	}
	job := accrualjob.New(jobConfig, service, runLock, logger)
	job.Start(ctx)
	defer job.Stop()

	server := httpapi.NewServer(httpapi.Config{
		ListenAddr:     cfg.ListenAddr,
		AllowedOrigins: cfg.AllowedOrigins,
		SigningKey:     cfg.SigningKey,
		Issuer:         cfg.Issuer,
	}, service, logger, store.Ping)
	return server.Run(ctx)
}

func runAccrue(ctx context.Context, cfg *runtimeConfig, dayText string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	service, _, cleanup, err := buildService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = cleanup() }()

	jobConfig, err := accrualJobConfig(cfg)
	if err != nil {
		return err
	}
	day := ledger.NewDay(time.Now().UTC())
	if dayText != "" {
		day, err = ledger.ParseDay(dayText)
		if err != nil {
			return err
		}
	}
	job := accrualjob.New(jobConfig, service, accrualjob.NoopRunLock(), logger)
	return job.RunOnce(ctx, day)
}

func buildService(ctx context.Context, cfg *runtimeConfig, logger *zap.Logger) (*ledger.Service, *gormstore.Store, func() error, error) {
	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("database open: %w", err)
	}
	if err := prepareSchema(gormDB, driver); err != nil {
		_ = cleanup()
		return nil, nil, nil, err
	}

	store := gormstore.New(gormDB)
	clock := func() int64 { return time.Now().UTC().Unix() }
	service, err := ledger.NewService(store, clock, ledger.WithOperationLogger(oplog.New(logger)))
	if err != nil {
		_ = cleanup()
		return nil, nil, nil, fmt.Errorf("ledger service init: %w", err)
	}
	return service, store, cleanup, nil
}

func accrualJobConfig(cfg *runtimeConfig) (accrualjob.Config, error) {
	apr, err := decimal.NewFromString(cfg.AccrualAPR)
	if err != nil {
		return accrualjob.Config{}, fmt.Errorf("parse accrual apr: %w", err)
	}
	currency, err := ledger.NewCurrency(cfg.AccrualCurrency)
	if err != nil {
		return accrualjob.Config{}, err
	}
	bucket, err := ledger.ParseBucket(cfg.AccrualBucket)
	if err != nil {
		return accrualjob.Config{}, err
	}
	return accrualjob.Config{
		APR:        apr,
		Currency:   currency,
		Bucket:     bucket,
		RunHourUTC: cfg.AccrualHour,
	}, nil
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	var db *gorm.DB
	gormConfig := &gorm.Config{}
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), gormConfig)
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, driver, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "investorledger.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

func prepareSchema(db *gorm.DB, driver string) error {
	if driver != "sqlite" {
		return nil
	}
	if err := db.AutoMigrate(gormstore.Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
