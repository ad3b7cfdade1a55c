package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Ledger   LedgerConfig
	Kafka    KafkaConfig
	App      AppConfig
	Posting  PostingConfig
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type ServerConfig struct {
	Port string
}

type LedgerConfig struct {
	BaseURL string
	Timeout time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	Enabled bool
}

type AppConfig struct {
	LogLevel  string
	BatchSize int
}

// PostingConfig holds the knobs of the auto-posting engine. The keyword and
// account tables are data on purpose: they vary per installation and must be
// overridable without a rebuild.
type PostingConfig struct {
	CacheTTL            time.Duration
	MaxCombinationItems int
	DefaultTolerance    decimal.Decimal
	ConsumptionTaxRate  decimal.Decimal
	FeeKeywords         []string
	SuspenseAccounts    []string
	CorporateMarkers    []string
	NoiseWords          []string
}

func Load() (*Config, error) {
	batchSize, err := strconv.Atoi(getEnv("BATCH_SIZE", "1000"))
	if err != nil {
		batchSize = 1000
	}

	cacheTTL, err := time.ParseDuration(getEnv("MASTER_CACHE_TTL", "10m"))
	if err != nil {
		cacheTTL = 10 * time.Minute
	}

	ledgerTimeout, err := time.ParseDuration(getEnv("LEDGER_TIMEOUT", "30s"))
	if err != nil {
		ledgerTimeout = 30 * time.Second
	}

	maxComb, err := strconv.Atoi(getEnv("MAX_COMBINATION_ITEMS", "6"))
	if err != nil || maxComb < 1 {
		maxComb = 6
	}

	tolerance, err := decimal.NewFromString(getEnv("SETTLEMENT_TOLERANCE", "0"))
	if err != nil {
		tolerance = decimal.Zero
	}

	taxRate, err := decimal.NewFromString(getEnv("CONSUMPTION_TAX_RATE", "0.10"))
	if err != nil {
		taxRate = decimal.NewFromFloat(0.10)
	}

	return &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "autopost_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Ledger: LedgerConfig{
			BaseURL: getEnv("LEDGER_BASE_URL", "http://localhost:8090"),
			Timeout: ledgerTimeout,
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_TOPIC", "posting_run_completed"),
			Enabled: getEnv("KAFKA_ENABLED", "false") == "true",
		},
		App: AppConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			BatchSize: batchSize,
		},
		Posting: PostingConfig{
			CacheTTL:            cacheTTL,
			MaxCombinationItems: maxComb,
			DefaultTolerance:    tolerance,
			ConsumptionTaxRate:  taxRate,
			FeeKeywords:         getEnvList("FEE_KEYWORDS", defaultFeeKeywords),
			SuspenseAccounts:    getEnvList("SUSPENSE_ACCOUNTS", defaultSuspenseAccounts),
			CorporateMarkers:    getEnvList("CORPORATE_MARKERS", defaultCorporateMarkers),
			NoiseWords:          getEnvList("NOISE_WORDS", defaultNoiseWords),
		},
	}, nil
}

// Production defaults for the lookup tables. Override via environment when
// a bank feed uses different wording.
var (
	defaultFeeKeywords = []string{"振込手数料", "振替手数料", "手数料"}

	defaultSuspenseAccounts = []string{"1190", "2190"}

	defaultCorporateMarkers = []string{
		"株式会社", "（株）", "(株)", "有限会社", "（有）", "(有)",
		"合同会社", "（同）", "(同)", "カ）", "カ)", "ユ）", "ユ)", "ド）", "ド)",
	}

	defaultNoiseWords = []string{
		"振込", "フリコミ", "振替", "フリカエ", "送金", "デビット", "カード", "ATM",
	}
)

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}

	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
