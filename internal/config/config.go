// Пакет config — загрузка и валидация конфигурации Vault Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Vault Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8040-8049)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	// Таймаут чтения HTTP-сервера (по умолчанию 30s)
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-сервера (по умолчанию 60s)
	HTTPWriteTimeout time.Duration
	// Таймаут простоя HTTP-сервера (по умолчанию 120s)
	HTTPIdleTimeout time.Duration

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// --- Redis (rate limiting) ---

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// --- JWT / identity provider ---

	// JWKSURL — JWKS endpoint identity provider
	JWKSURL string
	// JWTIssuer — ожидаемый issuer (пусто — не проверяется)
	JWTIssuer string
	// JWTLeeway — допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
	// JWKSRefreshInterval — интервал фонового обновления ключей
	JWKSRefreshInterval time.Duration
	// JWKSClientTimeout — таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// IDPCACertPath — CA-сертификат identity provider (опционально)
	IDPCACertPath string

	// --- Content-addressed storage ---

	// StorageURL — базовый URL pinning API
	StorageURL string
	// StorageGatewayURL — базовый URL read-gateway
	StorageGatewayURL string
	// StorageToken — Bearer-токен pinning-сервиса
	StorageToken string
	// StorageTimeout — таймаут запросов к storage
	StorageTimeout time.Duration
	// StorageCACertPath — CA-сертификат storage (опционально)
	StorageCACertPath string

	// --- Legacy S3 (записи до миграции) ---

	// S3Bucket — бакет legacy-блобов (пусто — legacy-чтение отключено)
	S3Bucket string
	// S3Region — регион бакета
	S3Region string

	// --- Ledger gateway ---

	LedgerURL         string
	LedgerOperatorID  string
	LedgerOperatorKey string
	// LedgerTopicID — топик якорения хэшей
	LedgerTopicID string
	// LedgerCollectionID — NFT-коллекция сертификатов
	LedgerCollectionID string
	// LedgerExplorerURL — публичный обозреватель для ссылок в документах (опционально)
	LedgerExplorerURL string
	// LedgerTimeout — таймаут одного HTTP-запроса к gateway
	LedgerTimeout time.Duration
	// LedgerConfirmTimeout — окно ожидания подтверждения транзакции
	LedgerConfirmTimeout time.Duration
	// LedgerPollInterval — период опроса статуса транзакции
	LedgerPollInterval time.Duration

	// --- Конвейер ---

	// MaxFileSize — максимальный размер файла в байтах
	MaxFileSize int64
	// IngestPerHour — лимит приёмов в час на идентичность
	IngestPerHour int
	// RetrievePerHour — лимит скачиваний в час на идентичность
	RetrievePerHour int
	// CacheSize — ёмкость LRU-кэша записей файлов
	CacheSize int
	// CacheTTL — время жизни записи в кэше
	CacheTTL time.Duration
	// EvidenceLogLimit — максимум записей журнала в evidence bundle
	EvidenceLogLimit int
	// ReconcileInterval — период фоновой достройки pending-записей
	ReconcileInterval time.Duration
	// ReconcileMinAge — минимальный возраст pending-записи для достройки
	ReconcileMinAge time.Duration

	// --- Dephealth ---

	// DephealthGroup — группа сервиса в топологии
	DephealthGroup string
	// DephealthCheckInterval — интервал проверки зависимостей
	DephealthCheckInterval time.Duration
	// DephealthIsEntry — сервис является точкой входа топологии
	DephealthIsEntry bool

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown (по умолчанию 5s)
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// DV_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("DV_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("DV_PORT: %w", err)
	}
	if cfg.Port < 8040 || cfg.Port > 8049 {
		return nil, fmt.Errorf("DV_PORT: значение %d вне допустимого диапазона 8040-8049", cfg.Port)
	}

	// DV_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("DV_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("DV_LOG_LEVEL: %w", err)
	}

	// DV_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("DV_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("DV_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("DV_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DV_HTTP_READ_TIMEOUT: %w", err)
	}

	cfg.HTTPWriteTimeout, err = getEnvDuration("DV_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DV_HTTP_WRITE_TIMEOUT: %w", err)
	}

	cfg.HTTPIdleTimeout, err = getEnvDuration("DV_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DV_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	// DV_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("DV_DB_HOST")
	if err != nil {
		return nil, err
	}

	// DV_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("DV_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("DV_DB_PORT: %w", err)
	}

	// DV_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("DV_DB_NAME")
	if err != nil {
		return nil, err
	}

	// DV_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("DV_DB_USER")
	if err != nil {
		return nil, err
	}

	// DV_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("DV_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// DV_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("DV_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("DV_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Redis ---

	// DV_REDIS_ADDR — адрес Redis (по умолчанию localhost:6379)
	cfg.RedisAddr = getEnvDefault("DV_REDIS_ADDR", "localhost:6379")

	// DV_REDIS_PASSWORD — пароль Redis (по умолчанию пусто)
	cfg.RedisPassword = getEnvDefault("DV_REDIS_PASSWORD", "")

	// DV_REDIS_DB — номер базы Redis (по умолчанию 0)
	cfg.RedisDB, err = getEnvInt("DV_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("DV_REDIS_DB: %w", err)
	}

	// --- JWT / identity provider ---

	// DV_JWKS_URL — обязательный
	cfg.JWKSURL, err = getEnvRequired("DV_JWKS_URL")
	if err != nil {
		return nil, err
	}

	// DV_JWT_ISSUER — issuer JWT (по умолчанию не проверяется)
	cfg.JWTIssuer = getEnvDefault("DV_JWT_ISSUER", "")

	// DV_JWT_LEEWAY — leeway проверки времени (по умолчанию 30s)
	cfg.JWTLeeway, err = getEnvDuration("DV_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DV_JWT_LEEWAY: %w", err)
	}

	// DV_JWKS_REFRESH_INTERVAL — интервал обновления ключей (по умолчанию 5m)
	cfg.JWKSRefreshInterval, err = getEnvDuration("DV_JWKS_REFRESH_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DV_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// DV_JWKS_CLIENT_TIMEOUT — таймаут клиента JWKS (по умолчанию 10s)
	cfg.JWKSClientTimeout, err = getEnvDuration("DV_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DV_JWKS_CLIENT_TIMEOUT: %w", err)
	}

	// DV_IDP_CA_CERT_PATH — CA identity provider (опционально)
	cfg.IDPCACertPath = getEnvDefault("DV_IDP_CA_CERT_PATH", "")

	// --- Storage ---

	// DV_STORAGE_URL — обязательный
	cfg.StorageURL, err = getEnvRequired("DV_STORAGE_URL")
	if err != nil {
		return nil, err
	}

	// DV_STORAGE_GATEWAY_URL — обязательный
	cfg.StorageGatewayURL, err = getEnvRequired("DV_STORAGE_GATEWAY_URL")
	if err != nil {
		return nil, err
	}

	// DV_STORAGE_TOKEN — обязательный
	cfg.StorageToken, err = getEnvRequired("DV_STORAGE_TOKEN")
	if err != nil {
		return nil, err
	}

	// DV_STORAGE_TIMEOUT — таймаут storage (по умолчанию 60s, сеть медленная)
	cfg.StorageTimeout, err = getEnvDuration("DV_STORAGE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DV_STORAGE_TIMEOUT: %w", err)
	}

	// DV_STORAGE_CA_CERT_PATH — CA storage (опционально)
	cfg.StorageCACertPath = getEnvDefault("DV_STORAGE_CA_CERT_PATH", "")

	// --- Legacy S3 ---

	// DV_S3_BUCKET — бакет legacy-блобов (пусто — отключено)
	cfg.S3Bucket = getEnvDefault("DV_S3_BUCKET", "")

	// DV_S3_REGION — регион (по умолчанию us-east-1)
	cfg.S3Region = getEnvDefault("DV_S3_REGION", "us-east-1")

	// --- Ledger ---

	// DV_LEDGER_URL — обязательный
	cfg.LedgerURL, err = getEnvRequired("DV_LEDGER_URL")
	if err != nil {
		return nil, err
	}

	// DV_LEDGER_OPERATOR_ID — обязательный
	cfg.LedgerOperatorID, err = getEnvRequired("DV_LEDGER_OPERATOR_ID")
	if err != nil {
		return nil, err
	}

	// DV_LEDGER_OPERATOR_KEY — обязательный
	cfg.LedgerOperatorKey, err = getEnvRequired("DV_LEDGER_OPERATOR_KEY")
	if err != nil {
		return nil, err
	}

	// DV_LEDGER_TOPIC_ID — обязательный
	cfg.LedgerTopicID, err = getEnvRequired("DV_LEDGER_TOPIC_ID")
	if err != nil {
		return nil, err
	}

	// DV_LEDGER_COLLECTION_ID — обязательный
	cfg.LedgerCollectionID, err = getEnvRequired("DV_LEDGER_COLLECTION_ID")
	if err != nil {
		return nil, err
	}

	// DV_LEDGER_EXPLORER_URL — обозреватель (опционально)
	cfg.LedgerExplorerURL = getEnvDefault("DV_LEDGER_EXPLORER_URL", "")

	// DV_LEDGER_TIMEOUT — таймаут одного запроса (по умолчанию 30s)
	cfg.LedgerTimeout, err = getEnvDuration("DV_LEDGER_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DV_LEDGER_TIMEOUT: %w", err)
	}

	// DV_LEDGER_CONFIRM_TIMEOUT — окно подтверждения (по умолчанию 2m)
	cfg.LedgerConfirmTimeout, err = getEnvDuration("DV_LEDGER_CONFIRM_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DV_LEDGER_CONFIRM_TIMEOUT: %w", err)
	}

	// DV_LEDGER_POLL_INTERVAL — период опроса статуса (по умолчанию 2s)
	cfg.LedgerPollInterval, err = getEnvDuration("DV_LEDGER_POLL_INTERVAL", 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DV_LEDGER_POLL_INTERVAL: %w", err)
	}

	// --- Конвейер ---

	// DV_MAX_FILE_SIZE — максимальный размер файла (по умолчанию 50 MiB)
	maxFileSize, err := getEnvInt("DV_MAX_FILE_SIZE", 50<<20)
	if err != nil {
		return nil, fmt.Errorf("DV_MAX_FILE_SIZE: %w", err)
	}
	if maxFileSize < 1 {
		return nil, fmt.Errorf("DV_MAX_FILE_SIZE: значение должно быть > 0")
	}
	cfg.MaxFileSize = int64(maxFileSize)

	// DV_INGEST_PER_HOUR — лимит приёмов (по умолчанию 10)
	cfg.IngestPerHour, err = getEnvInt("DV_INGEST_PER_HOUR", 10)
	if err != nil {
		return nil, fmt.Errorf("DV_INGEST_PER_HOUR: %w", err)
	}

	// DV_RETRIEVE_PER_HOUR — лимит скачиваний (по умолчанию 20)
	cfg.RetrievePerHour, err = getEnvInt("DV_RETRIEVE_PER_HOUR", 20)
	if err != nil {
		return nil, fmt.Errorf("DV_RETRIEVE_PER_HOUR: %w", err)
	}

	// DV_CACHE_SIZE — ёмкость кэша (по умолчанию 512)
	cfg.CacheSize, err = getEnvInt("DV_CACHE_SIZE", 512)
	if err != nil {
		return nil, fmt.Errorf("DV_CACHE_SIZE: %w", err)
	}

	// DV_CACHE_TTL — TTL кэша (по умолчанию 5m)
	cfg.CacheTTL, err = getEnvDuration("DV_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DV_CACHE_TTL: %w", err)
	}

	// DV_EVIDENCE_LOG_LIMIT — записей журнала в выписке (по умолчанию 20)
	cfg.EvidenceLogLimit, err = getEnvInt("DV_EVIDENCE_LOG_LIMIT", 20)
	if err != nil {
		return nil, fmt.Errorf("DV_EVIDENCE_LOG_LIMIT: %w", err)
	}
	if cfg.EvidenceLogLimit < 1 {
		return nil, fmt.Errorf("DV_EVIDENCE_LOG_LIMIT: значение должно быть > 0")
	}

	// DV_RECONCILE_INTERVAL — период достройки (по умолчанию 5m)
	cfg.ReconcileInterval, err = getEnvDuration("DV_RECONCILE_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DV_RECONCILE_INTERVAL: %w", err)
	}

	// DV_RECONCILE_MIN_AGE — минимальный возраст pending (по умолчанию 10m)
	cfg.ReconcileMinAge, err = getEnvDuration("DV_RECONCILE_MIN_AGE", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DV_RECONCILE_MIN_AGE: %w", err)
	}

	// --- Dephealth ---

	// DV_DEPHEALTH_GROUP — группа в топологии (по умолчанию datavault)
	cfg.DephealthGroup = getEnvDefault("DV_DEPHEALTH_GROUP", "datavault")

	// DV_DEPHEALTH_CHECK_INTERVAL — интервал проверки (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("DV_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DV_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// DV_DEPHEALTH_IS_ENTRY — точка входа топологии (по умолчанию true)
	cfg.DephealthIsEntry, err = getEnvBool("DV_DEPHEALTH_IS_ENTRY", true)
	if err != nil {
		return nil, fmt.Errorf("DV_DEPHEALTH_IS_ENTRY: %w", err)
	}

	// --- Graceful shutdown ---

	// DV_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("DV_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DV_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
