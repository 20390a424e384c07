package config

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

// setEnvs устанавливает переменные окружения через t.Setenv.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// minimalEnvs возвращает минимальный набор обязательных переменных.
func minimalEnvs() map[string]string {
	return map[string]string{
		"DV_DB_HOST":              "localhost",
		"DV_DB_NAME":              "datavault",
		"DV_DB_USER":              "datavault",
		"DV_DB_PASSWORD":          "secret",
		"DV_JWKS_URL":             "https://idp.kryukov.lan/realms/vault/protocol/openid-connect/certs",
		"DV_STORAGE_URL":          "https://pin.vault.lan",
		"DV_STORAGE_GATEWAY_URL":  "https://gw.vault.lan",
		"DV_STORAGE_TOKEN":        "pin-token",
		"DV_LEDGER_URL":           "https://ledger.vault.lan",
		"DV_LEDGER_OPERATOR_ID":   "0.0.1001",
		"DV_LEDGER_OPERATOR_KEY":  "operator-key",
		"DV_LEDGER_TOPIC_ID":      "0.0.5005",
		"DV_LEDGER_COLLECTION_ID": "0.0.7007",
	}
}

func TestLoad_MinimalConfig(t *testing.T) {
	setEnvs(t, minimalEnvs())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	// Проверяем значения по умолчанию
	if cfg.Port != 8040 {
		t.Errorf("Port = %d, ожидается 8040", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидается Info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидается json", cfg.LogFormat)
	}
	if cfg.DBPort != 5432 {
		t.Errorf("DBPort = %d, ожидается 5432", cfg.DBPort)
	}
	if cfg.DBSSLMode != "disable" {
		t.Errorf("DBSSLMode = %q, ожидается disable", cfg.DBSSLMode)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q, ожидается localhost:6379", cfg.RedisAddr)
	}
	if cfg.JWTLeeway != 30*time.Second {
		t.Errorf("JWTLeeway = %v, ожидается 30s", cfg.JWTLeeway)
	}
	if cfg.MaxFileSize != 50<<20 {
		t.Errorf("MaxFileSize = %d, ожидается %d", cfg.MaxFileSize, 50<<20)
	}
	if cfg.IngestPerHour != 10 {
		t.Errorf("IngestPerHour = %d, ожидается 10", cfg.IngestPerHour)
	}
	if cfg.RetrievePerHour != 20 {
		t.Errorf("RetrievePerHour = %d, ожидается 20", cfg.RetrievePerHour)
	}
	if cfg.EvidenceLogLimit != 20 {
		t.Errorf("EvidenceLogLimit = %d, ожидается 20", cfg.EvidenceLogLimit)
	}
	if cfg.LedgerConfirmTimeout != 2*time.Minute {
		t.Errorf("LedgerConfirmTimeout = %v, ожидается 2m", cfg.LedgerConfirmTimeout)
	}
	if cfg.S3Bucket != "" {
		t.Errorf("S3Bucket = %q, ожидается пустая строка", cfg.S3Bucket)
	}
	if cfg.DephealthCheckInterval != 15*time.Second {
		t.Errorf("DephealthCheckInterval = %v, ожидается 15s", cfg.DephealthCheckInterval)
	}
	if !cfg.DephealthIsEntry {
		t.Error("DephealthIsEntry = false, ожидается true")
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидается 5s", cfg.ShutdownTimeout)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	envs := minimalEnvs()
	envs["DV_PORT"] = "8045"
	envs["DV_LOG_LEVEL"] = "debug"
	envs["DV_LOG_FORMAT"] = "text"
	envs["DV_DB_PORT"] = "5433"
	envs["DV_DB_SSL_MODE"] = "require"
	envs["DV_MAX_FILE_SIZE"] = "1048576"
	envs["DV_INGEST_PER_HOUR"] = "5"
	envs["DV_RETRIEVE_PER_HOUR"] = "50"
	envs["DV_LEDGER_CONFIRM_TIMEOUT"] = "30s"
	envs["DV_LEDGER_POLL_INTERVAL"] = "500ms"
	envs["DV_S3_BUCKET"] = "legacy-vault"
	envs["DV_STORAGE_CA_CERT_PATH"] = "/certs/ca.pem"
	envs["DV_RECONCILE_INTERVAL"] = "1m"
	envs["DV_SHUTDOWN_TIMEOUT"] = "10s"
	setEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 8045 {
		t.Errorf("Port = %d, ожидается 8045", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, ожидается Debug", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %q, ожидается text", cfg.LogFormat)
	}
	if cfg.DBPort != 5433 {
		t.Errorf("DBPort = %d, ожидается 5433", cfg.DBPort)
	}
	if cfg.DBSSLMode != "require" {
		t.Errorf("DBSSLMode = %q, ожидается require", cfg.DBSSLMode)
	}
	if cfg.MaxFileSize != 1<<20 {
		t.Errorf("MaxFileSize = %d, ожидается %d", cfg.MaxFileSize, 1<<20)
	}
	if cfg.IngestPerHour != 5 {
		t.Errorf("IngestPerHour = %d, ожидается 5", cfg.IngestPerHour)
	}
	if cfg.RetrievePerHour != 50 {
		t.Errorf("RetrievePerHour = %d, ожидается 50", cfg.RetrievePerHour)
	}
	if cfg.LedgerConfirmTimeout != 30*time.Second {
		t.Errorf("LedgerConfirmTimeout = %v, ожидается 30s", cfg.LedgerConfirmTimeout)
	}
	if cfg.LedgerPollInterval != 500*time.Millisecond {
		t.Errorf("LedgerPollInterval = %v, ожидается 500ms", cfg.LedgerPollInterval)
	}
	if cfg.S3Bucket != "legacy-vault" {
		t.Errorf("S3Bucket = %q, ожидается legacy-vault", cfg.S3Bucket)
	}
	if cfg.StorageCACertPath != "/certs/ca.pem" {
		t.Errorf("StorageCACertPath = %q, ожидается /certs/ca.pem", cfg.StorageCACertPath)
	}
	if cfg.ReconcileInterval != time.Minute {
		t.Errorf("ReconcileInterval = %v, ожидается 1m", cfg.ReconcileInterval)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидается 10s", cfg.ShutdownTimeout)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	requiredVars := []string{
		"DV_DB_HOST", "DV_DB_NAME", "DV_DB_USER", "DV_DB_PASSWORD",
		"DV_JWKS_URL", "DV_STORAGE_URL", "DV_STORAGE_GATEWAY_URL",
		"DV_STORAGE_TOKEN", "DV_LEDGER_URL", "DV_LEDGER_OPERATOR_ID",
		"DV_LEDGER_OPERATOR_KEY", "DV_LEDGER_TOPIC_ID", "DV_LEDGER_COLLECTION_ID",
	}

	for _, missing := range requiredVars {
		t.Run(missing, func(t *testing.T) {
			envs := minimalEnvs()
			delete(envs, missing)
			for k := range minimalEnvs() {
				os.Unsetenv(k)
			}
			setEnvs(t, envs)

			_, err := Load()
			if err == nil {
				t.Errorf("Load() не вернул ошибку при отсутствии %s", missing)
			}
		})
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"ниже диапазона", "8039"},
		{"выше диапазона", "8050"},
		{"не число", "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envs := minimalEnvs()
			envs["DV_PORT"] = tt.value
			setEnvs(t, envs)

			_, err := Load()
			if err == nil {
				t.Errorf("Load() не вернул ошибку для DV_PORT=%s", tt.value)
			}
		})
	}
}

func TestLoad_InvalidSSLMode(t *testing.T) {
	envs := minimalEnvs()
	envs["DV_DB_SSL_MODE"] = "prefer"
	setEnvs(t, envs)

	if _, err := Load(); err == nil {
		t.Error("Load() не вернул ошибку для недопустимого DV_DB_SSL_MODE")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	envs := minimalEnvs()
	envs["DV_CACHE_TTL"] = "пять минут"
	setEnvs(t, envs)

	if _, err := Load(); err == nil {
		t.Error("Load() не вернул ошибку для недопустимого DV_CACHE_TTL")
	}
}

func TestDatabaseDSN(t *testing.T) {
	setEnvs(t, minimalEnvs())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	want := "host=localhost port=5432 dbname=datavault user=datavault password=secret sslmode=disable"
	if dsn := cfg.DatabaseDSN(); dsn != want {
		t.Errorf("DatabaseDSN() = %q, ожидается %q", dsn, want)
	}
}
