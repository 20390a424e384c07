// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// Vault Module мониторит:
//   - PostgreSQL — SQL checker через существующий pgxpool (connection pool mode, critical)
//   - Storage gateway — HTTP checker (critical: без него недоступны приём и выдача)
//   - Ledger gateway — HTTP checker (critical: приём блокируется на якорении)
//   - Identity provider (JWKS) — HTTP checker (critical: без него вся аутентификация)
//
// Redis не мониторится: при его недоступности лимитер fail-open,
// сервис остаётся работоспособным.
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
//   - app_dependency_status — категория статуса
//   - app_dependency_status_detail — детальный статус
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthEndpoints — URL внешних зависимостей для мониторинга.
type DephealthEndpoints struct {
	// PGConnURL — URL подключения к PostgreSQL (для лейблов, не для подключения)
	PGConnURL string
	// StorageURL — базовый URL storage gateway
	StorageURL string
	// LedgerURL — базовый URL ledger gateway
	LedgerURL string
	// JWKSURL — JWKS endpoint identity provider
	JWKSURL string
}

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
//
// Использует connection pool mode для PostgreSQL: проверка выполняется
// через существующий *sql.DB (адаптер pgxpool), что позволяет обнаружить
// исчерпание пула соединений и отражает реальную способность сервиса
// работать с базой данных.
func NewDephealthService(
	serviceID string,
	group string,
	db *sql.DB,
	endpoints DephealthEndpoints,
	checkInterval time.Duration,
	isEntry bool,
	logger *slog.Logger,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, db, endpoints, checkInterval, isEntry, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(
	serviceID string,
	group string,
	db *sql.DB,
	endpoints DephealthEndpoints,
	checkInterval time.Duration,
	isEntry bool,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, db, endpoints, checkInterval, isEntry,
		logger, dephealth.WithRegisterer(registerer))
}

// newDephealthService — внутренний конструктор.
func newDephealthService(
	serviceID string,
	group string,
	db *sql.DB,
	endpoints DephealthEndpoints,
	checkInterval time.Duration,
	isEntry bool,
	logger *slog.Logger,
	extraOpts ...dephealth.Option,
) (*DephealthService, error) {
	depOpts := func(fromURL string, extra ...dephealth.DependencyOption) []dephealth.DependencyOption {
		opts := []dephealth.DependencyOption{
			dephealth.FromURL(fromURL),
			dephealth.CheckInterval(checkInterval),
			dephealth.Critical(true),
		}
		opts = append(opts, extra...)
		if isEntry {
			opts = append(opts, dephealth.WithLabel("isentry", "yes"))
		}
		return opts
	}

	opts := make([]dephealth.Option, 0, 5+len(extraOpts))
	opts = append(opts,
		dephealth.WithLogger(logger),
		// PostgreSQL — connection pool mode через существующий pgxpool.
		dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(db)),
			depOpts(endpoints.PGConnURL)...),
		// Storage gateway — HTTP checker
		dephealth.HTTP("storage-gateway", depOpts(endpoints.StorageURL)...),
		// Ledger gateway — HTTP checker
		dephealth.HTTP("ledger-gateway", depOpts(endpoints.LedgerURL)...),
		// Identity provider — проверяем сам JWKS endpoint
		dephealth.HTTP("identity-provider",
			depOpts(endpoints.JWKSURL, dephealth.WithHTTPHealthPath(""))...),
	)
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(serviceID, group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен (PostgreSQL + storage + ledger + IdP)")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
