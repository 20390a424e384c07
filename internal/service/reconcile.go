// reconcile.go — фоновая доводка застрявших pending-записей.
// Процесс может упасть между любыми шагами saga приёма; reconciler
// периодически находит pending-записи старше порога и либо доводит их
// до active (хэш сохранён в записи — можно заякорить повторно), либо
// закрывает как failed, когда блоб так и не был загружен.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/datavault/internal/domain/model"
	"github.com/arturkryukov/datavault/internal/repository"
)

// Prometheus-метрики reconciler.
var (
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dv_reconcile_runs_total",
		Help: "Количество проходов reconciler.",
	})
	reconciledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dv_reconciled_total",
		Help: "Количество обработанных pending-записей (по исходу).",
	}, []string{"outcome"})
)

// reconcileBatchSize — записей за один проход.
const reconcileBatchSize = 50

// Reconciler — фоновая доводка saga приёма.
type Reconciler struct {
	fileRepo repository.FileRepository
	notary   Notary
	cache    *CacheService
	topicID  string
	interval time.Duration
	minAge   time.Duration
	logger   *slog.Logger
}

// NewReconciler создаёт reconciler.
// interval — период между проходами; minAge — минимальный возраст
// pending-записи, раньше которого она считается ещё живой saga.
func NewReconciler(
	fileRepo repository.FileRepository,
	notary Notary,
	cache *CacheService,
	topicID string,
	interval, minAge time.Duration,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		fileRepo: fileRepo,
		notary:   notary,
		cache:    cache,
		topicID:  topicID,
		interval: interval,
		minAge:   minAge,
		logger:   logger.With(slog.String("component", "reconciler")),
	}
}

// Run запускает периодические проходы до отмены контекста.
// Вызывается в отдельной горутине из main.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("Reconciler запущен",
		slog.Duration("interval", r.interval),
		slog.Duration("min_age", r.minAge),
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Reconciler остановлен")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один проход по застрявшим pending-записям.
func (r *Reconciler) RunOnce(ctx context.Context) {
	reconcileRunsTotal.Inc()

	threshold := time.Now().Add(-r.minAge)
	records, err := r.fileRepo.ListPendingOlderThan(ctx, threshold, reconcileBatchSize)
	if err != nil {
		r.logger.Error("Ошибка выборки pending-записей",
			slog.String("error", err.Error()),
		)
		return
	}

	for _, record := range records {
		r.reconcileOne(ctx, record)
	}
}

// reconcileOne доводит одну pending-запись.
//
// Решение по состоянию записи:
//   - локатор не записан → блоб не загружен, plaintext потерян вместе
//     с упавшим процессом: запись закрывается как failed;
//   - локатор есть, якоря нет → хэш сохранён в записи, якорим повторно
//     и финализируем;
//   - локатор и якорь есть → процесс упал перед финализацией,
//     достаточно перевести в active.
func (r *Reconciler) reconcileOne(ctx context.Context, record *model.FileRecord) {
	logger := r.logger.With(slog.String("file_id", record.ID))

	if record.StorageLocator == "" {
		if err := r.fileRepo.MarkFailed(ctx, record.ID); err != nil {
			logger.Error("Не удалось закрыть pending-запись", slog.String("error", err.Error()))
			return
		}
		reconciledTotal.WithLabelValues("failed").Inc()
		logger.Warn("Pending-запись без блоба закрыта как failed")
		return
	}

	if record.LedgerTransactionID == "" {
		txID, err := r.notary.AnchorHash(ctx, r.topicID, record.ContentHash)
		if err != nil {
			// Ledger всё ещё недоступен — запись дождётся следующего прохода
			logger.Warn("Повторное якорение не удалось",
				slog.String("error", err.Error()),
			)
			reconciledTotal.WithLabelValues("retry").Inc()
			return
		}
		if err := r.fileRepo.SetLedgerAnchor(ctx, record.ID, txID); err != nil {
			logger.Error("Не удалось записать якорь", slog.String("error", err.Error()))
			return
		}
		logger.Info("Хэш заякорен повторно", slog.String("ledger_tx", txID))
	}

	if err := r.fileRepo.Finalize(ctx, record.ID); err != nil {
		logger.Error("Не удалось финализировать запись", slog.String("error", err.Error()))
		return
	}
	r.cache.Delete(record.ID)

	reconciledTotal.WithLabelValues("finalized").Inc()
	logger.Info("Pending-запись доведена до active")
}
