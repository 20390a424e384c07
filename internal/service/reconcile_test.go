package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/arturkryukov/datavault/internal/apperr"
	"github.com/arturkryukov/datavault/internal/domain/model"
)

func newTestReconciler(fileRepo *fakeFileRepo, notary *fakeNotary) *Reconciler {
	return NewReconciler(fileRepo, notary, NewCacheService(16, time.Minute),
		testTopicID, time.Minute, time.Second, testLogger())
}

// stalePending создаёт pending-запись старше порога reconciler.
func stalePending(t *testing.T, repo *fakeFileRepo, locator, anchor string) string {
	t.Helper()
	record := &model.FileRecord{
		ID:              uuid.NewString(),
		OwnerID:         uuid.NewString(),
		FileName:        "stuck.txt",
		FileType:        "text/plain",
		Size:            4,
		EncryptionKey:   make([]byte, 32),
		EncryptionNonce: make([]byte, 12),
		ContentHash:     "abad1dea",
	}
	if err := repo.CreatePending(context.Background(), record); err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	_ = repo.update(record.ID, func(r *model.FileRecord) {
		r.CreatedAt = time.Now().Add(-time.Hour)
		r.StorageLocator = locator
		r.LedgerTransactionID = anchor
	})
	return record.ID
}

// Запись без блоба закрывается как failed: plaintext потерян.
func TestReconcile_NoLocatorFails(t *testing.T) {
	fileRepo := newFakeFileRepo()
	notary := newFakeNotary()
	fileID := stalePending(t, fileRepo, "", "")

	newTestReconciler(fileRepo, notary).RunOnce(context.Background())

	record, _ := fileRepo.GetByID(context.Background(), fileID)
	if record.Status != model.FileStatusFailed {
		t.Errorf("статус = %q, ожидался failed", record.Status)
	}
	if len(notary.anchors) != 0 {
		t.Error("выполнено якорение для записи без блоба")
	}
}

// Блоб загружен, якоря нет: хэш из записи якорится повторно,
// запись финализируется.
func TestReconcile_ReanchorsAndFinalizes(t *testing.T) {
	fileRepo := newFakeFileRepo()
	notary := newFakeNotary()
	fileID := stalePending(t, fileRepo, "cid://bafystuck", "")

	newTestReconciler(fileRepo, notary).RunOnce(context.Background())

	record, _ := fileRepo.GetByID(context.Background(), fileID)
	if record.Status != model.FileStatusActive {
		t.Errorf("статус = %q, ожидался active", record.Status)
	}
	if record.LedgerTransactionID == "" {
		t.Error("якорь не записан")
	}
	if len(notary.anchors) != 1 || notary.anchors[0] != "abad1dea" {
		t.Errorf("заякорено %v, ожидался сохранённый хэш", notary.anchors)
	}
}

// Блоб и якорь есть — процесс упал перед финализацией.
func TestReconcile_FinalizeOnly(t *testing.T) {
	fileRepo := newFakeFileRepo()
	notary := newFakeNotary()
	fileID := stalePending(t, fileRepo, "cid://bafystuck", "old-anchor-tx")

	newTestReconciler(fileRepo, notary).RunOnce(context.Background())

	record, _ := fileRepo.GetByID(context.Background(), fileID)
	if record.Status != model.FileStatusActive {
		t.Errorf("статус = %q, ожидался active", record.Status)
	}
	if record.LedgerTransactionID != "old-anchor-tx" {
		t.Error("существующий якорь перезаписан")
	}
	if len(notary.anchors) != 0 {
		t.Error("повторное якорение при существующем якоре")
	}
}

// Ledger всё ещё недоступен — запись остаётся pending до следующего прохода.
func TestReconcile_LedgerStillDownRetries(t *testing.T) {
	fileRepo := newFakeFileRepo()
	notary := newFakeNotary()
	notary.anchorErr = apperr.New(apperr.KindLedger, "ledger недоступен")
	fileID := stalePending(t, fileRepo, "cid://bafystuck", "")

	newTestReconciler(fileRepo, notary).RunOnce(context.Background())

	record, _ := fileRepo.GetByID(context.Background(), fileID)
	if record.Status != model.FileStatusPending {
		t.Errorf("статус = %q, ожидался pending", record.Status)
	}

	// Ledger ожил — следующий проход доводит запись
	notary.anchorErr = nil
	newTestReconciler(fileRepo, notary).RunOnce(context.Background())

	record, _ = fileRepo.GetByID(context.Background(), fileID)
	if record.Status != model.FileStatusActive {
		t.Errorf("после восстановления ledger статус = %q, ожидался active", record.Status)
	}
}

// Свежие pending-записи (живые saga) не трогаются.
func TestReconcile_FreshPendingUntouched(t *testing.T) {
	fileRepo := newFakeFileRepo()
	notary := newFakeNotary()

	record := &model.FileRecord{
		ID:              uuid.NewString(),
		OwnerID:         uuid.NewString(),
		FileName:        "inflight.txt",
		FileType:        "text/plain",
		EncryptionKey:   make([]byte, 32),
		EncryptionNonce: make([]byte, 12),
		ContentHash:     "deadbeef",
	}
	_ = fileRepo.CreatePending(context.Background(), record)

	newTestReconciler(fileRepo, notary).RunOnce(context.Background())

	got, _ := fileRepo.GetByID(context.Background(), record.ID)
	if got.Status != model.FileStatusPending {
		t.Errorf("живая saga затронута: статус = %q", got.Status)
	}
}
