package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/arturkryukov/datavault/internal/apperr"
	"github.com/arturkryukov/datavault/internal/domain/model"
)

type evidenceEnv struct {
	svc       *EvidenceService
	certRepo  *fakeCertRepo
	accessLog *fakeAccessLog
	profiles  *fakeProfileRepo
	grants    *fakeGrantRepo
	fileID    string
}

func newEvidenceEnv(t *testing.T) *evidenceEnv {
	t.Helper()

	fileRepo := newFakeFileRepo()
	profiles := newFakeProfileRepo()
	grants := newFakeGrantRepo()
	certRepo := newFakeCertRepo()
	accessLog := newFakeAccessLog()

	ingest := NewIngestService(fileRepo, profiles, newFakeBlobStore(), newFakeNotary(),
		newFakeLimiter(0), testTopicID, 1<<20, testLogger())
	res, err := ingest.Ingest(context.Background(), "sub-owner", &IngestRequest{
		FileName: "doc.txt", FileType: "text/plain", Data: []byte("body"),
	})
	if err != nil {
		t.Fatalf("подготовка: Ingest: %v", err)
	}

	svc := NewEvidenceService(fileRepo, profiles, grants, certRepo, accessLog, 5, testLogger())

	return &evidenceEnv{
		svc: svc, certRepo: certRepo, accessLog: accessLog,
		profiles: profiles, grants: grants, fileID: res.FileID,
	}
}

// Без сертификата и журнала выписка честно сообщает, чего нет.
func TestEvidence_BundleWithoutCertificate(t *testing.T) {
	env := newEvidenceEnv(t)

	bundle, err := env.svc.Bundle(context.Background(), "sub-owner", env.fileID)
	if err != nil {
		t.Fatalf("Bundle: %v", err)
	}

	if bundle.Certificate != nil {
		t.Error("сертификат в выписке, хотя не выпускался")
	}
	if bundle.Checks.HasCertificate || bundle.Checks.HasAccessEvidence {
		t.Errorf("checks: %+v", bundle.Checks)
	}
	if !bundle.Checks.HasLedgerAnchor {
		t.Error("якорь есть в записи, но check не выставлен")
	}
	if bundle.File.ContentHash == "" || bundle.File.LedgerTransactionID == "" {
		t.Error("дескриптор файла неполон")
	}
}

// Полная выписка: сертификат, журнал, все признаки.
func TestEvidence_FullBundle(t *testing.T) {
	env := newEvidenceEnv(t)

	owner, _ := env.profiles.GetOrCreate(context.Background(), "sub-owner")
	_ = env.certRepo.Insert(context.Background(), &model.Certificate{
		ID: uuid.NewString(), FileID: env.fileID, OwnerID: owner.ID,
		TokenID: testCollectionID, SerialNumber: 7,
		LedgerTransactionID: "mint-tx", Metadata: []byte(`{}`),
	})
	for range 8 {
		_ = env.accessLog.Insert(context.Background(), &model.AccessLogEntry{
			FileID: env.fileID, UserID: owner.ID,
			AccessType: model.AccessTypeDownload, Status: model.AccessStatusSuccess,
		})
	}

	bundle, err := env.svc.Bundle(context.Background(), "sub-owner", env.fileID)
	if err != nil {
		t.Fatalf("Bundle: %v", err)
	}

	if bundle.Certificate == nil || bundle.Certificate.SerialNumber != 7 {
		t.Error("сертификат не попал в выписку")
	}
	// Журнал обрезан до лимита
	if len(bundle.AccessLog) != 5 {
		t.Errorf("записей журнала = %d, ожидалось 5 (лимит)", len(bundle.AccessLog))
	}
	if !bundle.Checks.HasCertificate || !bundle.Checks.HasAccessEvidence || !bundle.Checks.HasLedgerAnchor {
		t.Errorf("checks: %+v", bundle.Checks)
	}
}

// Выписка доступна держателю действующего гранта, постороннему — нет.
func TestEvidence_Authorization(t *testing.T) {
	env := newEvidenceEnv(t)

	grantee, _ := env.profiles.GetOrCreate(context.Background(), "sub-grantee")
	owner, _ := env.profiles.GetOrCreate(context.Background(), "sub-owner")
	_ = env.grants.Create(context.Background(), &model.PermissionGrant{
		ID: uuid.NewString(), FileID: env.fileID,
		GranteeID: grantee.ID, GrantedBy: owner.ID,
		Status: model.GrantStatusActive, ExpiresAt: time.Now().Add(time.Hour),
	})

	if _, err := env.svc.Bundle(context.Background(), "sub-grantee", env.fileID); err != nil {
		t.Errorf("выписка по гранту: %v", err)
	}

	_, err := env.svc.Bundle(context.Background(), "sub-stranger", env.fileID)
	if !apperr.IsKind(err, apperr.KindForbidden) {
		t.Errorf("ожидался FORBIDDEN для постороннего, получено: %v", err)
	}
}

// Документ сертификата — owner-only, и только когда сертификат выпущен.
func TestEvidence_OwnerRecord(t *testing.T) {
	env := newEvidenceEnv(t)

	_, _, err := env.svc.OwnerRecord(context.Background(), "sub-owner", env.fileID)
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("без сертификата ожидался NOT_FOUND, получено: %v", err)
	}

	owner, _ := env.profiles.GetOrCreate(context.Background(), "sub-owner")
	_ = env.certRepo.Insert(context.Background(), &model.Certificate{
		ID: uuid.NewString(), FileID: env.fileID, OwnerID: owner.ID,
		TokenID: testCollectionID, SerialNumber: 1,
		LedgerTransactionID: "mint-tx", Metadata: []byte(`{}`),
	})

	record, cert, err := env.svc.OwnerRecord(context.Background(), "sub-owner", env.fileID)
	if err != nil {
		t.Fatalf("OwnerRecord: %v", err)
	}
	if record.ID != env.fileID || cert.SerialNumber != 1 {
		t.Error("некорректные запись или сертификат")
	}

	_, _, err = env.svc.OwnerRecord(context.Background(), "sub-stranger", env.fileID)
	if !apperr.IsKind(err, apperr.KindForbidden) {
		t.Errorf("ожидался FORBIDDEN для постороннего, получено: %v", err)
	}
}
