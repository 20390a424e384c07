package service

import (
	"context"
	"testing"
	"time"

	"github.com/arturkryukov/datavault/internal/apperr"
	"github.com/arturkryukov/datavault/internal/domain/model"
)

type grantEnv struct {
	svc      *GrantService
	profiles *fakeProfileRepo
	grants   *fakeGrantRepo
	fileID   string
}

func newGrantEnv(t *testing.T) *grantEnv {
	t.Helper()

	fileRepo := newFakeFileRepo()
	profiles := newFakeProfileRepo()
	grants := newFakeGrantRepo()

	ingest := NewIngestService(fileRepo, profiles, newFakeBlobStore(), newFakeNotary(),
		newFakeLimiter(0), testTopicID, 1<<20, testLogger())
	res, err := ingest.Ingest(context.Background(), "sub-owner", &IngestRequest{
		FileName: "doc.txt", FileType: "text/plain", Data: []byte("body"),
	})
	if err != nil {
		t.Fatalf("подготовка: Ingest: %v", err)
	}

	svc := NewGrantService(fileRepo, profiles, grants, nil, testTopicID, testLogger())
	return &grantEnv{svc: svc, profiles: profiles, grants: grants, fileID: res.FileID}
}

func TestGrant_LifeCycle(t *testing.T) {
	env := newGrantEnv(t)
	grantee, _ := env.profiles.GetOrCreate(context.Background(), "sub-grantee")

	grant, err := env.svc.Grant(context.Background(), "sub-owner", env.fileID,
		grantee.ID, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}

	// Грант действует
	if _, err := env.grants.FindActive(context.Background(), env.fileID, grantee.ID); err != nil {
		t.Fatalf("выданный грант не найден: %v", err)
	}

	// Отзыв владельцем
	if err := env.svc.Revoke(context.Background(), "sub-owner", env.fileID, grant.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := env.grants.FindActive(context.Background(), env.fileID, grantee.ID); err == nil {
		t.Error("отозванный грант всё ещё действует")
	}

	// Повторный отзыв — no-op
	if err := env.svc.Revoke(context.Background(), "sub-owner", env.fileID, grant.ID); err != nil {
		t.Errorf("повторный Revoke: %v", err)
	}
}

func TestGrant_Validation(t *testing.T) {
	env := newGrantEnv(t)
	owner, _ := env.profiles.GetOrCreate(context.Background(), "sub-owner")
	grantee, _ := env.profiles.GetOrCreate(context.Background(), "sub-grantee")

	// Срок в прошлом
	_, err := env.svc.Grant(context.Background(), "sub-owner", env.fileID,
		grantee.ID, time.Now().Add(-time.Minute))
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("срок в прошлом: ожидался VALIDATION, получено %v", err)
	}

	// Грант самому себе
	_, err = env.svc.Grant(context.Background(), "sub-owner", env.fileID,
		owner.ID, time.Now().Add(time.Hour))
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("грант себе: ожидался VALIDATION, получено %v", err)
	}

	// Несуществующий получатель
	_, err = env.svc.Grant(context.Background(), "sub-owner", env.fileID,
		"00000000-0000-0000-0000-000000000000", time.Now().Add(time.Hour))
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("несуществующий получатель: ожидался NOT_FOUND, получено %v", err)
	}
}

// Грантами управляет только владелец.
func TestGrant_OwnerOnly(t *testing.T) {
	env := newGrantEnv(t)
	grantee, _ := env.profiles.GetOrCreate(context.Background(), "sub-grantee")

	_, err := env.svc.Grant(context.Background(), "sub-stranger", env.fileID,
		grantee.ID, time.Now().Add(time.Hour))
	if !apperr.IsKind(err, apperr.KindForbidden) {
		t.Errorf("ожидался FORBIDDEN, получено %v", err)
	}

	if _, err := env.svc.List(context.Background(), "sub-stranger", env.fileID); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Errorf("List посторонним: ожидался FORBIDDEN, получено %v", err)
	}
}

func TestGrant_List(t *testing.T) {
	env := newGrantEnv(t)
	grantee, _ := env.profiles.GetOrCreate(context.Background(), "sub-grantee")

	if _, err := env.svc.Grant(context.Background(), "sub-owner", env.fileID,
		grantee.ID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	list, err := env.svc.List(context.Background(), "sub-owner", env.fileID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Status != model.GrantStatusActive {
		t.Errorf("список грантов: %+v", list)
	}
}
