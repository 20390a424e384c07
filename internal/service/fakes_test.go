// fakes_test.go — in-memory заглушки зависимостей сервисного слоя.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/arturkryukov/datavault/internal/apperr"
	"github.com/arturkryukov/datavault/internal/domain/model"
	"github.com/arturkryukov/datavault/internal/repository"
	"github.com/arturkryukov/datavault/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- FileRepository ---

type fakeFileRepo struct {
	mu      sync.Mutex
	records map[string]*model.FileRecord
}

func newFakeFileRepo() *fakeFileRepo {
	return &fakeFileRepo{records: make(map[string]*model.FileRecord)}
}

func (f *fakeFileRepo) CreatePending(_ context.Context, r *model.FileRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *r
	cp.Status = model.FileStatusPending
	cp.CreatedAt = time.Now()
	f.records[r.ID] = &cp
	return nil
}

func (f *fakeFileRepo) SetStorageLocator(_ context.Context, fileID, locator string) error {
	return f.update(fileID, func(r *model.FileRecord) { r.StorageLocator = locator })
}

func (f *fakeFileRepo) SetLedgerAnchor(_ context.Context, fileID, txID string) error {
	return f.update(fileID, func(r *model.FileRecord) { r.LedgerTransactionID = txID })
}

func (f *fakeFileRepo) Finalize(_ context.Context, fileID string) error {
	return f.update(fileID, func(r *model.FileRecord) { r.Status = model.FileStatusActive })
}

func (f *fakeFileRepo) MarkFailed(_ context.Context, fileID string) error {
	return f.update(fileID, func(r *model.FileRecord) { r.Status = model.FileStatusFailed })
}

func (f *fakeFileRepo) GetByID(_ context.Context, fileID string) (*model.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[fileID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeFileRepo) ListByOwner(_ context.Context, ownerID string, _, _ int) ([]*model.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.FileRecord
	for _, r := range f.records {
		if r.OwnerID == ownerID && r.Status == model.FileStatusActive {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeFileRepo) SetCertificate(_ context.Context, fileID, tokenID string, serial int64) error {
	return f.update(fileID, func(r *model.FileRecord) {
		r.CertificateTokenID = &tokenID
		r.CertificateSerial = &serial
	})
}

func (f *fakeFileRepo) ListPendingOlderThan(_ context.Context, threshold time.Time, limit int) ([]*model.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.FileRecord
	for _, r := range f.records {
		if r.Status == model.FileStatusPending && r.CreatedAt.Before(threshold) {
			cp := *r
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeFileRepo) update(fileID string, fn func(*model.FileRecord)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[fileID]
	if !ok {
		return repository.ErrNotFound
	}
	fn(r)
	return nil
}

// --- ProfileRepository ---

type fakeProfileRepo struct {
	mu       sync.Mutex
	byAuthID map[string]*model.Profile
	byID     map[string]*model.Profile
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{
		byAuthID: make(map[string]*model.Profile),
		byID:     make(map[string]*model.Profile),
	}
}

func (f *fakeProfileRepo) GetByID(_ context.Context, id string) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

func (f *fakeProfileRepo) GetOrCreate(_ context.Context, authIdentityID string) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.byAuthID[authIdentityID]; ok {
		return p, nil
	}
	p := &model.Profile{
		ID:             uuid.NewString(),
		AuthIdentityID: authIdentityID,
		Tier:           model.TierStandard,
		CreatedAt:      time.Now(),
	}
	f.byAuthID[authIdentityID] = p
	f.byID[p.ID] = p
	return p, nil
}

func (f *fakeProfileRepo) SetTier(_ context.Context, id, tier string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Tier = tier
	return nil
}

// --- GrantRepository ---

type fakeGrantRepo struct {
	mu     sync.Mutex
	grants map[string]*model.PermissionGrant
}

func newFakeGrantRepo() *fakeGrantRepo {
	return &fakeGrantRepo{grants: make(map[string]*model.PermissionGrant)}
}

func (f *fakeGrantRepo) Create(_ context.Context, g *model.PermissionGrant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *g
	cp.CreatedAt = time.Now()
	f.grants[g.ID] = &cp
	return nil
}

func (f *fakeGrantRepo) Revoke(_ context.Context, grantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.grants[grantID]
	if !ok {
		return repository.ErrNotFound
	}
	g.Status = model.GrantStatusRevoked
	return nil
}

func (f *fakeGrantRepo) FindActive(_ context.Context, fileID, granteeID string) (*model.PermissionGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.grants {
		if g.FileID == fileID && g.GranteeID == granteeID && g.ActiveAt(time.Now()) {
			cp := *g
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeGrantRepo) GetByID(_ context.Context, grantID string) (*model.PermissionGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.grants[grantID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (f *fakeGrantRepo) ListByFile(_ context.Context, fileID string) ([]*model.PermissionGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.PermissionGrant
	for _, g := range f.grants {
		if g.FileID == fileID {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- CertificateRepository ---

type fakeCertRepo struct {
	mu     sync.Mutex
	byFile map[string]*model.Certificate
}

func newFakeCertRepo() *fakeCertRepo {
	return &fakeCertRepo{byFile: make(map[string]*model.Certificate)}
}

func (f *fakeCertRepo) Insert(_ context.Context, c *model.Certificate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byFile[c.FileID]; ok {
		return repository.ErrAlreadyExists
	}
	cp := *c
	cp.CreatedAt = time.Now()
	f.byFile[c.FileID] = &cp
	return nil
}

func (f *fakeCertRepo) GetByFileID(_ context.Context, fileID string) (*model.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byFile[fileID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// --- AccessLogRepository ---

type fakeAccessLog struct {
	mu      sync.Mutex
	entries []*model.AccessLogEntry
}

func newFakeAccessLog() *fakeAccessLog {
	return &fakeAccessLog{}
}

func (f *fakeAccessLog) Insert(_ context.Context, e *model.AccessLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *e
	cp.ID = int64(len(f.entries) + 1)
	cp.CreatedAt = time.Now()
	f.entries = append(f.entries, &cp)
	return nil
}

func (f *fakeAccessLog) ListByFile(_ context.Context, fileID string, limit int) ([]*model.AccessLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.AccessLogEntry
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if f.entries[i].FileID == fileID {
			cp := *f.entries[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

// byFile возвращает записи журнала для файла (для ассертов).
func (f *fakeAccessLog) byFile(fileID string) []*model.AccessLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.AccessLogEntry
	for _, e := range f.entries {
		if e.FileID == fileID {
			out = append(out, e)
		}
	}
	return out
}

// --- BlobStore ---

type fakeBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	// storeErr / fetchErr — принудительные ошибки
	storeErr error
	fetchErr error
	seq      int
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{blobs: make(map[string][]byte)}
}

func (f *fakeBlobStore) Store(_ context.Context, data []byte, _ string) (storage.Locator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storeErr != nil {
		return storage.Locator{}, f.storeErr
	}
	f.seq++
	cid := fmt.Sprintf("bafytest%d", f.seq)
	f.blobs[cid] = append([]byte(nil), data...)
	return storage.CIDLocator(cid), nil
}

func (f *fakeBlobStore) Fetch(_ context.Context, loc storage.Locator) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	data, ok := f.blobs[loc.Ref]
	if !ok {
		return nil, apperr.New(apperr.KindStorage, "блоб не найден")
	}
	return append([]byte(nil), data...), nil
}

// tamper переворачивает бит в сохранённом блобе.
func (f *fakeBlobStore) tamper(t *testing.T, ref string, pos int) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[ref]
	if !ok {
		t.Fatalf("блоб %s не найден для порчи", ref)
	}
	data[pos] ^= 0x01
}

// --- Notary ---

type fakeNotary struct {
	mu         sync.Mutex
	anchors    []string
	anchorErr  error
	mintErr    error
	nextSerial int64
}

func newFakeNotary() *fakeNotary {
	return &fakeNotary{}
}

func (f *fakeNotary) AnchorHash(_ context.Context, _, hash string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.anchorErr != nil {
		return "", f.anchorErr
	}
	f.anchors = append(f.anchors, hash)
	return fmt.Sprintf("anchor-tx-%d", len(f.anchors)), nil
}

func (f *fakeNotary) MintCertificate(_ context.Context, _ string, _ []byte) (int64, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mintErr != nil {
		return 0, "", f.mintErr
	}
	f.nextSerial++
	return f.nextSerial, fmt.Sprintf("mint-tx-%d", f.nextSerial), nil
}

// --- Limiter ---

type fakeLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	limit  int
}

// newFakeLimiter создаёт лимитер с limit запросов (0 — без лимита).
func newFakeLimiter(limit int) *fakeLimiter {
	return &fakeLimiter{counts: make(map[string]int), limit: limit}
}

func (f *fakeLimiter) Allow(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.limit == 0 {
		return nil
	}
	f.counts[key]++
	if f.counts[key] > f.limit {
		return apperr.New(apperr.KindRateLimited, "превышен лимит запросов")
	}
	return nil
}
