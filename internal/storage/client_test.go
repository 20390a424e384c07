package storage

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arturkryukov/datavault/internal/apperr"
)

// newTestClient создаёт storage-клиент, направленный на mock-серверы.
func newTestClient(t *testing.T, pinURL, gatewayURL string, legacy LegacyFetcher) *Client {
	t.Helper()

	c, err := New(pinURL, gatewayURL, "test-token", "", 5*time.Second, legacy, slog.Default())
	if err != nil {
		t.Fatalf("создание storage-клиента: %v", err)
	}
	return c
}

// TestClient_StoreFetch проверяет загрузку и чтение через pinning-gateway.
func TestClient_StoreFetch(t *testing.T) {
	blob := []byte("encrypted-bytes-payload")
	const cid = "bafytestcid123"

	pinSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/pins" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if _, _, err := r.FormFile("file"); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"cid": cid})
	}))
	defer pinSrv.Close()

	gwSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ipfs/"+cid {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(blob)
	}))
	defer gwSrv.Close()

	client := newTestClient(t, pinSrv.URL, gwSrv.URL, nil)

	loc, err := client.Store(context.Background(), blob, "test.enc")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if loc.Scheme != SchemeCID || loc.Ref != cid {
		t.Fatalf("локатор = %+v, ожидался cid://%s", loc, cid)
	}

	got, err := client.Fetch(context.Background(), loc)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(got) != string(blob) {
		t.Errorf("Fetch вернул %q, ожидалось %q", got, blob)
	}
}

// TestClient_StoreGatewayError проверяет классификацию отказа pinning-gateway.
func TestClient_StoreGatewayError(t *testing.T) {
	pinSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer pinSrv.Close()

	client := newTestClient(t, pinSrv.URL, pinSrv.URL, nil)

	_, err := client.Store(context.Background(), []byte("data"), "x.enc")
	if err == nil {
		t.Fatal("ожидалась ошибка при 503 от pinning-gateway")
	}
	if apperr.KindOf(err) != apperr.KindStorage {
		t.Errorf("kind = %q, ожидался %q", apperr.KindOf(err), apperr.KindStorage)
	}
}

// fakeLegacy — тестовый LegacyFetcher.
type fakeLegacy struct {
	data map[string][]byte
}

func (f *fakeLegacy) Fetch(_ context.Context, key string) ([]byte, error) {
	d, ok := f.data[key]
	if !ok {
		return nil, apperr.New(apperr.KindStorage, "блоб не найден в legacy-хранилище")
	}
	return d, nil
}

// TestClient_FetchLegacy проверяет маршрутизацию legacy-локаторов.
func TestClient_FetchLegacy(t *testing.T) {
	legacy := &fakeLegacy{data: map[string][]byte{
		"uploads/old/file.enc": []byte("legacy-bytes"),
	}}
	client := newTestClient(t, "http://unused", "http://unused", legacy)

	loc, err := ParseLocator("uploads/old/file.enc")
	if err != nil {
		t.Fatalf("ParseLocator: %v", err)
	}

	got, err := client.Fetch(context.Background(), loc)
	if err != nil {
		t.Fatalf("Fetch legacy: %v", err)
	}
	if string(got) != "legacy-bytes" {
		t.Errorf("Fetch вернул %q, ожидалось %q", got, "legacy-bytes")
	}
}

// TestClient_FetchLegacyNotConfigured проверяет отказ без legacy-хранилища.
func TestClient_FetchLegacyNotConfigured(t *testing.T) {
	client := newTestClient(t, "http://unused", "http://unused", nil)

	loc := Locator{Scheme: SchemeLegacy, Ref: "some/key"}
	if _, err := client.Fetch(context.Background(), loc); err == nil {
		t.Fatal("ожидалась ошибка без сконфигурированного legacy-хранилища")
	}
}
