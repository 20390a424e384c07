// Пакет storage — клиент content-addressed storage для зашифрованных блобов.
// Загрузка идёт через pinning-gateway (multipart POST, Bearer-токен),
// чтение — через HTTP-gateway по CID либо, для legacy-записей, из S3.
// Сеть хранения считается медленной и ненадёжной: на каждый вызов
// действует таймаут клиента, политика ретраев остаётся за вызывающим.
package storage

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/arturkryukov/datavault/internal/apperr"
)

// LegacyFetcher — чтение блоба по legacy-пути (записи до миграции).
// Реализация — S3Store.
type LegacyFetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// Client — HTTP-клиент pinning-gateway.
type Client struct {
	httpClient *http.Client
	pinURL     string
	gatewayURL string
	token      string
	legacy     LegacyFetcher
	logger     *slog.Logger
}

// New создаёт storage-клиент.
// pinURL — базовый URL pinning API (например, https://pin.vault.lan).
// gatewayURL — базовый URL read-gateway (например, https://gw.vault.lan).
// token — Bearer-токен pinning-сервиса.
// caCertPath — путь к CA-сертификату для TLS (пустая строка — стандартный пул).
// legacy — fetcher для legacy-локаторов (может быть nil, если миграция завершена).
func New(
	pinURL, gatewayURL, token, caCertPath string,
	timeout time.Duration,
	legacy LegacyFetcher,
	logger *slog.Logger,
) (*Client, error) {
	httpClient := &http.Client{Timeout: timeout}

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата storage: %w", err)
		}
		httpClient.Transport = &http.Transport{TLSClientConfig: tlsConfig}
		logger.Info("CA-сертификат storage добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	return &Client{
		httpClient: httpClient,
		pinURL:     strings.TrimRight(pinURL, "/"),
		gatewayURL: strings.TrimRight(gatewayURL, "/"),
		token:      token,
		legacy:     legacy,
		logger:     logger.With(slog.String("component", "storage_client")),
	}, nil
}

// pinResponse — ответ pinning API.
type pinResponse struct {
	CID string `json:"cid"`
}

// Store загружает непрозрачные байты в pinning-сеть и возвращает локатор.
// Формат запроса: POST {pinURL}/api/v1/pins, multipart-поле file.
func (c *Client) Store(ctx context.Context, data []byte, name string) (Locator, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return Locator{}, fmt.Errorf("формирование multipart: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return Locator{}, fmt.Errorf("запись multipart: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Locator{}, fmt.Errorf("закрытие multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pinURL+"/api/v1/pins", &body)
	if err != nil {
		return Locator{}, fmt.Errorf("создание запроса Store: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Locator{}, apperr.Wrap(apperr.KindStorage, "хранилище недоступно", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Locator{}, apperr.Wrap(apperr.KindStorage, "хранилище отклонило загрузку",
			fmt.Errorf("pinning-gateway вернул статус %d", resp.StatusCode))
	}

	var pr pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return Locator{}, apperr.Wrap(apperr.KindStorage, "некорректный ответ хранилища", err)
	}
	if pr.CID == "" {
		return Locator{}, apperr.Wrap(apperr.KindStorage, "некорректный ответ хранилища",
			fmt.Errorf("pinning-gateway вернул пустой cid"))
	}

	c.logger.Debug("Блоб закреплён в pinning-сети",
		slog.String("cid", pr.CID),
		slog.Int("size", len(data)),
	)

	return CIDLocator(pr.CID), nil
}

// Fetch читает блоб по локатору любой формы: канонический CID — через
// gateway, legacy-путь — из legacy-хранилища.
func (c *Client) Fetch(ctx context.Context, loc Locator) ([]byte, error) {
	switch loc.Scheme {
	case SchemeCID:
		return c.fetchCID(ctx, loc.Ref)
	case SchemeLegacy:
		if c.legacy == nil {
			return nil, apperr.New(apperr.KindStorage, "legacy-хранилище не сконфигурировано")
		}
		return c.legacy.Fetch(ctx, loc.Ref)
	default:
		return nil, apperr.New(apperr.KindStorage, "неизвестная схема локатора")
	}
}

// fetchCID читает блоб через read-gateway: GET {gatewayURL}/ipfs/{cid}.
func (c *Client) fetchCID(ctx context.Context, cid string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.gatewayURL+"/ipfs/"+cid, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса Fetch: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "хранилище недоступно", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperr.Wrap(apperr.KindStorage, "блоб не найден в хранилище",
			fmt.Errorf("gateway вернул 404 для cid %s", cid))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Wrap(apperr.KindStorage, "хранилище недоступно",
			fmt.Errorf("gateway вернул статус %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "ошибка чтения блоба", err)
	}
	return data, nil
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA-сертификатом.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &tls.Config{RootCAs: caCertPool}, nil
}
