// Пакет ledger — клиент consensus-gateway для нотаризации.
// Спецификация не фиксирует вендора ledger; клиент работает с REST-шлюзом,
// удовлетворяющим контракту: отправка сообщения в упорядоченный топик,
// минт NFT-сертификатов, перевод, ACL-зеркало и провижининг аккаунтов.
// Все операции блокируются до финализации в сети: после submit клиент
// опрашивает транзакцию до статуса SUCCESS в пределах окна подтверждения.
// Submitted-but-unconfirmed — отдельный отказ (ErrUnconfirmed), не
// эквивалентный «не отправлено».
package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/arturkryukov/datavault/internal/apperr"
)

// Статусы транзакции на шлюзе.
const (
	txStatusSuccess = "SUCCESS"
	txStatusPending = "PENDING"
	txStatusFailed  = "FAILED"
)

// ErrUnconfirmed — транзакция отправлена в сеть, но подтверждение не
// получено в пределах окна. Внешний эффект мог состояться.
var ErrUnconfirmed = errors.New("транзакция отправлена, но не подтверждена")

// Config — параметры клиента.
type Config struct {
	// BaseURL — базовый URL consensus-gateway
	BaseURL string
	// OperatorID — идентификатор аккаунта-оператора
	OperatorID string
	// OperatorKey — ключ оператора (подпись запросов на стороне шлюза)
	OperatorKey string
	// RequestTimeout — таймаут одного HTTP-запроса
	RequestTimeout time.Duration
	// ConfirmTimeout — окно ожидания финализации
	ConfirmTimeout time.Duration
	// PollInterval — период опроса статуса транзакции
	PollInterval time.Duration
}

// Client — HTTP-клиент consensus-gateway.
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     *slog.Logger
}

// New создаёт ledger-клиент.
func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		cfg: Config{
			BaseURL:        strings.TrimRight(cfg.BaseURL, "/"),
			OperatorID:     cfg.OperatorID,
			OperatorKey:    cfg.OperatorKey,
			RequestTimeout: cfg.RequestTimeout,
			ConfirmTimeout: cfg.ConfirmTimeout,
			PollInterval:   cfg.PollInterval,
		},
		logger: logger.With(slog.String("component", "ledger_client")),
	}
}

// txRecord — запись транзакции на шлюзе.
type txRecord struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	SerialNumber  int64  `json:"serial_number,omitempty"`
}

// AnchorHash отправляет хэш в упорядоченный топик и блокируется до
// финализации. Возвращает идентификатор транзакции, проверяемый
// третьей стороной по публичному ledger.
func (c *Client) AnchorHash(ctx context.Context, topicID, hash string) (string, error) {
	body := map[string]string{
		"message": base64.StdEncoding.EncodeToString([]byte(hash)),
	}
	tx, err := c.submitAndConfirm(ctx, "/api/v1/topics/"+topicID+"/messages", body)
	if err != nil {
		return "", err
	}

	c.logger.Info("Хэш заякорен в ledger",
		slog.String("topic_id", topicID),
		slog.String("transaction_id", tx.TransactionID),
	)
	return tx.TransactionID, nil
}

// MintCertificate минтит следующий серийный номер в существующей
// NFT-коллекции. Требует mint authority оператора над коллекцией.
// Возвращает серийный номер и транзакцию минта.
func (c *Client) MintCertificate(ctx context.Context, collectionID string, metadata []byte) (int64, string, error) {
	body := map[string]string{
		"metadata": base64.StdEncoding.EncodeToString(metadata),
	}
	tx, err := c.submitAndConfirm(ctx, "/api/v1/collections/"+collectionID+"/mint", body)
	if err != nil {
		return 0, "", err
	}
	if tx.SerialNumber == 0 {
		return 0, "", apperr.Wrap(apperr.KindLedger, "ledger вернул некорректный результат минта",
			fmt.Errorf("транзакция %s подтверждена без serial_number", tx.TransactionID))
	}

	c.logger.Info("Сертификат сминчен",
		slog.String("collection_id", collectionID),
		slog.Int64("serial", tx.SerialNumber),
		slog.String("transaction_id", tx.TransactionID),
	)
	return tx.SerialNumber, tx.TransactionID, nil
}

// createCollectionResponse — ответ на создание коллекции.
type createCollectionResponse struct {
	CollectionID string `json:"collection_id"`
}

// CreateCertificateCollection однократно провижинит NFT-коллекцию.
// Вызывается при развёртывании, не на пути запросов.
func (c *Client) CreateCertificateCollection(ctx context.Context, name, symbol, treasuryAccount string, metadata []byte) (string, error) {
	body := map[string]any{
		"name":             name,
		"symbol":           symbol,
		"treasury_account": treasuryAccount,
		"metadata":         base64.StdEncoding.EncodeToString(metadata),
	}

	var resp createCollectionResponse
	if err := c.post(ctx, "/api/v1/collections", body, &resp); err != nil {
		return "", err
	}
	if resp.CollectionID == "" {
		return "", apperr.New(apperr.KindLedger, "ledger вернул пустой идентификатор коллекции")
	}
	return resp.CollectionID, nil
}

// TransferCertificate переводит сминченный сертификат на другой аккаунт.
func (c *Client) TransferCertificate(ctx context.Context, collectionID string, serial int64, toAccount string) (string, error) {
	body := map[string]any{"to_account": toAccount}
	path := fmt.Sprintf("/api/v1/collections/%s/serials/%d/transfer", collectionID, serial)

	tx, err := c.submitAndConfirm(ctx, path, body)
	if err != nil {
		return "", err
	}
	return tx.TransactionID, nil
}

// GrantAccess добавляет аккаунт в ledger-side ACL-зеркало топика.
func (c *Client) GrantAccess(ctx context.Context, topicID, accountID string) (string, error) {
	return c.aclAction(ctx, topicID, accountID, "grant")
}

// RevokeAccess убирает аккаунт из ledger-side ACL-зеркала топика.
func (c *Client) RevokeAccess(ctx context.Context, topicID, accountID string) (string, error) {
	return c.aclAction(ctx, topicID, accountID, "revoke")
}

func (c *Client) aclAction(ctx context.Context, topicID, accountID, action string) (string, error) {
	body := map[string]string{
		"account_id": accountID,
		"action":     action,
	}
	tx, err := c.submitAndConfirm(ctx, "/api/v1/topics/"+topicID+"/acl", body)
	if err != nil {
		return "", err
	}
	return tx.TransactionID, nil
}

// provisionAccountResponse — ответ провижининга аккаунта.
type provisionAccountResponse struct {
	AccountID string `json:"account_id"`
}

// ProvisionAccount создаёт аккаунт в сети ledger.
func (c *Client) ProvisionAccount(ctx context.Context) (string, error) {
	var resp provisionAccountResponse
	if err := c.post(ctx, "/api/v1/accounts", map[string]string{}, &resp); err != nil {
		return "", err
	}
	if resp.AccountID == "" {
		return "", apperr.New(apperr.KindLedger, "ledger вернул пустой идентификатор аккаунта")
	}
	return resp.AccountID, nil
}

// submitAndConfirm отправляет транзакцию и опрашивает её до финализации.
func (c *Client) submitAndConfirm(ctx context.Context, path string, body any) (*txRecord, error) {
	var submitted txRecord
	if err := c.post(ctx, path, body, &submitted); err != nil {
		return nil, err
	}
	if submitted.TransactionID == "" {
		return nil, apperr.New(apperr.KindLedger, "ledger принял запрос без идентификатора транзакции")
	}

	// Частный случай: шлюз мог финализировать синхронно.
	if submitted.Status == txStatusSuccess {
		return &submitted, nil
	}

	return c.waitConfirmed(ctx, submitted.TransactionID)
}

// waitConfirmed опрашивает транзакцию до SUCCESS/FAILED в пределах окна.
func (c *Client) waitConfirmed(ctx context.Context, txID string) (*txRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Эффект в сети мог состояться — отличаем от «не отправлено».
			return nil, apperr.Wrap(apperr.KindLedger,
				"транзакция ledger не подтверждена в отведённое окно",
				fmt.Errorf("%w: %s", ErrUnconfirmed, txID))
		case <-ticker.C:
		}

		var tx txRecord
		if err := c.get(ctx, "/api/v1/transactions/"+txID, &tx); err != nil {
			// Временная ошибка опроса — продолжаем до истечения окна.
			c.logger.Warn("Ошибка опроса транзакции ledger",
				slog.String("transaction_id", txID),
				slog.String("error", err.Error()),
			)
			continue
		}

		switch tx.Status {
		case txStatusSuccess:
			return &tx, nil
		case txStatusFailed:
			return nil, apperr.Wrap(apperr.KindLedger, "ledger отклонил транзакцию",
				fmt.Errorf("транзакция %s: %s", txID, tx.Reason))
		case txStatusPending:
			// ждём дальше
		default:
			return nil, apperr.Wrap(apperr.KindLedger, "ledger вернул неизвестный статус",
				fmt.Errorf("транзакция %s: статус %q", txID, tx.Status))
		}
	}
}

// post выполняет POST с операторской авторизацией и декодирует ответ.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("сериализация запроса: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	return c.do(req, out)
}

// get выполняет GET с операторской авторизацией и декодирует ответ.
func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("создание запроса: %w", err)
	}
	c.authorize(req)

	return c.do(req, out)
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("X-Operator-Account", c.cfg.OperatorID)
	req.Header.Set("Authorization", "Bearer "+c.cfg.OperatorKey)
}

// gatewayError — тело ошибки шлюза.
type gatewayError struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindLedger, "ledger недоступен", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var ge gatewayError
		_ = json.Unmarshal(raw, &ge)

		// Шлюз сообщает причину отказа сети: INSUFFICIENT_FUNDS,
		// INVALID_ID, BAD_SIGNATURE и т.п. Причина сохраняется в ошибке.
		reason := ge.Reason
		if reason == "" {
			reason = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return apperr.Wrap(apperr.KindLedger, "ledger отклонил запрос",
			fmt.Errorf("шлюз: %s (%s)", reason, ge.Message))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperr.Wrap(apperr.KindLedger, "некорректный ответ ledger", err)
		}
	}
	return nil
}
