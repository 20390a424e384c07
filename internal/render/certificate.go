// Пакет render — HTML-представление сертификата целостности.
// Документ самодостаточен (инлайновые стили, без внешних ресурсов),
// пригоден для печати и для передачи третьей стороне.
package render

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/arturkryukov/datavault/internal/domain/model"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

// CertificateRenderer рендерит сертификат целостности файла.
type CertificateRenderer struct {
	tmpl        *template.Template
	explorerURL string
}

// certificateView — данные шаблона. Все поля уже отформатированы,
// шаблон не содержит логики.
type certificateView struct {
	FileID       string
	FileName     string
	FileType     string
	Size         int64
	ContentHash  string
	TokenID      string
	SerialNumber int64
	AnchorTxID   string
	MintTxID     string
	AnchorTxURL  string
	MintTxURL    string
	TokenURL     string
	MintedAt     string
	RenderedAt   string
}

// NewCertificateRenderer парсит встроенный шаблон.
// explorerURL — базовый URL публичного обозревателя ledger; пустая
// строка отключает ссылки (останутся только идентификаторы).
func NewCertificateRenderer(explorerURL string) (*CertificateRenderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/certificate.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("парсинг шаблона сертификата: %w", err)
	}
	return &CertificateRenderer{
		tmpl:        tmpl,
		explorerURL: strings.TrimRight(explorerURL, "/"),
	}, nil
}

// Render пишет HTML-документ сертификата в w.
func (r *CertificateRenderer) Render(w io.Writer, record *model.FileRecord, cert *model.Certificate) error {
	view := certificateView{
		FileID:       record.ID,
		FileName:     record.FileName,
		FileType:     record.FileType,
		Size:         record.Size,
		ContentHash:  record.ContentHash,
		TokenID:      cert.TokenID,
		SerialNumber: cert.SerialNumber,
		AnchorTxID:   record.LedgerTransactionID,
		MintTxID:     cert.LedgerTransactionID,
		MintedAt:     cert.CreatedAt.UTC().Format(time.RFC3339),
		RenderedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	if r.explorerURL != "" {
		view.AnchorTxURL = r.explorerURL + "/transaction/" + record.LedgerTransactionID
		view.MintTxURL = r.explorerURL + "/transaction/" + cert.LedgerTransactionID
		view.TokenURL = r.explorerURL + "/token/" + cert.TokenID
	}

	if err := r.tmpl.Execute(w, view); err != nil {
		return fmt.Errorf("рендеринг сертификата: %w", err)
	}
	return nil
}
