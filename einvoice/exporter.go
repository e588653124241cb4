package einvoice

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"time"

	"labbilling-backend/billing"
	"labbilling-backend/database"
	"labbilling-backend/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config holds the document defaults. The issuer identity comes from the
// issuer row of the exported invoice.
type Config struct {
	Currency     string
	DocumentType string
}

// Exporter serializes non-draft invoices into FPR12 documents.
type Exporter struct {
	cfg      Config
	counters *billing.Counters
	log      *zap.Logger
}

func NewExporter(cfg Config, counters *billing.Counters, log *zap.Logger) *Exporter {
	if cfg.Currency == "" {
		cfg.Currency = "EUR"
	}
	if cfg.DocumentType == "" {
		cfg.DocumentType = "TD01"
	}
	return &Exporter{cfg: cfg, counters: counters, log: log.Named("einvoice")}
}

// Export generates the document of invoice invoiceID. The issuer's
// transmission progressive is consumed and the transmission persisted in
// the same transaction, so a retry after a crash never reuses a value.
// Apart from the progressive, the output is a pure function of the stored
// invoice.
func (e *Exporter) Export(ctx context.Context, db *gorm.DB, invoiceID uint) (*Document, error) {
	var doc *Document
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invoice models.Invoice
		err := tx.Preload("Client").
			Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
			Take(&invoice, invoiceID).Error
		if err != nil {
			if database.IsNotFound(err) {
				return billing.NewError(billing.ErrNotFound, "invoice %d", invoiceID)
			}
			return billing.StoreError(err, "load invoice")
		}
		if invoice.Status == models.InvoiceDraft {
			return billing.NewError(billing.ErrInvalidState, "invoice %s is still a draft", invoice.Number)
		}

		var issuer models.Issuer
		if err := tx.Take(&issuer, "code = ?", invoice.IssuerCode).Error; err != nil {
			if database.IsNotFound(err) {
				return billing.NewError(billing.ErrNotFound, "issuer %q", invoice.IssuerCode)
			}
			return billing.StoreError(err, "load issuer")
		}

		progressive, err := e.counters.NextProgressive(ctx, tx, issuer.Code)
		if err != nil {
			return err
		}

		content := e.compose(&issuer, &invoice, progressive)
		if err := crossCheck(content, &invoice); err != nil {
			return err
		}

		payload, err := render(content)
		if err != nil {
			return err
		}
		sum := sha256.Sum256(payload)

		doc = &Document{
			InvoiceID:   invoice.ID,
			Number:      invoice.Number,
			Progressive: progressive,
			FileName:    fileName(&issuer, progressive),
			Digest:      hex.EncodeToString(sum[:]),
			XML:         payload,
			Content:     content,
		}
		transmission := models.Transmission{
			InvoiceID:   invoice.ID,
			IssuerCode:  issuer.Code,
			Progressive: progressive,
			FileName:    doc.FileName,
			Digest:      doc.Digest,
			Document:    payload,
		}
		if err := tx.Create(&transmission).Error; err != nil {
			return billing.StoreError(err, "record transmission")
		}
		return nil
	}, database.TxOptions(db)...)
	if err != nil {
		e.log.Debug("export rejected", zap.Uint("invoice_id", invoiceID), zap.Error(err))
		return nil, err
	}

	e.log.Info("invoice exported",
		zap.Uint("invoice_id", doc.InvoiceID),
		zap.String("number", doc.Number),
		zap.Int64("progressive", doc.Progressive),
		zap.String("file", doc.FileName))
	return doc, nil
}

func (e *Exporter) compose(issuer *models.Issuer, invoice *models.Invoice, progressive int64) *FatturaElettronica {
	client := invoice.Client

	routing := client.RoutingCode
	pec := ""
	if routing == "" {
		routing = routingCodeNone
		pec = client.CertifiedEmail
	}

	var clientVAT *IdFiscale
	if client.VATNumber != "" {
		clientVAT = &IdFiscale{IdPaese: client.Country, IdCodice: client.VATNumber}
	}

	rate := amount(invoice.TaxRate)
	lines := make([]DettaglioLinea, 0, len(invoice.Lines))
	for i, line := range invoice.Lines {
		dl := DettaglioLinea{
			NumeroLinea:    i + 1,
			Descrizione:    line.Description,
			Quantita:       amount(decimal.NewFromInt(1)),
			PrezzoUnitario: amount(line.UnitPrice),
			PrezzoTotale:   amount(line.Amount),
			AliquotaIVA:    rate,
		}
		if !line.Discount.IsZero() {
			dl.ScontoMaggiorazione = &ScontoMaggiorazione{Tipo: discountType, Importo: amount(line.Discount)}
		}
		lines = append(lines, dl)
	}

	general := DatiGeneraliDocumento{
		TipoDocumento:          e.cfg.DocumentType,
		Divisa:                 e.cfg.Currency,
		Data:                   documentDate(invoice).Format(time.DateOnly),
		Numero:                 invoice.Number,
		ImportoTotaleDocumento: amount(invoice.Total),
	}
	if !invoice.DiscountTotal.IsZero() {
		pct := amount(invoice.DiscountPercent)
		general.ScontoMaggiorazione = &ScontoMaggiorazione{
			Tipo:        discountType,
			Percentuale: &pct,
			Importo:     amount(invoice.DiscountTotal),
		}
	}

	return &FatturaElettronica{
		Versione: formatFPR12,
		XmlnsP:   namespace,
		Header: Header{
			DatiTrasmissione: DatiTrasmissione{
				IdTrasmittente:      IdFiscale{IdPaese: issuer.Country, IdCodice: transmitterCode(issuer)},
				ProgressivoInvio:    formatProgressive(progressive),
				FormatoTrasmissione: formatFPR12,
				CodiceDestinatario:  routing,
				PECDestinatario:     pec,
			},
			CedentePrestatore: CedentePrestatore{
				DatiAnagrafici: DatiAnagraficiCedente{
					IdFiscaleIVA:  IdFiscale{IdPaese: issuer.Country, IdCodice: issuer.VATNumber},
					CodiceFiscale: issuer.FiscalCode,
					Anagrafica:    Anagrafica{Denominazione: issuer.CompanyName},
					RegimeFiscale: issuer.TaxRegime,
				},
				Sede: Sede{
					Indirizzo: issuer.Address,
					CAP:       issuer.Zip,
					Comune:    issuer.City,
					Provincia: issuer.Province,
					Nazione:   issuer.Country,
				},
			},
			CessionarioCommittente: CessionarioCommittente{
				DatiAnagrafici: DatiAnagraficiCessionario{
					IdFiscaleIVA:  clientVAT,
					CodiceFiscale: client.FiscalCode,
					Anagrafica:    Anagrafica{Denominazione: client.CompanyName},
				},
				Sede: Sede{
					Indirizzo: client.Address,
					CAP:       client.Zip,
					Comune:    client.City,
					Provincia: client.Province,
					Nazione:   client.Country,
				},
			},
		},
		Body: Body{
			DatiGenerali: DatiGenerali{DatiGeneraliDocumento: general},
			DatiBeniServizi: DatiBeniServizi{
				DettaglioLinee: lines,
				DatiRiepilogo: []DatiRiepilogo{{
					AliquotaIVA:       rate,
					ImponibileImporto: amount(invoice.TaxableBase()),
					Imposta:           amount(invoice.TaxTotal),
					EsigibilitaIVA:    taxDueImmediately,
				}},
			},
		},
	}
}

// crossCheck verifies the document against the invoice it was built from.
// A mismatch is reported, never corrected.
func crossCheck(doc *FatturaElettronica, invoice *models.Invoice) error {
	if len(doc.Body.DatiBeniServizi.DettaglioLinee) == 0 {
		return billing.NewError(billing.ErrConsistency, "invoice %s has no lines", invoice.Number)
	}
	for _, line := range doc.Body.DatiBeniServizi.DettaglioLinee {
		want := line.PrezzoUnitario.Mul(line.Quantita.Decimal)
		if line.ScontoMaggiorazione != nil {
			want = want.Sub(line.ScontoMaggiorazione.Importo.Decimal)
		}
		if !want.Equal(line.PrezzoTotale.Decimal) {
			return billing.NewError(billing.ErrConsistency, "line %d total %s, expected %s",
				line.NumeroLinea, line.PrezzoTotale.StringFixed(2), want.StringFixed(2))
		}
	}

	got := doc.Totals()
	checks := []struct {
		field     string
		doc, want decimal.Decimal
	}{
		{"subtotal", got.Subtotal, invoice.Subtotal},
		{"discount", got.Discount, invoice.DiscountTotal},
		{"tax", got.Tax, invoice.TaxTotal},
		{"total", got.Total, invoice.Total},
		{"total", got.Subtotal.Sub(got.Discount).Add(got.Tax), invoice.Total},
	}
	for _, c := range checks {
		if !c.doc.Equal(c.want) {
			return billing.NewError(billing.ErrConsistency, "invoice %s %s: document %s, invoice %s",
				invoice.Number, c.field, c.doc.StringFixed(2), c.want.StringFixed(2))
		}
	}

	amounts := make([]decimal.Decimal, len(invoice.Lines))
	for i, line := range invoice.Lines {
		amounts[i] = line.Amount
	}
	want, err := billing.ComputeTotals(amounts, invoice.DiscountPercent, invoice.TaxRate)
	if err != nil {
		return billing.NewError(billing.ErrConsistency, "invoice %s: %v", invoice.Number, err)
	}
	if !want.Tax.Equal(invoice.TaxTotal) || !want.Total.Equal(invoice.Total) {
		return billing.NewError(billing.ErrConsistency, "invoice %s tax %s total %s do not match %s%% of %s after %s%% discount",
			invoice.Number, invoice.TaxTotal.StringFixed(2), invoice.Total.StringFixed(2),
			invoice.TaxRate.String(), invoice.Subtotal.StringFixed(2), invoice.DiscountPercent.String())
	}
	return nil
}

func render(doc *FatturaElettronica) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func documentDate(invoice *models.Invoice) time.Time {
	if invoice.IssuedAt != nil {
		return invoice.IssuedAt.UTC()
	}
	return invoice.CreatedAt.UTC()
}

func transmitterCode(issuer *models.Issuer) string {
	if issuer.FiscalCode != "" {
		return issuer.FiscalCode
	}
	return issuer.VATNumber
}

func formatProgressive(p int64) string {
	return fmt.Sprintf("%0*d", progressiveMinDigits, p)
}

func fileName(issuer *models.Issuer, progressive int64) string {
	return fmt.Sprintf("%s%s_%s.xml", issuer.Country, transmitterCode(issuer), formatProgressive(progressive))
}
