package einvoice

import (
	"encoding/xml"

	"github.com/shopspring/decimal"
)

const (
	namespace            = "http://ivaservizi.agenziaentrate.gov.it/docs/xsd/fatture/v1.2"
	formatFPR12          = "FPR12"
	routingCodeNone      = "0000000"
	discountType         = "SC"
	taxDueImmediately    = "I"
	progressiveMinDigits = 5
)

// Amount renders as a fixed two-decimal number.
type Amount struct {
	decimal.Decimal
}

func amount(d decimal.Decimal) Amount {
	return Amount{d}
}

func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.StringFixed(2)), nil
}

// FatturaElettronica is the root of the FPR12 document. Field order is
// element order.
type FatturaElettronica struct {
	XMLName  xml.Name `xml:"p:FatturaElettronica"`
	Versione string   `xml:"versione,attr"`
	XmlnsP   string   `xml:"xmlns:p,attr"`
	Header   Header   `xml:"FatturaElettronicaHeader"`
	Body     Body     `xml:"FatturaElettronicaBody"`
}

type Header struct {
	DatiTrasmissione       DatiTrasmissione       `xml:"DatiTrasmissione"`
	CedentePrestatore      CedentePrestatore      `xml:"CedentePrestatore"`
	CessionarioCommittente CessionarioCommittente `xml:"CessionarioCommittente"`
}

type IdFiscale struct {
	IdPaese  string `xml:"IdPaese"`
	IdCodice string `xml:"IdCodice"`
}

type DatiTrasmissione struct {
	IdTrasmittente      IdFiscale `xml:"IdTrasmittente"`
	ProgressivoInvio    string    `xml:"ProgressivoInvio"`
	FormatoTrasmissione string    `xml:"FormatoTrasmissione"`
	CodiceDestinatario  string    `xml:"CodiceDestinatario"`
	PECDestinatario     string    `xml:"PECDestinatario,omitempty"`
}

type Anagrafica struct {
	Denominazione string `xml:"Denominazione"`
}

type Sede struct {
	Indirizzo string `xml:"Indirizzo"`
	CAP       string `xml:"CAP"`
	Comune    string `xml:"Comune"`
	Provincia string `xml:"Provincia,omitempty"`
	Nazione   string `xml:"Nazione"`
}

// CedentePrestatore is the issuer (the laboratory).
type CedentePrestatore struct {
	DatiAnagrafici DatiAnagraficiCedente `xml:"DatiAnagrafici"`
	Sede           Sede                  `xml:"Sede"`
}

type DatiAnagraficiCedente struct {
	IdFiscaleIVA  IdFiscale  `xml:"IdFiscaleIVA"`
	CodiceFiscale string     `xml:"CodiceFiscale,omitempty"`
	Anagrafica    Anagrafica `xml:"Anagrafica"`
	RegimeFiscale string     `xml:"RegimeFiscale"`
}

// CessionarioCommittente is the billed client.
type CessionarioCommittente struct {
	DatiAnagrafici DatiAnagraficiCessionario `xml:"DatiAnagrafici"`
	Sede           Sede                      `xml:"Sede"`
}

type DatiAnagraficiCessionario struct {
	IdFiscaleIVA  *IdFiscale `xml:"IdFiscaleIVA,omitempty"`
	CodiceFiscale string     `xml:"CodiceFiscale,omitempty"`
	Anagrafica    Anagrafica `xml:"Anagrafica"`
}

type Body struct {
	DatiGenerali    DatiGenerali    `xml:"DatiGenerali"`
	DatiBeniServizi DatiBeniServizi `xml:"DatiBeniServizi"`
}

type DatiGenerali struct {
	DatiGeneraliDocumento DatiGeneraliDocumento `xml:"DatiGeneraliDocumento"`
}

type DatiGeneraliDocumento struct {
	TipoDocumento          string               `xml:"TipoDocumento"`
	Divisa                 string               `xml:"Divisa"`
	Data                   string               `xml:"Data"`
	Numero                 string               `xml:"Numero"`
	ScontoMaggiorazione    *ScontoMaggiorazione `xml:"ScontoMaggiorazione,omitempty"`
	ImportoTotaleDocumento Amount               `xml:"ImportoTotaleDocumento"`
}

type ScontoMaggiorazione struct {
	Tipo        string  `xml:"Tipo"`
	Percentuale *Amount `xml:"Percentuale,omitempty"`
	Importo     Amount  `xml:"Importo"`
}

type DatiBeniServizi struct {
	DettaglioLinee []DettaglioLinea `xml:"DettaglioLinee"`
	DatiRiepilogo  []DatiRiepilogo  `xml:"DatiRiepilogo"`
}

type DettaglioLinea struct {
	NumeroLinea         int                  `xml:"NumeroLinea"`
	Descrizione         string               `xml:"Descrizione"`
	Quantita            Amount               `xml:"Quantita"`
	PrezzoUnitario      Amount               `xml:"PrezzoUnitario"`
	ScontoMaggiorazione *ScontoMaggiorazione `xml:"ScontoMaggiorazione,omitempty"`
	PrezzoTotale        Amount               `xml:"PrezzoTotale"`
	AliquotaIVA         Amount               `xml:"AliquotaIVA"`
}

type DatiRiepilogo struct {
	AliquotaIVA       Amount `xml:"AliquotaIVA"`
	ImponibileImporto Amount `xml:"ImponibileImporto"`
	Imposta           Amount `xml:"Imposta"`
	EsigibilitaIVA    string `xml:"EsigibilitaIVA"`
}

// Totals are the document-level aggregates as the document states them.
type Totals struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Totals derives the aggregates: the subtotal is the sum of line totals.
func (f *FatturaElettronica) Totals() Totals {
	var t Totals
	for _, line := range f.Body.DatiBeniServizi.DettaglioLinee {
		t.Subtotal = t.Subtotal.Add(line.PrezzoTotale.Decimal)
	}
	if s := f.Body.DatiGenerali.DatiGeneraliDocumento.ScontoMaggiorazione; s != nil {
		t.Discount = s.Importo.Decimal
	}
	for _, r := range f.Body.DatiBeniServizi.DatiRiepilogo {
		t.Tax = t.Tax.Add(r.Imposta.Decimal)
	}
	t.Total = f.Body.DatiGenerali.DatiGeneraliDocumento.ImportoTotaleDocumento.Decimal
	return t
}

// Document is one generated electronic invoice.
type Document struct {
	InvoiceID   uint
	Number      string
	Progressive int64
	FileName    string
	Digest      string
	XML         []byte
	Content     *FatturaElettronica
}
