package notify

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/shopspring/decimal"
)

const (
	msgStock    = "Insufficient stock for %s"
	msgMaterial = "Insufficient material %s for production order %d"
	msgBalance  = "Insufficient balance on %s"
	msgReplen   = "Replenishment failed for %s"
	msgDrift    = "Stock drift on %s"
	msgBody     = "Required %v, available %v."
	msgGeneric  = "Ledger alert %s"
)

func init() {
	id := language.Indonesian
	_ = message.SetString(id, msgStock, "Stok tidak cukup untuk %s")
	_ = message.SetString(id, msgMaterial, "Bahan %s tidak cukup untuk perintah produksi %d")
	_ = message.SetString(id, msgBalance, "Saldo tidak cukup pada %s")
	_ = message.SetString(id, msgReplen, "Pengadaan ulang gagal untuk %s")
	_ = message.SetString(id, msgDrift, "Selisih stok pada %s")
	_ = message.SetString(id, msgBody, "Dibutuhkan %v, tersedia %v.")
	_ = message.SetString(id, msgGeneric, "Peringatan buku besar %s")
}

// Formatter renders alerts for a locale with grouped, localised numbers.
type Formatter struct {
	printer *message.Printer
}

// NewFormatter builds a Formatter; unknown locales fall back to English.
func NewFormatter(locale string) *Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return &Formatter{printer: message.NewPrinter(tag)}
}

// Subject renders the one-line summary.
func (f *Formatter) Subject(a Alert) string {
	switch a.Kind {
	case KindInsufficientStock:
		return f.printer.Sprintf(msgStock, a.Subject)
	case KindInsufficientMaterial:
		return f.printer.Sprintf(msgMaterial, a.Subject, a.EntityID)
	case KindInsufficientBalance:
		return f.printer.Sprintf(msgBalance, a.Subject)
	case KindReplenishmentFailed:
		return f.printer.Sprintf(msgReplen, a.Subject)
	case KindStockDrift:
		return f.printer.Sprintf(msgDrift, a.Subject)
	}
	return f.printer.Sprintf(msgGeneric, string(a.Kind))
}

// Body renders the quantities and optional detail.
func (f *Formatter) Body(a Alert) string {
	body := f.printer.Sprintf(msgBody, f.num(a.Required), f.num(a.Available))
	if a.Detail != "" {
		body += " " + a.Detail
	}
	return body
}

func (f *Formatter) num(d decimal.Decimal) number.Formatter {
	v, _ := d.Float64()
	return number.Decimal(v, number.MaxFractionDigits(4))
}
