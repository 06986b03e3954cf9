// Package parser normalizes raw provider payloads into canonical receipts.
// Three payload shapes exist in the wild: the flat development shape, the
// wrapped provider shape under "retorno", and the fiscal XML tree. All three
// reduce to the same receipt.CanonicalReceipt.
package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"economiza/internal/receipt"
)

// ErrMalformed marks payloads that cannot be reduced to a valid receipt.
// A wrapped detail message says which requirement failed.
var ErrMalformed = errors.New("malformed receipt payload")

const accessKeyLength = 44

var emittedAtLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// Parser is deterministic for a given payload except when the emission date
// is absent, in which case the injected clock supplies a default.
type Parser struct {
	logger *slog.Logger
	now    func() time.Time
}

func New(logger *slog.Logger) *Parser {
	return &Parser{logger: logger, now: time.Now}
}

// Parse detects the payload shape and normalizes it. Parsing never mutates
// the payload, so retries over the same raw document yield the same receipt.
func (p *Parser) Parse(ctx context.Context, payload map[string]any) (*receipt.CanonicalReceipt, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformed)
	}

	var (
		rec *receipt.CanonicalReceipt
		err error
	)
	switch {
	case asMap(payload["store"]) != nil && payload["items"] != nil:
		rec, err = p.parseFlat(payload)
	case asMap(payload["retorno"]) != nil:
		rec, err = p.parseProvider(asMap(payload["retorno"]))
	default:
		rec, err = p.parseTree(payload)
	}
	if err != nil {
		return nil, err
	}

	if err := p.validate(rec); err != nil {
		return nil, err
	}
	p.checkTotals(ctx, rec)
	return rec, nil
}

// parseFlat handles the development shape served by the fixture provider.
func (p *Parser) parseFlat(payload map[string]any) (*receipt.CanonicalReceipt, error) {
	store := asMap(payload["store"])
	rec := &receipt.CanonicalReceipt{
		AccessKey:  normalizeAccessKey(stringify(payload["access_key"])),
		StoreName:  strings.TrimSpace(stringify(store["name"])),
		StoreTaxID: strings.TrimSpace(stringify(store["cnpj"])),
		TotalValue: money(payload["total"]),
		Subtotal:   money(payload["subtotal"]),
		TotalTax:   money(payload["tax"]),
	}
	p.setEmittedAt(rec, stringify(payload["emitted_at"]))

	for _, raw := range asList(payload["items"]) {
		item := asMap(raw)
		if item == nil {
			continue
		}
		qty := quantity(item["quantity"])
		unit := money(item["unit_price"])
		total := money(item["total_price"])
		if total.IsZero() {
			total = qty.Mul(unit).Round(2)
		}
		rec.Items = append(rec.Items, receipt.CanonicalItem{
			Description: strings.TrimSpace(stringify(item["description"])),
			Quantity:    qty,
			UnitPrice:   unit,
			TotalPrice:  total,
			TaxValue:    money(item["tax_value"]),
			Barcode:     strings.TrimSpace(stringify(item["barcode"])),
		})
	}
	if rec.Subtotal.IsZero() {
		rec.Subtotal = rec.TotalValue
	}
	return rec, nil
}

// parseProvider handles the consultation-API shape wrapped under "retorno".
func (p *Parser) parseProvider(retorno map[string]any) (*receipt.CanonicalReceipt, error) {
	key := stringify(retorno["chave"])
	if strings.TrimSpace(key) == "" {
		key = stringify(retorno["chave_acesso"])
	}
	rec := &receipt.CanonicalReceipt{
		AccessKey: normalizeAccessKey(key),
	}

	if emit := asMap(retorno["emitente"]); emit != nil {
		rec.StoreName = strings.TrimSpace(stringify(firstOf(emit, "razao_social", "nome")))
		rec.StoreTaxID = strings.TrimSpace(stringify(firstOf(emit, "cnpj", "CNPJ")))
	}
	p.setEmittedAt(rec, stringify(firstOf(retorno, "data_emissao", "dataEmissao", "dhEmi")))

	subtotal := decimal.Zero
	tax := decimal.Zero
	for _, raw := range asList(retorno["produto"]) {
		item := asMap(raw)
		if item == nil {
			continue
		}
		qty := quantity(firstOf(item, "quantidade", "qtd"))
		unit := money(firstOf(item, "valor_unitario", "preco_unitario"))
		total := money(firstOf(item, "valor_total", "preco_total"))
		if total.IsZero() {
			total = qty.Mul(unit).Round(2)
		}
		itemTax := money(firstOf(item, "valor_imposto", "imposto"))
		rec.Items = append(rec.Items, receipt.CanonicalItem{
			Description: strings.TrimSpace(stringify(firstOf(item, "descricao", "desc"))),
			Quantity:    qty,
			UnitPrice:   unit,
			TotalPrice:  total,
			TaxValue:    itemTax,
			Barcode:     strings.TrimSpace(stringify(firstOf(item, "codigo_barras", "ean"))),
		})
		subtotal = subtotal.Add(total)
		tax = tax.Add(itemTax)
	}

	rec.Subtotal = subtotal.Round(2)
	rec.TotalTax = tax.Round(2)
	if v, ok := retorno["total"]; ok {
		rec.TotalValue = money(v)
	} else {
		rec.TotalValue = rec.Subtotal.Add(rec.TotalTax).Round(2)
	}
	return rec, nil
}

// parseTree handles fiscal XML documents converted to a map tree, and bare
// JSON documents that use the same field names.
func (p *Parser) parseTree(payload map[string]any) (*receipt.CanonicalReceipt, error) {
	doc := payload
	for _, wrapper := range []string{"nfeProc", "NFe", "nfe"} {
		if inner := asMap(doc[wrapper]); inner != nil {
			doc = inner
		}
	}

	rec := &receipt.CanonicalReceipt{
		AccessKey:  normalizeAccessKey(firstString(doc, accessKeyPaths)),
		StoreName:  firstString(doc, storeNamePaths),
		StoreTaxID: firstString(doc, storeTaxIDPaths),
	}
	p.setEmittedAt(rec, firstString(doc, emittedAtPaths))

	if v, ok := firstValue(doc, totalPaths); ok {
		rec.TotalValue = money(v)
	}
	if v, ok := firstValue(doc, subtotalPaths); ok {
		rec.Subtotal = money(v)
	}
	if v, ok := firstValue(doc, taxPaths); ok {
		rec.TotalTax = money(v)
	}
	if rec.Subtotal.IsZero() {
		rec.Subtotal = rec.TotalValue
	}

	items, _ := firstValue(doc, itemListPaths)
	for _, raw := range asList(items) {
		entry := asMap(raw)
		if entry == nil {
			continue
		}
		source := entry
		if prod := asMap(entry["prod"]); prod != nil {
			source = prod
		}
		qty := quantity(firstOf(source, "qCom", "quantidade"))
		unit := money(firstOf(source, "vUnCom", "precoUnitario"))
		total := money(firstOf(source, "vProd", "valorTotal"))
		if total.IsZero() {
			total = qty.Mul(unit).Round(2)
		}
		barcode := strings.TrimSpace(stringify(firstOf(source, "cEAN", "barcode")))
		if strings.EqualFold(barcode, "SEM GTIN") {
			barcode = ""
		}
		rec.Items = append(rec.Items, receipt.CanonicalItem{
			Description: strings.TrimSpace(stringify(firstOf(source, "xProd", "descricao", "description"))),
			Quantity:    qty,
			UnitPrice:   unit,
			TotalPrice:  total,
			TaxValue:    itemTax(asMap(entry["imposto"])),
			Barcode:     barcode,
		})
	}
	return rec, nil
}

// itemTax sums the IPI and ICMS amounts attached to a line item.
func itemTax(imposto map[string]any) decimal.Decimal {
	if imposto == nil {
		return decimal.Zero
	}
	tax := decimal.Zero
	for _, path := range [][]string{
		{"IPI", "IPITrib", "vIPI"},
		{"IPI", "IPINT", "vIPI"},
	} {
		if v, ok := getNested(imposto, path...); ok {
			tax = tax.Add(safeDecimal(v))
			break
		}
	}
	if icms := asMap(imposto["ICMS"]); icms != nil {
		if v, ok := icms["vICMS"]; ok {
			tax = tax.Add(safeDecimal(v))
		} else {
			// ICMS amounts nest one level deeper under the tax-situation
			// group (ICMS00, ICMS20, ...).
			for _, child := range icms {
				if group := asMap(child); group != nil {
					if v, ok := group["vICMS"]; ok {
						tax = tax.Add(safeDecimal(v))
						break
					}
				}
			}
		}
	}
	return tax.Round(2)
}

func (p *Parser) validate(rec *receipt.CanonicalReceipt) error {
	if !isDigits(rec.AccessKey) || len(rec.AccessKey) != accessKeyLength {
		return fmt.Errorf("%w: access key must be %d digits", ErrMalformed, accessKeyLength)
	}
	if len(rec.Items) == 0 {
		return fmt.Errorf("%w: receipt has no items", ErrMalformed)
	}
	return nil
}

// setEmittedAt parses the emission timestamp, defaulting to the current time
// with a recorded warning when the payload omits it.
func (p *Parser) setEmittedAt(rec *receipt.CanonicalReceipt, raw string) {
	raw = strings.TrimSpace(raw)
	if raw != "" {
		for _, layout := range emittedAtLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				rec.EmittedAt = t
				return
			}
		}
	}
	rec.EmittedAt = p.now().UTC()
	rec.Warnings = append(rec.Warnings, "emission date missing, defaulted to ingestion time")
}

// checkTotals logs receipts whose declared total drifts from the computed
// one. The declared value is kept; stores record what the document says.
func (p *Parser) checkTotals(ctx context.Context, rec *receipt.CanonicalReceipt) {
	computed := rec.Subtotal.Add(rec.TotalTax)
	drift := rec.TotalValue.Sub(computed).Abs()
	if drift.GreaterThan(decimal.NewFromFloat(0.01)) {
		p.logger.DebugContext(ctx, "receipt total drifts from item sum",
			"access_key", rec.AccessKey,
			"declared", rec.TotalValue.String(),
			"computed", computed.String(),
		)
	}
}

// normalizeAccessKey strips the conventional NFe prefix and surrounding
// whitespace from an access key candidate.
func normalizeAccessKey(raw string) string {
	raw = strings.TrimSpace(raw)
	return strings.TrimPrefix(raw, "NFe")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// firstOf returns the first present, non-nil field from a map.
func firstOf(m map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			return v
		}
	}
	return nil
}
