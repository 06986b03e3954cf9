package parser

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "35200112345678901234567890123456789012345678"

func newTestParser() *Parser {
	p := New(slog.New(slog.DiscardHandler))
	p.now = func() time.Time {
		return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return p
}

func flatPayload() map[string]any {
	return map[string]any{
		"access_key": testKey,
		"store": map[string]any{
			"name": "SUPERMERCADO EXEMPLO",
			"cnpj": "12345678000100",
		},
		"total":    125.30,
		"subtotal": 119.00,
		"tax":      6.30,
		"items": []any{
			map[string]any{
				"description": "ARROZ TIPO 1 5KG",
				"quantity":    1,
				"unit_price":  25.50,
				"total_price": 25.50,
				"tax_value":   1.20,
			},
			map[string]any{
				"description": "FEIJAO PRETO 1KG",
				"quantity":    2,
				"unit_price":  8.50,
				"total_price": 17.00,
				"tax_value":   0.85,
			},
		},
		"emitted_at": "2024-04-12T15:33:00",
	}
}

func TestParseFlatShape(t *testing.T) {
	p := newTestParser()
	rec, err := p.Parse(context.Background(), flatPayload())
	require.NoError(t, err)

	assert.Equal(t, testKey, rec.AccessKey)
	assert.Equal(t, "SUPERMERCADO EXEMPLO", rec.StoreName)
	assert.Equal(t, "12345678000100", rec.StoreTaxID)
	assert.True(t, rec.TotalValue.Equal(decimal.RequireFromString("125.30")), rec.TotalValue.String())
	assert.True(t, rec.Subtotal.Equal(decimal.RequireFromString("119.00")))
	assert.True(t, rec.TotalTax.Equal(decimal.RequireFromString("6.30")))
	assert.Equal(t, time.Date(2024, 4, 12, 15, 33, 0, 0, time.UTC), rec.EmittedAt)
	assert.Empty(t, rec.Warnings)

	require.Len(t, rec.Items, 2)
	assert.Equal(t, "FEIJAO PRETO 1KG", rec.Items[1].Description)
	assert.True(t, rec.Items[1].Quantity.Equal(decimal.NewFromInt(2)))
	assert.True(t, rec.Items[1].TotalPrice.Equal(decimal.RequireFromString("17.00")))
}

func TestParseProviderShape(t *testing.T) {
	p := newTestParser()
	payload := map[string]any{
		"retorno": map[string]any{
			"chave": testKey,
			"emitente": map[string]any{
				"razao_social": "MERCADO CENTRAL LTDA",
				"cnpj":         "98765432000111",
			},
			"data_emissao": "2024-03-02T10:05:00",
			"produto": []any{
				map[string]any{
					"descricao":      "LEITE INTEGRAL 1L",
					"quantidade":     "3",
					"valor_unitario": "4,80",
					"valor_total":    "14,40",
					"valor_imposto":  "0,60",
					"codigo_barras":  "7891000100103",
				},
				map[string]any{
					"desc":           "CAFE TORRADO 500G",
					"qtd":            1,
					"preco_unitario": 18.90,
					// Zero total is recomputed from quantity and unit price.
					"preco_total": 0,
					"imposto":     1.10,
				},
			},
		},
	}

	rec, err := p.Parse(context.Background(), payload)
	require.NoError(t, err)

	assert.Equal(t, "MERCADO CENTRAL LTDA", rec.StoreName)
	require.Len(t, rec.Items, 2)
	assert.Equal(t, "7891000100103", rec.Items[0].Barcode)
	assert.True(t, rec.Items[0].TotalPrice.Equal(decimal.RequireFromString("14.40")))
	assert.True(t, rec.Items[1].TotalPrice.Equal(decimal.RequireFromString("18.90")))

	// Totals derive from the item lines when the payload has no total.
	assert.True(t, rec.Subtotal.Equal(decimal.RequireFromString("33.30")), rec.Subtotal.String())
	assert.True(t, rec.TotalTax.Equal(decimal.RequireFromString("1.70")))
	assert.True(t, rec.TotalValue.Equal(decimal.RequireFromString("35.00")))
}

func TestParseProviderShapeSingleProductObject(t *testing.T) {
	p := newTestParser()
	payload := map[string]any{
		"retorno": map[string]any{
			"chave_acesso": testKey,
			"produto": map[string]any{
				"descricao":      "BANANA PRATA KG",
				"quantidade":     "1.250",
				"valor_unitario": "6.00",
				"valor_total":    "7.50",
			},
			"total": "7.50",
		},
	}

	rec, err := p.Parse(context.Background(), payload)
	require.NoError(t, err)
	require.Len(t, rec.Items, 1)
	assert.True(t, rec.Items[0].Quantity.Equal(decimal.RequireFromString("1.250")))
	assert.True(t, rec.TotalValue.Equal(decimal.RequireFromString("7.50")))
}

func xmlTreePayload() map[string]any {
	return map[string]any{
		"nfeProc": map[string]any{
			"NFe": map[string]any{
				"infNFe": map[string]any{
					"@Id": "NFe" + testKey,
					"ide": map[string]any{
						"dhEmi": "2024-02-20T09:12:00-03:00",
					},
					"emit": map[string]any{
						"xNome": "ATACADAO DO POVO",
						"CNPJ":  "11222333000144",
					},
					"det": []any{
						map[string]any{
							"@nItem": "1",
							"prod": map[string]any{
								"xProd":  "OLEO DE SOJA 900ML",
								"qCom":   "2.000",
								"vUnCom": "7.95",
								"vProd":  "15.90",
								"cEAN":   "SEM GTIN",
							},
							"imposto": map[string]any{
								"ICMS": map[string]any{
									"ICMS00": map[string]any{"vICMS": "1.20"},
								},
							},
						},
					},
					"total": map[string]any{
						"ICMSTot": map[string]any{
							"vProd":    "15.90",
							"vNF":      "15.90",
							"vTotTrib": "1.20",
						},
					},
				},
			},
		},
	}
}

func TestParseXMLTreeShape(t *testing.T) {
	p := newTestParser()
	rec, err := p.Parse(context.Background(), xmlTreePayload())
	require.NoError(t, err)

	assert.Equal(t, testKey, rec.AccessKey)
	assert.Equal(t, "ATACADAO DO POVO", rec.StoreName)
	assert.Equal(t, "11222333000144", rec.StoreTaxID)
	require.Len(t, rec.Items, 1)
	assert.Equal(t, "OLEO DE SOJA 900ML", rec.Items[0].Description)
	assert.Empty(t, rec.Items[0].Barcode)
	assert.True(t, rec.Items[0].Quantity.Equal(decimal.RequireFromString("2.000")))
	assert.True(t, rec.Items[0].TaxValue.Equal(decimal.RequireFromString("1.20")))
	assert.True(t, rec.TotalValue.Equal(decimal.RequireFromString("15.90")))

	expected := time.Date(2024, 2, 20, 9, 12, 0, 0, time.FixedZone("", -3*3600))
	assert.True(t, rec.EmittedAt.Equal(expected))
}

func TestParseIsDeterministic(t *testing.T) {
	p := newTestParser()
	first, err := p.Parse(context.Background(), xmlTreePayload())
	require.NoError(t, err)
	second, err := p.Parse(context.Background(), xmlTreePayload())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestParseMissingEmittedAtDefaultsWithWarning(t *testing.T) {
	p := newTestParser()
	payload := flatPayload()
	delete(payload, "emitted_at")

	rec, err := p.Parse(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), rec.EmittedAt)
	require.Len(t, rec.Warnings, 1)
	assert.Contains(t, rec.Warnings[0], "emission date missing")
}

func TestParseRejectsBadAccessKey(t *testing.T) {
	p := newTestParser()

	for name, key := range map[string]string{
		"too short":  testKey[:43],
		"non digits": "35200112345678901234567890123456789012345ABC",
		"empty":      "",
	} {
		payload := flatPayload()
		payload["access_key"] = key
		_, err := p.Parse(context.Background(), payload)
		require.ErrorIs(t, err, ErrMalformed, name)
	}
}

func TestParseRejectsEmptyItems(t *testing.T) {
	p := newTestParser()
	payload := flatPayload()
	payload["items"] = []any{}

	_, err := p.Parse(context.Background(), payload)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestParseRejectsUnrecognizedPayload(t *testing.T) {
	p := newTestParser()
	_, err := p.Parse(context.Background(), map[string]any{"raw": "service offline"})
	require.ErrorIs(t, err, ErrMalformed)

	_, err = p.Parse(context.Background(), nil)
	require.ErrorIs(t, err, ErrMalformed)
}
