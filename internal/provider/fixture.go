package provider

// fixturePayload is the deterministic offline stand-in for a real fiscal
// document, keyed by the requested access key. It exists so the whole
// pipeline is testable without network access and so development
// environments never silently contact production fiscal-authority hosts.
func fixturePayload(key string) map[string]any {
	return map[string]any{
		"access_key": key,
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
			map[string]any{
				"description": "ACUCAR CRISTAL 1KG",
				"quantity":    1,
				"unit_price":  4.50,
				"total_price": 4.50,
				"tax_value":   0.25,
			},
		},
		"emitted_at": "2024-04-12T15:33:00",
	}
}
