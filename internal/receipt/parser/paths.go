package parser

import (
	"fmt"
	"strings"
)

// The path tables below encode every location each logical field has been
// observed at across provider payloads, in priority order. Keeping them as
// data makes the precedence auditable and the lookups pure.

var accessKeyPaths = [][]string{
	{"infNFe", "@Id"},
	{"@Id"},
	{"infNFe", "ide", "chNFe"},
	{"ide", "chNFe"},
	{"chave"},
	{"access_key"},
}

var emittedAtPaths = [][]string{
	{"infNFe", "ide", "dhEmi"},
	{"ide", "dhEmi"},
	{"infNFe", "ide", "dEmi"},
	{"ide", "dEmi"},
	{"emitted_at"},
	{"dataEmissao"},
}

var storeNamePaths = [][]string{
	{"infNFe", "emit", "xNome"},
	{"emit", "xNome"},
	{"infNFe", "emit", "xFant"},
	{"emit", "xFant"},
	{"store_name"},
	{"nomeEmitente"},
}

var storeTaxIDPaths = [][]string{
	{"infNFe", "emit", "CNPJ"},
	{"emit", "CNPJ"},
	{"infNFe", "emit", "cnpj"},
	{"emit", "cnpj"},
	{"store_cnpj"},
	{"cnpjEmitente"},
}

var totalPaths = [][]string{
	{"infNFe", "total", "ICMSTot", "vNF"},
	{"total", "ICMSTot", "vNF"},
	{"infNFe", "total", "ICMSTot", "vProd"},
	{"total", "ICMSTot", "vProd"},
	{"total", "vNF"},
	{"total_value"},
	{"valorTotal"},
}

var subtotalPaths = [][]string{
	{"infNFe", "total", "ICMSTot", "vProd"},
	{"total", "ICMSTot", "vProd"},
	{"total", "vProd"},
	{"subtotal"},
	{"valorProdutos"},
}

var taxPaths = [][]string{
	{"infNFe", "total", "ICMSTot", "vTotTrib"},
	{"total", "ICMSTot", "vTotTrib"},
	{"infNFe", "total", "ICMSTot", "vIPI"},
	{"total", "ICMSTot", "vIPI"},
	{"total", "vTotTrib"},
	{"total_tax"},
	{"valorImpostos"},
}

var itemListPaths = [][]string{
	{"infNFe", "det"},
	{"det"},
	{"dets", "det"},
	{"items"},
	{"produtos"},
}

// getNested walks a map tree along a key path.
func getNested(m map[string]any, path ...string) (any, bool) {
	var cur any = m
	for _, key := range path {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = node[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// firstValue returns the value at the first path that resolves.
func firstValue(m map[string]any, paths [][]string) (any, bool) {
	for _, path := range paths {
		if v, ok := getNested(m, path...); ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// firstString returns the first non-empty string-coercible value.
func firstString(m map[string]any, paths [][]string) string {
	for _, path := range paths {
		v, ok := getNested(m, path...)
		if !ok || v == nil {
			continue
		}
		if s := strings.TrimSpace(stringify(v)); s != "" {
			return s
		}
	}
	return ""
}

// stringify renders scalar payload values without scientific notation.
// Nil renders as the empty string so callers can treat absence uniformly.
func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		if s == float64(int64(s)) {
			return fmt.Sprintf("%d", int64(s))
		}
		return fmt.Sprintf("%v", s)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// asList coerces a value into a slice, wrapping single objects. Provider
// payloads collapse one-item lists into a bare object.
func asList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		return []any{t}
	}
}

// asMap returns the value as a map, or nil.
func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
