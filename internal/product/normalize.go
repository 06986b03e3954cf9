package product

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Portuguese stopwords and packaging words that carry no product identity.
var stopwords = map[string]struct{}{
	"a": {}, "o": {}, "e": {}, "de": {}, "do": {}, "da": {}, "em": {},
	"um": {}, "uma": {}, "para": {}, "com": {}, "por": {}, "que": {},
	"na": {}, "no": {}, "as": {}, "os": {}, "ao": {}, "pelo": {}, "pela": {},
	"dos": {}, "das": {}, "tipo": {}, "marca": {}, "sabor": {},
	"unidade": {}, "un": {}, "pacote": {}, "pac": {}, "caixa": {}, "cx": {},
	"embalagem": {}, "emb": {},
}

var (
	unitPattern   = regexp.MustCompile(`\d+\s*(kg|g|ml|l|lt|un|pct|pac|cx|emb|und|gr|mg|cl|dl)\b`)
	numberPattern = regexp.MustCompile(`\b\d+\b`)
	punctPattern  = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

	// strips combining marks after NFD decomposition
	accentStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// NormalizeName reduces a raw line description to its identity-bearing
// words: lowercase, accent-free, with quantities, packaging units, stopwords
// and short fragments removed. "ARROZ TIPO 1 5KG" and "Arroz T.1 5 kg" both
// normalize to "arroz".
func NormalizeName(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if stripped, _, err := transform.String(accentStripper, s); err == nil {
		s = stripped
	}
	s = unitPattern.ReplaceAllString(s, " ")
	s = numberPattern.ReplaceAllString(s, " ")
	s = punctPattern.ReplaceAllString(s, " ")

	words := make([]string, 0, 8)
	for _, w := range strings.Fields(s) {
		if len(w) <= 2 {
			continue
		}
		if _, skip := stopwords[w]; skip {
			continue
		}
		words = append(words, w)
	}
	return strings.Join(words, " ")
}
