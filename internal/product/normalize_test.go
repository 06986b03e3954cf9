package product

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"strips units and type markers", "ARROZ TIPO 1 5KG", "arroz"},
		{"equivalent phrasing converges", "Arroz T.1 5 kg", "arroz"},
		{"strips accents", "AÇÚCAR CRISTAL 1KG", "acucar cristal"},
		{"strips stopwords", "LEITE DE COCO SABOR NATURAL", "leite coco natural"},
		{"strips packaging words", "BISCOITO RECHEADO PACOTE 140G", "biscoito recheado"},
		{"strips punctuation", "CAFE TORR/MOIDO 500G", "cafe torr moido"},
		{"strips bare numbers", "OVOS BRANCOS 30 UNIDADES", "ovos brancos unidades"},
		{"keeps word order", "FEIJAO PRETO GRAOS", "feijao preto graos"},
		{"empty input", "", ""},
		{"only noise", "1 KG DE UN 2", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeName(tt.in))
		})
	}
}

func TestNormalizeNameConvergence(t *testing.T) {
	// Descriptions of the same product from different stores must collapse
	// to one normalized identity.
	variants := []string{
		"ARROZ TIPO 1 5KG",
		"arroz tipo 1 - 5kg",
		"Arroz T.1 5 kg",
	}
	for _, v := range variants {
		assert.Equal(t, "arroz", NormalizeName(v), v)
	}
}
