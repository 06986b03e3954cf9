package provider

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// xmlToMap converts an XML document into the same map tree shape that
// decoding JSON produces: elements become keys, attributes become "@name"
// keys, repeated siblings become slices, and mixed content keeps its text
// under "#text". The parser downstream never learns which wire format the
// provider used.
func xmlToMap(data []byte) (map[string]any, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, fmt.Errorf("xml document has no root element")
		}
		if err != nil {
			return nil, fmt.Errorf("decode xml: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		value, err := parseElement(dec, start)
		if err != nil {
			return nil, fmt.Errorf("decode xml: %w", err)
		}
		return map[string]any{start.Name.Local: value}, nil
	}
}

// parseElement consumes tokens until the matching EndElement. A leaf with
// only character data collapses to its string value.
func parseElement(dec *xml.Decoder, start xml.StartElement) (any, error) {
	node := make(map[string]any)
	for _, attr := range start.Attr {
		node["@"+attr.Name.Local] = attr.Value
	}

	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := parseElement(dec, t)
			if err != nil {
				return nil, err
			}
			addChild(node, t.Name.Local, child)
		case xml.CharData:
			text.WriteString(string(t))
		case xml.EndElement:
			content := strings.TrimSpace(text.String())
			if len(node) == 0 {
				return content, nil
			}
			if content != "" {
				node["#text"] = content
			}
			return node, nil
		}
	}
}

// addChild inserts a child value, promoting repeated siblings to a slice.
func addChild(node map[string]any, key string, value any) {
	existing, ok := node[key]
	if !ok {
		node[key] = value
		return
	}
	if list, ok := existing.([]any); ok {
		node[key] = append(list, value)
		return
	}
	node[key] = []any{existing, value}
}
