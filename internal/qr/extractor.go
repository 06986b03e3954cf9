// Package qr extracts a fiscal-document reference from scanned QR text.
//
// A receipt QR code carries either the consultation URL printed by the
// issuing authority or the bare 44-digit access key. The text comes straight
// from a phone camera, so it is treated as hostile: it is sanitized before
// any pattern matching and rejected outright when it carries markup that
// could be rendered or logged unsafely downstream.
package qr

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// ErrInvalidQR is returned when the text yields neither a URL nor an access key,
// or when it fails sanitization.
var ErrInvalidQR = errors.New("invalid qr code")

const (
	maxQRLength  = 2000
	maxURLLength = 500
)

// Substrings that suggest the payload is markup or a script, not a receipt
// reference. Not a completeness claim; the text is also encrypted at rest.
var dangerousSubstrings = []string{
	"<script",
	"javascript:",
	"vbscript:",
	"onerror=",
	"onload=",
	"data:text/html",
}

var (
	urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)
	// A standalone 44-digit run; longer digit runs must not match.
	keyPattern = regexp.MustCompile(`(?:^|[^\d])(\d{44})(?:[^\d]|$)`)
)

// Extraction holds the single reference found in the QR text.
// Exactly one of URL or AccessKey is set.
type Extraction struct {
	URL       string
	AccessKey string
}

// Extract sanitizes raw QR text and returns the consultation URL or the
// 44-digit access key it contains. URL detection runs first: NFC-e QR codes
// embed the key inside the URL, and the URL carries more context. A URL too
// long to use does not abort extraction; the key search still runs.
func Extract(rawText string) (Extraction, error) {
	text := sanitize(rawText)
	if text == "" {
		return Extraction{}, fmt.Errorf("%w: empty text", ErrInvalidQR)
	}
	if len(text) > maxQRLength {
		return Extraction{}, fmt.Errorf("%w: text exceeds %d characters", ErrInvalidQR, maxQRLength)
	}

	lower := strings.ToLower(text)
	for _, s := range dangerousSubstrings {
		if strings.Contains(lower, s) {
			return Extraction{}, fmt.Errorf("%w: unsafe content", ErrInvalidQR)
		}
	}

	if m := urlPattern.FindString(text); m != "" && len(m) <= maxURLLength {
		return Extraction{URL: m}, nil
	}

	if m := keyPattern.FindStringSubmatch(text); m != nil {
		return Extraction{AccessKey: m[1]}, nil
	}

	return Extraction{}, fmt.Errorf("%w: no url or 44-digit access key found", ErrInvalidQR)
}

// sanitize strips control characters (newline and tab become spaces),
// collapses whitespace runs and trims.
func sanitize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == '\n' || r == '\t' || r == '\r':
			b.WriteRune(' ')
		case unicode.IsControl(r):
			// dropped
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
