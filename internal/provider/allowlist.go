package provider

import (
	"fmt"
	"net/url"
	"strings"
)

// Fiscal-authority portals that legitimately appear in receipt QR codes.
// Subdomains of these are accepted (state portals spread consultation pages
// across hosts like nfce.fazenda.sp.gov.br and www.sefaz.rs.gov.br).
var defaultAllowedDomains = []string{
	"fazenda.gov.br",
	"fazenda.sp.gov.br",
	"fazenda.rj.gov.br",
	"fazenda.mg.gov.br",
	"fazenda.pr.gov.br",
	"sefaz.rs.gov.br",
	"sefaz.ba.gov.br",
	"sefaz.go.gov.br",
	"sefaz.mt.gov.br",
	"sefaz.ms.gov.br",
	"sefaz.pe.gov.br",
	"sefaz.ce.gov.br",
	"sefaz.am.gov.br",
	"sefa.pa.gov.br",
	"sef.sc.gov.br",
}

// AllowList validates outbound consultation URLs before any I/O happens.
// It is the anti-SSRF gate: URL fetching in this client is key extraction,
// never proxying, and even the key extraction refuses unknown hosts.
type AllowList struct {
	// exact hosts from configuration entries without a wildcard
	exact map[string]struct{}
	// suffix domains: host must equal the domain or end in "."+domain
	suffixes []string
}

// NewAllowList builds the allow-list from the built-in fiscal-authority
// domains plus configured extras. Extras support "*.domain" wildcards;
// a bare "domain" entry matches that host only.
func NewAllowList(extra []string) *AllowList {
	al := &AllowList{exact: make(map[string]struct{})}
	al.suffixes = append(al.suffixes, defaultAllowedDomains...)
	for _, entry := range extra {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}
		if domain, ok := strings.CutPrefix(entry, "*."); ok {
			al.suffixes = append(al.suffixes, domain)
			continue
		}
		al.exact[entry] = struct{}{}
	}
	return al
}

// Validate checks scheme and host, returning a security-category error on
// any mismatch. No network activity of any kind happens here.
func (al *AllowList) Validate(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return NewError(CategorySecurity, "", "unparseable url", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return NewError(CategorySecurity, "", fmt.Sprintf("disallowed scheme %q", u.Scheme), nil)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return NewError(CategorySecurity, "", "url has no host", nil)
	}
	if al.Allowed(host) {
		return nil
	}
	return NewError(CategorySecurity, "", fmt.Sprintf("host %q is not an allowed fiscal-authority domain", host), nil)
}

// Allowed reports whether a bare host passes the allow-list.
func (al *AllowList) Allowed(host string) bool {
	host = strings.ToLower(host)
	if _, ok := al.exact[host]; ok {
		return true
	}
	for _, domain := range al.suffixes {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
